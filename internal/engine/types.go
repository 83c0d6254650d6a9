// Package engine holds the normalized request/response types and the
// dispatcher/scheduler that tie the simulation components together. Provider
// adapters depend on this package; this package never imports provider.
package engine

import (
	"time"

	"github.com/llmsim/simulator/internal/fingerprint"
)

// Family identifies a vendor dialect a Capability belongs to.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGoogle    Family = "google"
)

// Operation is the kind of work a request performs.
type Operation string

const (
	OperationChat      Operation = "chat"
	OperationEmbedding Operation = "embedding"
)

// Pricing is quoted in US dollars per million tokens, matching the
// "prompt_usd_per_mtoken"/"completion_usd_per_mtoken" YAML fields.
type Pricing struct {
	PromptUSDPerMToken     float64
	CompletionUSDPerMToken float64
}

// Capability is the immutable per-model record the registry resolves.
type Capability struct {
	ID                     string
	Family                 Family
	ContextWindowTokens    uint32
	MaxOutputTokens        uint32
	EmbeddingDim           *uint32 // present iff embedding-capable
	Pricing                Pricing
	DefaultLatencyProfileID string
}

// IsEmbedding reports whether this model serves the embedding operation.
func (c Capability) IsEmbedding() bool {
	return c.EmbeddingDim != nil
}

// Role is a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a chat request.
type Message struct {
	Role    Role
	Content string
}

// Parameters carries the sampling/shaping knobs common to every vendor.
type Parameters struct {
	Temperature   float64
	TopP          float64
	MaxTokens     int
	Stream        bool
	StopSequences []string
	UserID        string
	SeedOverride  *int64
}

// NormalizedRequest is the vendor-agnostic request the adapters produce on
// ingress and the dispatcher consumes.
type NormalizedRequest struct {
	ID             string
	ModelID        string
	Operation      Operation
	Messages       []Message
	EmbeddingInput []string
	Parameters     Parameters
	ReceivedAt     time.Time
	AuthPrincipal  string
}

// Fingerprint computes this request's deterministic content fingerprint.
func (r *NormalizedRequest) Fingerprint() fingerprint.Fingerprint {
	msgs := make([]fingerprint.Message, len(r.Messages))
	for i, m := range r.Messages {
		msgs[i] = fingerprint.Message{Role: string(m.Role), Content: m.Content}
	}
	return fingerprint.Compute(fingerprint.Input{
		ModelID:       r.ModelID,
		Messages:      msgs,
		EmbeddingText: r.EmbeddingInput,
		Temperature:   r.Parameters.Temperature,
		TopP:          r.Parameters.TopP,
		MaxTokens:     r.Parameters.MaxTokens,
		StopSequences: r.Parameters.StopSequences,
		SeedOverride:  r.Parameters.SeedOverride,
	})
}

// FinishReason is the terminal reason an output stopped.
type FinishReason string

const (
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishError         FinishReason = "error"
)

// Usage is the prompt/completion token accounting returned with every
// response.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Choice is one chat completion choice.
type Choice struct {
	Content string
	Role    Role
}

// NormalizedResponse is the vendor-agnostic non-streaming result.
type NormalizedResponse struct {
	ID                 string
	ModelID            string
	CreatedAt          time.Time
	FinishReason       FinishReason
	Choices            []Choice
	Embeddings         [][]float32
	Usage              Usage
	TimeToFirstTokenMs *int64
	EstimatedCostUSD   float64
}

// ChunkKind tags the variant held by a ChunkEvent.
type ChunkKind int

const (
	ChunkStart ChunkKind = iota
	ChunkDelta
	ChunkKeepAlive
	ChunkEnd
	ChunkError
)

// ChunkEvent is the tagged union the scheduler emits and provider adapters
// render. Go has no native tagged union; this is a single struct with an
// unexported kind tag and per-kind accessor fields; the fields that belong
// to other kinds are zero for any given event.
type ChunkEvent struct {
	kind ChunkKind

	// Start
	ResponseID string
	ModelID    string

	// Delta
	Text string

	// End
	FinishReason FinishReason
	Usage        Usage

	// Error
	ErrKind   ErrorKind
	ErrMsg    string
	Retryable bool
}

func (e ChunkEvent) Kind() ChunkKind { return e.kind }

func NewStart(responseID, modelID string) ChunkEvent {
	return ChunkEvent{kind: ChunkStart, ResponseID: responseID, ModelID: modelID}
}

func NewDelta(text string) ChunkEvent {
	return ChunkEvent{kind: ChunkDelta, Text: text}
}

func NewKeepAlive() ChunkEvent {
	return ChunkEvent{kind: ChunkKeepAlive}
}

func NewEnd(reason FinishReason, usage Usage) ChunkEvent {
	return ChunkEvent{kind: ChunkEnd, FinishReason: reason, Usage: usage}
}

func NewError(kind ErrorKind, msg string) ChunkEvent {
	return ChunkEvent{kind: ChunkError, ErrKind: kind, ErrMsg: msg, Retryable: kind.Retryable()}
}

// IsTerminal reports whether this event ends a stream.
func (e ChunkEvent) IsTerminal() bool {
	return e.kind == ChunkEnd || e.kind == ChunkError
}
