package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/llmsim/simulator/internal/engine"
)

// OpenAI implements the openai family adapter: `data: {...}\n\n` chunks,
// keep-alive as `: keep-alive\n\n` comment lines, and a `data: [DONE]\n\n`
// terminal sentinel, mirroring the Chat Completions wire format.
type OpenAI struct{}

func NewOpenAI() *OpenAI { return &OpenAI{} }

func (OpenAI) ContentType() string { return "application/json" }

// --- ingress ---

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIStop accepts OpenAI's `stop` field as either a bare string or an
// array of strings. Go's JSON decoder has no native union type, so
// UnmarshalJSON tries a bare string first, then falls back to []string.
type openAIStop []string

func (s *openAIStop) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single != "" {
			*s = []string{single}
		}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(b, &multi); err != nil {
		return err
	}
	*s = multi
	return nil
}

type openAIChatRequest struct {
	Model       string         `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature *float64       `json:"temperature"`
	TopP        *float64       `json:"top_p"`
	MaxTokens   *int           `json:"max_tokens"`
	Stream      bool           `json:"stream"`
	Stop        openAIStop     `json:"stop"`
	User        string         `json:"user"`
	Seed        *int64         `json:"seed"`
}

// openAIEmbeddingInput accepts OpenAI's `input` field as either a bare
// string or an array of strings.
type openAIEmbeddingInput []string

func (s *openAIEmbeddingInput) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		*s = []string{single}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(b, &multi); err != nil {
		return err
	}
	*s = multi
	return nil
}

type openAIEmbeddingRequest struct {
	Model string                `json:"model"`
	Input openAIEmbeddingInput `json:"input"`
	User  string                `json:"user"`
}

func (OpenAI) ParseRequest(body []byte, _ string) (*engine.NormalizedRequest, error) {
	// Disambiguate chat vs embedding by probing for the "input" key; a
	// vendor-faithful client always sends one or the other but never both.
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil, fieldErr("$", "request body is not valid JSON")
	}

	if _, isEmbedding := probe["input"]; isEmbedding {
		return parseOpenAIEmbedding(body)
	}
	return parseOpenAIChat(body)
}

func parseOpenAIChat(body []byte) (*engine.NormalizedRequest, error) {
	var req openAIChatRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fieldErr("$", "malformed chat completion request: "+err.Error())
	}

	var errs []error
	if strings.TrimSpace(req.Model) == "" {
		errs = append(errs, fieldErr("model", "model is required"))
	}
	if len(req.Messages) == 0 {
		errs = append(errs, fieldErr("messages", "messages cannot be empty"))
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 2) {
		errs = append(errs, fieldErr("temperature", "must be between 0 and 2"))
	}
	if req.TopP != nil && (*req.TopP < 0 || *req.TopP > 1) {
		errs = append(errs, fieldErr("top_p", "must be between 0 and 1"))
	}
	if len(errs) > 0 {
		return nil, aggregateFieldErrors(errs...)
	}

	msgs := make([]engine.Message, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = engine.Message{Role: engine.Role(m.Role), Content: m.Content}
	}

	maxTokens := 0
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return &engine.NormalizedRequest{
		ID:         "req_" + uuid.NewString(),
		ModelID:    req.Model,
		Operation:  engine.OperationChat,
		Messages:   msgs,
		ReceivedAt: time.Now(),
		Parameters: engine.Parameters{
			Temperature:   derefFloat(req.Temperature),
			TopP:          derefFloat(req.TopP),
			MaxTokens:     maxTokens,
			Stream:        req.Stream,
			StopSequences: []string(req.Stop),
			UserID:        req.User,
			SeedOverride:  req.Seed,
		},
	}, nil
}

func parseOpenAIEmbedding(body []byte) (*engine.NormalizedRequest, error) {
	var req openAIEmbeddingRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fieldErr("$", "malformed embeddings request: "+err.Error())
	}

	var errs []error
	if strings.TrimSpace(req.Model) == "" {
		errs = append(errs, fieldErr("model", "model is required"))
	}
	if len(req.Input) == 0 {
		errs = append(errs, fieldErr("input", "input cannot be empty"))
	}
	if len(errs) > 0 {
		return nil, aggregateFieldErrors(errs...)
	}

	return &engine.NormalizedRequest{
		ID:             "req_" + uuid.NewString(),
		ModelID:        req.Model,
		Operation:      engine.OperationEmbedding,
		EmbeddingInput: []string(req.Input),
		ReceivedAt:     time.Now(),
		Parameters:     engine.Parameters{UserID: req.User},
	}, nil
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// --- egress: non-streaming ---

type openAIUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type openAIChatChoice struct {
	Index        int            `json:"index"`
	Message      openAIRespMsg  `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

type openAIRespMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIChatResponse struct {
	ID                string              `json:"id"`
	Object            string              `json:"object"`
	Created           int64               `json:"created"`
	Model             string              `json:"model"`
	Choices           []openAIChatChoice  `json:"choices"`
	Usage             openAIUsage         `json:"usage"`
	SystemFingerprint string              `json:"system_fingerprint,omitempty"`
}

type openAIEmbeddingObject struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

type openAIEmbeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

type openAIEmbeddingResponse struct {
	Object string                   `json:"object"`
	Data   []openAIEmbeddingObject `json:"data"`
	Model  string                   `json:"model"`
	Usage  openAIEmbeddingUsage     `json:"usage"`
}

func (OpenAI) RenderResponse(resp *engine.NormalizedResponse) ([]byte, error) {
	if resp.Embeddings != nil {
		data := make([]openAIEmbeddingObject, len(resp.Embeddings))
		for i, v := range resp.Embeddings {
			data[i] = openAIEmbeddingObject{Object: "embedding", Index: i, Embedding: v}
		}
		return json.Marshal(openAIEmbeddingResponse{
			Object: "list",
			Data:   data,
			Model:  resp.ModelID,
			Usage: openAIEmbeddingUsage{
				PromptTokens: resp.Usage.PromptTokens,
				TotalTokens:  resp.Usage.TotalTokens,
			},
		})
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Content
	}

	out := openAIChatResponse{
		ID:      openAICompletionID(resp.ID),
		Object:  "chat.completion",
		Created: resp.CreatedAt.Unix(),
		Model:   resp.ModelID,
		Choices: []openAIChatChoice{{
			Index:        0,
			Message:      openAIRespMsg{Role: "assistant", Content: content},
			FinishReason: string(resp.FinishReason),
		}},
		Usage: openAIUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		SystemFingerprint: "fp_sim_" + resp.ID[:min(8, len(resp.ID))],
	}
	return json.Marshal(out)
}

func openAICompletionID(id string) string {
	if strings.HasPrefix(id, "chatcmpl-") {
		return id
	}
	return "chatcmpl-" + strings.TrimPrefix(id, "req_")
}

// --- egress: streaming ---

type openAIChunkDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

type openAIChunkChoice struct {
	Index        int              `json:"index"`
	Delta        openAIChunkDelta `json:"delta"`
	FinishReason *string          `json:"finish_reason"`
}

type openAIChunk struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []openAIChunkChoice `json:"choices"`
	Usage   *openAIUsage         `json:"usage,omitempty"`
}

func (OpenAI) RenderChunk(w io.Writer, modelID string, ev engine.ChunkEvent) error {
	defer flush(w)
	created := time.Now().Unix()

	switch ev.Kind() {
	case engine.ChunkStart:
		id := openAICompletionID(ev.ResponseID)
		chunk := openAIChunk{
			ID: id, Object: "chat.completion.chunk", Created: created, Model: modelID,
			Choices: []openAIChunkChoice{{Index: 0, Delta: openAIChunkDelta{Role: "assistant"}}},
		}
		return writeSSEData(w, chunk)

	case engine.ChunkDelta:
		chunk := openAIChunk{
			Object: "chat.completion.chunk", Created: created, Model: modelID,
			Choices: []openAIChunkChoice{{Index: 0, Delta: openAIChunkDelta{Content: ev.Text}}},
		}
		return writeSSEData(w, chunk)

	case engine.ChunkKeepAlive:
		_, err := fmt.Fprint(w, ": keep-alive\n\n")
		return err

	case engine.ChunkEnd:
		reason := string(ev.FinishReason)
		usage := openAIUsage{PromptTokens: ev.Usage.PromptTokens, CompletionTokens: ev.Usage.CompletionTokens, TotalTokens: ev.Usage.TotalTokens}
		chunk := openAIChunk{
			Object: "chat.completion.chunk", Created: created, Model: modelID,
			Choices: []openAIChunkChoice{{Index: 0, Delta: openAIChunkDelta{}, FinishReason: &reason}},
			Usage:   &usage,
		}
		if err := writeSSEData(w, chunk); err != nil {
			return err
		}
		_, err := fmt.Fprint(w, "data: [DONE]\n\n")
		return err

	case engine.ChunkError:
		body, err := OpenAI{}.RenderError(ev.ErrKind, ev.ErrMsg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "data: %s\n\n", body)
		// A mid-stream error frame omits the [DONE] sentinel.
		return err
	}
	return nil
}

type openAIErrorBody struct {
	Error openAIErrorDetail `json:"error"`
}

type openAIErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

func (OpenAI) RenderError(kind engine.ErrorKind, message string) ([]byte, error) {
	return json.Marshal(openAIErrorBody{Error: openAIErrorDetail{
		Message: message,
		Type:    kind.String(),
		Code:    kind.String(),
	}})
}

func writeSSEData(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// --- models listing ---

type openAIModelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

type openAIModelsResponse struct {
	Object string               `json:"object"`
	Data   []openAIModelObject `json:"data"`
}

// RenderModelsList renders the `/v1/models` listing, shared by the server
// handler for both the collection and single-model endpoints.
func RenderModelsList(caps []engine.Capability) ([]byte, error) {
	data := make([]openAIModelObject, len(caps))
	now := time.Now().Unix()
	for i, c := range caps {
		data[i] = openAIModelObject{ID: c.ID, Object: "model", Created: now, OwnedBy: string(c.Family)}
	}
	return json.Marshal(openAIModelsResponse{Object: "list", Data: data})
}
