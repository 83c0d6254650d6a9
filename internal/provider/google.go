package provider

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/llmsim/simulator/internal/engine"
)

// Google implements the google family adapter: generateContent /
// streamGenerateContent against `/v1/models/{model}:{method}`, where the
// model comes from the URL path rather than the body, and streaming frames
// are newline-delimited JSON objects with no terminal sentinel.
type Google struct{}

func NewGoogle() *Google { return &Google{} }

func (Google) ContentType() string { return "application/json" }

// --- ingress ---

type googlePart struct {
	Text string `json:"text"`
}

type googleContent struct {
	Role  string       `json:"role"`
	Parts []googlePart `json:"parts"`
}

type googleGenerationConfig struct {
	Temperature     *float64 `json:"temperature"`
	TopP            *float64 `json:"topP"`
	MaxOutputTokens *int     `json:"maxOutputTokens"`
	StopSequences   []string `json:"stopSequences"`
}

type googleRequest struct {
	Contents          []googleContent         `json:"contents"`
	GenerationConfig *googleGenerationConfig `json:"generationConfig"`
}

func (Google) ParseRequest(body []byte, urlModel string) (*engine.NormalizedRequest, error) {
	var req googleRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fieldErr("$", "malformed generateContent request: "+err.Error())
	}

	var errs []error
	if urlModel == "" {
		errs = append(errs, fieldErr("$.url", "model must be present in the URL path"))
	}
	if len(req.Contents) == 0 {
		errs = append(errs, fieldErr("contents", "contents cannot be empty"))
	}
	if len(errs) > 0 {
		return nil, aggregateFieldErrors(errs...)
	}

	msgs := make([]engine.Message, 0, len(req.Contents))
	for _, c := range req.Contents {
		text := ""
		for _, p := range c.Parts {
			text += p.Text
		}
		msgs = append(msgs, engine.Message{Role: googleRoleToEngine(c.Role), Content: text})
	}

	params := engine.Parameters{}
	if req.GenerationConfig != nil {
		params.Temperature = derefFloat(req.GenerationConfig.Temperature)
		params.TopP = derefFloat(req.GenerationConfig.TopP)
		if req.GenerationConfig.MaxOutputTokens != nil {
			params.MaxTokens = *req.GenerationConfig.MaxOutputTokens
		}
		params.StopSequences = req.GenerationConfig.StopSequences
	}

	return &engine.NormalizedRequest{
		ID:         "req_" + uuid.NewString(),
		ModelID:    urlModel,
		Operation:  engine.OperationChat,
		Messages:   msgs,
		ReceivedAt: time.Now(),
		Parameters: params,
	}, nil
}

func googleRoleToEngine(role string) engine.Role {
	switch role {
	case "model":
		return engine.RoleAssistant
	case "system":
		return engine.RoleSystem
	default:
		return engine.RoleUser
	}
}

// --- egress: non-streaming ---

type googleCandidate struct {
	Content      googleContent `json:"content"`
	FinishReason string        `json:"finishReason"`
	Index        int           `json:"index"`
}

type googleUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type googleResponse struct {
	Candidates    []googleCandidate    `json:"candidates"`
	UsageMetadata googleUsageMetadata `json:"usageMetadata"`
}

// googleFinishReason maps the shared taxonomy onto Google's own
// vocabulary (STOP/MAX_TOKENS/SAFETY), distinct from both OpenAI's and
// Anthropic's finish-reason sets.
func googleFinishReason(r engine.FinishReason) string {
	switch r {
	case engine.FinishLength:
		return "MAX_TOKENS"
	case engine.FinishContentFilter:
		return "SAFETY"
	case engine.FinishError:
		return "OTHER"
	default:
		return "STOP"
	}
}

func (Google) RenderResponse(resp *engine.NormalizedResponse) ([]byte, error) {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Content
	}

	out := googleResponse{
		Candidates: []googleCandidate{{
			Content:      googleContent{Role: "model", Parts: []googlePart{{Text: content}}},
			FinishReason: googleFinishReason(resp.FinishReason),
			Index:        0,
		}},
		UsageMetadata: googleUsageMetadata{
			PromptTokenCount:     resp.Usage.PromptTokens,
			CandidatesTokenCount: resp.Usage.CompletionTokens,
			TotalTokenCount:      resp.Usage.TotalTokens,
		},
	}
	return json.Marshal(out)
}

// --- egress: streaming ---

// RenderChunk emits one JSON object per event, each on its own line, with
// no trailing sentinel — a streamGenerateContent client detects completion
// by the connection closing. ChunkStart carries no frame of its own in this
// dialect (Google's first chunk already contains content), so it is folded
// into the first delta.
func (Google) RenderChunk(w io.Writer, modelID string, ev engine.ChunkEvent) error {
	defer flush(w)

	switch ev.Kind() {
	case engine.ChunkStart:
		// Nothing to emit: Google has no separate start frame.
		return nil

	case engine.ChunkDelta:
		chunk := googleResponse{
			Candidates: []googleCandidate{{
				Content: googleContent{Role: "model", Parts: []googlePart{{Text: ev.Text}}},
				Index:   0,
			}},
		}
		return writeNDJSON(w, chunk)

	case engine.ChunkKeepAlive:
		// Newline-delimited JSON has no comment convention; an empty line
		// is the closest faithful no-op keep-alive.
		_, err := fmt.Fprint(w, "\n")
		return err

	case engine.ChunkEnd:
		chunk := googleResponse{
			Candidates: []googleCandidate{{
				FinishReason: googleFinishReason(ev.FinishReason),
				Index:        0,
			}},
			UsageMetadata: googleUsageMetadata{
				PromptTokenCount:     ev.Usage.PromptTokens,
				CandidatesTokenCount: ev.Usage.CompletionTokens,
				TotalTokenCount:      ev.Usage.TotalTokens,
			},
		}
		return writeNDJSON(w, chunk)

	case engine.ChunkError:
		body, err := Google{}.RenderError(ev.ErrKind, ev.ErrMsg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%s\n", body)
		return err
	}
	return nil
}

func writeNDJSON(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

type googleErrorBody struct {
	Error googleErrorDetail `json:"error"`
}

type googleErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// googleStatus maps the shared taxonomy onto Google's gRPC-style status
// strings (RESOURCE_EXHAUSTED, NOT_FOUND, ...).
func googleStatus(kind engine.ErrorKind) string {
	switch kind {
	case engine.ErrInvalidRequest:
		return "INVALID_ARGUMENT"
	case engine.ErrModelNotFound:
		return "NOT_FOUND"
	case engine.ErrUnauthorized:
		return "UNAUTHENTICATED"
	case engine.ErrRateLimited, engine.ErrResourceExhausted, engine.ErrCircuitOpen:
		return "RESOURCE_EXHAUSTED"
	case engine.ErrTimeout:
		return "DEADLINE_EXCEEDED"
	default:
		return "INTERNAL"
	}
}

func (Google) RenderError(kind engine.ErrorKind, message string) ([]byte, error) {
	return json.Marshal(googleErrorBody{Error: googleErrorDetail{
		Code:    kind.HTTPStatus(),
		Message: message,
		Status:  googleStatus(kind),
	}})
}
