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

// Anthropic implements the anthropic family adapter: named SSE events
// (message_start, content_block_start, content_block_delta,
// content_block_stop, message_delta, message_stop) with no [DONE]
// sentinel, mirroring Anthropic's own Messages API wire format.
type Anthropic struct{}

func NewAnthropic() *Anthropic { return &Anthropic{} }

func (Anthropic) ContentType() string { return "application/json" }

// --- ingress ---

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string              `json:"system"`
	MaxTokens   *int                `json:"max_tokens"`
	Temperature *float64            `json:"temperature"`
	TopP        *float64            `json:"top_p"`
	Stream      bool                `json:"stream"`
	StopSequences []string          `json:"stop_sequences"`
}

func (Anthropic) ParseRequest(body []byte, _ string) (*engine.NormalizedRequest, error) {
	var req anthropicRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fieldErr("$", "malformed messages request: "+err.Error())
	}

	var errs []error
	if strings.TrimSpace(req.Model) == "" {
		errs = append(errs, fieldErr("model", "model is required"))
	}
	if len(req.Messages) == 0 {
		errs = append(errs, fieldErr("messages", "messages cannot be empty"))
	}
	// Anthropic's Messages API requires max_tokens; unlike OpenAI it has no
	// server-side default.
	if req.MaxTokens == nil {
		errs = append(errs, fieldErr("max_tokens", "max_tokens is required"))
	} else if *req.MaxTokens <= 0 {
		errs = append(errs, fieldErr("max_tokens", "must be positive"))
	}
	if req.Temperature != nil && (*req.Temperature < 0 || *req.Temperature > 1) {
		errs = append(errs, fieldErr("temperature", "must be between 0 and 1"))
	}
	if len(errs) > 0 {
		return nil, aggregateFieldErrors(errs...)
	}

	msgs := make([]engine.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, engine.Message{Role: engine.RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, engine.Message{Role: engine.Role(m.Role), Content: m.Content})
	}

	return &engine.NormalizedRequest{
		ID:        "req_" + uuid.NewString(),
		ModelID:   req.Model,
		Operation: engine.OperationChat,
		Messages:  msgs,
		ReceivedAt: time.Now(),
		Parameters: engine.Parameters{
			Temperature:   derefFloat(req.Temperature),
			TopP:          derefFloat(req.TopP),
			MaxTokens:     *req.MaxTokens,
			Stream:        req.Stream,
			StopSequences: req.StopSequences,
		},
	}, nil
}

// --- egress: non-streaming ---

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type anthropicResponse struct {
	ID           string                  `json:"id"`
	Type         string                  `json:"type"`
	Role         string                  `json:"role"`
	Model        string                  `json:"model"`
	Content      []anthropicContentBlock `json:"content"`
	StopReason   string                  `json:"stop_reason"`
	StopSequence *string                 `json:"stop_sequence"`
	Usage        anthropicUsage          `json:"usage"`
}

// anthropicStopReason translates the vendor-neutral FinishReason into
// Anthropic's own vocabulary (end_turn/max_tokens/stop_sequence), distinct
// from OpenAI's stop/length/content_filter set.
func anthropicStopReason(r engine.FinishReason) string {
	switch r {
	case engine.FinishLength:
		return "max_tokens"
	case engine.FinishContentFilter:
		return "stop_sequence"
	case engine.FinishError:
		return "error"
	default:
		return "end_turn"
	}
}

func anthropicMessageID(id string) string {
	if strings.HasPrefix(id, "msg_") {
		return id
	}
	return "msg_" + strings.TrimPrefix(id, "req_")
}

func (Anthropic) RenderResponse(resp *engine.NormalizedResponse) ([]byte, error) {
	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Content
	}

	out := anthropicResponse{
		ID:    anthropicMessageID(resp.ID),
		Type:  "message",
		Role:  "assistant",
		Model: resp.ModelID,
		Content: []anthropicContentBlock{{
			Type: "text",
			Text: content,
		}},
		StopReason: anthropicStopReason(resp.FinishReason),
		Usage: anthropicUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	return json.Marshal(out)
}

// --- egress: streaming ---

type anthropicSSEMessageStart struct {
	Type    string `json:"type"`
	Message struct {
		ID      string          `json:"id"`
		Type    string          `json:"type"`
		Role    string          `json:"role"`
		Model   string          `json:"model"`
		Content []any           `json:"content"`
		Usage   anthropicUsage `json:"usage"`
	} `json:"message"`
}

type anthropicSSEContentBlockStart struct {
	Type         string                `json:"type"`
	Index        int                   `json:"index"`
	ContentBlock anthropicContentBlock `json:"content_block"`
}

type anthropicSSEDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicSSEContentBlockDelta struct {
	Type  string             `json:"type"`
	Index int                `json:"index"`
	Delta anthropicSSEDelta `json:"delta"`
}

type anthropicSSEContentBlockStop struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
}

type anthropicSSEMessageDelta struct {
	Type  string `json:"type"`
	Delta struct {
		StopReason   string  `json:"stop_reason"`
		StopSequence *string `json:"stop_sequence"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicSSEMessageStop struct {
	Type string `json:"type"`
}

// writeNamedSSE frames one Anthropic SSE event: an `event: <name>` line
// followed by a `data: {json}` line and a blank separator, as Anthropic's
// streaming dialect requires in addition to the bare `data:` line OpenAI
// and Google use.
func writeNamedSSE(w io.Writer, event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, b)
	return err
}

func (Anthropic) RenderChunk(w io.Writer, modelID string, ev engine.ChunkEvent) error {
	defer flush(w)

	switch ev.Kind() {
	case engine.ChunkStart:
		start := anthropicSSEMessageStart{Type: "message_start"}
		start.Message.ID = anthropicMessageID(ev.ResponseID)
		start.Message.Type = "message"
		start.Message.Role = "assistant"
		start.Message.Model = modelID
		start.Message.Content = []any{}
		if err := writeNamedSSE(w, "message_start", start); err != nil {
			return err
		}
		return writeNamedSSE(w, "content_block_start", anthropicSSEContentBlockStart{
			Type: "content_block_start", Index: 0,
			ContentBlock: anthropicContentBlock{Type: "text", Text: ""},
		})

	case engine.ChunkDelta:
		return writeNamedSSE(w, "content_block_delta", anthropicSSEContentBlockDelta{
			Type: "content_block_delta", Index: 0,
			Delta: anthropicSSEDelta{Type: "text_delta", Text: ev.Text},
		})

	case engine.ChunkKeepAlive:
		_, err := fmt.Fprint(w, ": keep-alive\n\n")
		return err

	case engine.ChunkEnd:
		if err := writeNamedSSE(w, "content_block_stop", anthropicSSEContentBlockStop{Type: "content_block_stop", Index: 0}); err != nil {
			return err
		}
		msgDelta := anthropicSSEMessageDelta{Type: "message_delta"}
		msgDelta.Delta.StopReason = anthropicStopReason(ev.FinishReason)
		msgDelta.Usage.OutputTokens = ev.Usage.CompletionTokens
		if err := writeNamedSSE(w, "message_delta", msgDelta); err != nil {
			return err
		}
		return writeNamedSSE(w, "message_stop", anthropicSSEMessageStop{Type: "message_stop"})

	case engine.ChunkError:
		body, err := Anthropic{}.RenderError(ev.ErrKind, ev.ErrMsg)
		if err != nil {
			return err
		}
		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			return err
		}
		return writeNamedSSE(w, "error", payload)
	}
	return nil
}

type anthropicErrorBody struct {
	Type  string             `json:"type"`
	Error anthropicErrorInfo `json:"error"`
}

type anthropicErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicErrorType maps the shared taxonomy onto Anthropic's own error
// type vocabulary (overloaded_error, invalid_request_error, ...).
func anthropicErrorType(kind engine.ErrorKind) string {
	switch kind {
	case engine.ErrInvalidRequest:
		return "invalid_request_error"
	case engine.ErrModelNotFound:
		return "not_found_error"
	case engine.ErrUnauthorized:
		return "authentication_error"
	case engine.ErrRateLimited:
		return "rate_limit_error"
	case engine.ErrCircuitOpen, engine.ErrResourceExhausted:
		return "overloaded_error"
	case engine.ErrTimeout:
		return "timeout_error"
	default:
		return "api_error"
	}
}

func (Anthropic) RenderError(kind engine.ErrorKind, message string) ([]byte, error) {
	return json.Marshal(anthropicErrorBody{
		Type: "error",
		Error: anthropicErrorInfo{
			Type:    anthropicErrorType(kind),
			Message: message,
		},
	})
}
