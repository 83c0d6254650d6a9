package provider

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/llmsim/simulator/internal/engine"
)

func TestGoogleParseRequestTakesModelFromURL(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	req, err := Google{}.ParseRequest(body, "gemini-1.5-pro")
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if req.ModelID != "gemini-1.5-pro" {
		t.Fatalf("unexpected model: %s", req.ModelID)
	}
	if len(req.Messages) != 1 || req.Messages[0].Content != "hi" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
}

func TestGoogleParseRequestRejectsMissingURLModel(t *testing.T) {
	body := []byte(`{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`)
	_, err := Google{}.ParseRequest(body, "")
	if err == nil {
		t.Fatalf("expected an error when the URL carries no model")
	}
}

func TestGoogleRenderChunkHasNoSentinel(t *testing.T) {
	var buf bytes.Buffer
	events := []engine.ChunkEvent{
		engine.NewStart("req_abc", "gemini-1.5-flash"),
		engine.NewDelta("hi"),
		engine.NewEnd(engine.FinishStop, engine.Usage{CompletionTokens: 1}),
	}
	for _, ev := range events {
		if err := (Google{}).RenderChunk(&buf, "gemini-1.5-flash", ev); err != nil {
			t.Fatalf("RenderChunk: %v", err)
		}
	}

	body := buf.String()
	if strings.Contains(body, "[DONE]") {
		t.Fatalf("google dialect must not emit a [DONE] sentinel")
	}

	lines := strings.Split(strings.TrimSpace(body), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 ndjson lines (start emits nothing, delta + end), got %d:\n%s", len(lines), body)
	}
	var delta googleResponse
	if err := json.Unmarshal([]byte(lines[0]), &delta); err != nil {
		t.Fatalf("unmarshal delta line: %v", err)
	}
	if delta.Candidates[0].Content.Parts[0].Text != "hi" {
		t.Fatalf("unexpected delta text: %+v", delta.Candidates[0])
	}
}

func TestGoogleRenderResponseFinishReasonMapping(t *testing.T) {
	resp := &engine.NormalizedResponse{
		FinishReason: engine.FinishContentFilter,
		Choices:      []engine.Choice{{Content: "blocked"}},
	}
	body, err := Google{}.RenderResponse(resp)
	if err != nil {
		t.Fatalf("RenderResponse: %v", err)
	}
	var out googleResponse
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Candidates[0].FinishReason != "SAFETY" {
		t.Fatalf("expected SAFETY finish reason, got %s", out.Candidates[0].FinishReason)
	}
}
