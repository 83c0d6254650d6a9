package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/llmsim/simulator/internal/config"
	"github.com/llmsim/simulator/internal/engine"
	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/tokengen"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	for _, k := range []string{"LLMSIM_PORT", "LLMSIM_CHAOS_ENABLED"} {
		t.Setenv(k, "")
	}
	t.Setenv("LLMSIM_SEED", "1")
	t.Setenv("LLMSIM_LATENCY_MULTIPLIER", "0")

	cfg, _, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	comps, err := cfg.Build()
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}

	sampler := latency.NewSampler(cfg.LatencyMultiplier())
	scheduler := engine.NewScheduler(sampler, tokengen.New())
	stats := engine.NewStats()
	dispatcher := engine.NewDispatcher(comps.Registry, comps.Chaos, scheduler, comps.Profiles, comps.RootSeed, stats)

	srv := New(dispatcher, comps.Registry, stats, Config{MaxConcurrentRequests: 16, RequestTimeout: 5 * time.Second})
	return httptest.NewServer(srv.Handler())
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	resp2, err := http.Get(ts.URL + "/ready")
	if err != nil {
		t.Fatalf("GET /ready: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp2.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/models")
	if err != nil {
		t.Fatalf("GET /v1/models: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var out struct {
		Object string `json:"object"`
		Data   []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Data) == 0 {
		t.Fatalf("expected a non-empty model list")
	}
}

func TestChatCompletionsNonStreaming(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}]}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var out struct {
		Object  string `json:"object"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Object != "chat.completion" {
		t.Fatalf("unexpected object: %s", out.Object)
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		t.Fatalf("expected non-empty completion content, got %+v", out)
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"model":"gpt-4o-mini","messages":[{"role":"user","content":"hello"}],"stream":true}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Fatalf("expected text/event-stream, got %q", ct)
	}

	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 512)
	for {
		n, err := resp.Body.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	if !strings.Contains(string(buf), "data: [DONE]") {
		t.Fatalf("expected a [DONE] sentinel in the stream, got:\n%s", buf)
	}
}

func TestUnknownModelReturnsNotFound(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"model":"does-not-exist","messages":[{"role":"user","content":"hi"}]}`
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown model, got %d", resp.StatusCode)
	}
}

func TestGoogleGenerateContent(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"contents":[{"role":"user","parts":[{"text":"hi"}]}]}`
	resp, err := http.Post(ts.URL+"/v1/models/gemini-1.5-flash:generateContent", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := json.Marshal(resp.Header)
		t.Fatalf("unexpected status: %d (headers=%s)", resp.StatusCode, b)
	}

	var out struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Candidates) == 0 {
		t.Fatalf("expected at least one candidate")
	}
}

func TestAnthropicMessagesRequiresMaxTokens(t *testing.T) {
	ts := newTestServer(t)
	defer ts.Close()

	body := `{"model":"claude-3-haiku-20240307","messages":[{"role":"user","content":"hi"}]}`
	resp, err := http.Post(ts.URL+"/v1/messages", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 when max_tokens is missing, got %d", resp.StatusCode)
	}
}
