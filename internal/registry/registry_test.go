package registry

import (
	"testing"

	"github.com/llmsim/simulator/internal/engine"
)

func dim(n uint32) *uint32 { return &n }

func TestResolveExactCaseSensitive(t *testing.T) {
	r, err := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI, MaxOutputTokens: 2048}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := r.Resolve("gpt-4"); err != nil {
		t.Fatalf("expected resolve to succeed: %v", err)
	}
	if _, err := r.Resolve("GPT-4"); err == nil {
		t.Fatalf("expected case-sensitive lookup to miss")
	}
}

func TestResolveAlias(t *testing.T) {
	r, err := New([]ModelEntry{
		{
			Capability:       engine.Capability{ID: "gpt-4-turbo", Family: engine.FamilyOpenAI, MaxOutputTokens: 4096},
			LatencyProfileID: "standard",
			Aliases:          []string{"gpt-4-turbo-preview"},
		},
	}, map[string]struct{}{"standard": {}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, err := r.Resolve("gpt-4-turbo-preview")
	if err != nil {
		t.Fatalf("expected alias to resolve: %v", err)
	}
	if c.ID != "gpt-4-turbo" {
		t.Fatalf("expected alias to resolve to the canonical capability, got %q", c.ID)
	}
}

func TestNewRejectsUndefinedLatencyProfile(t *testing.T) {
	_, err := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI}, LatencyProfileID: "does-not-exist"},
	}, map[string]struct{}{"standard": {}})
	if err == nil {
		t.Fatalf("expected New to reject a model naming an undefined latency profile")
	}
}

func TestValidateRejectsOversizedMaxTokens(t *testing.T) {
	r, _ := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI, MaxOutputTokens: 16}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})

	req := &engine.NormalizedRequest{ModelID: "gpt-4", Operation: engine.OperationChat, Parameters: engine.Parameters{MaxTokens: 17}}
	if err := r.Validate(req); err == nil {
		t.Fatalf("expected validation to reject max_tokens above the model cap")
	}
}

func TestValidateRejectsEmbeddingOnChatOnlyModel(t *testing.T) {
	r, _ := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI, MaxOutputTokens: 16}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})

	req := &engine.NormalizedRequest{ModelID: "gpt-4", Operation: engine.OperationEmbedding}
	if err := r.Validate(req); err == nil {
		t.Fatalf("expected validation to reject an embedding request against a chat-only model")
	}
}

func TestValidateAcceptsEmbeddingModel(t *testing.T) {
	r, _ := New([]ModelEntry{
		{Capability: engine.Capability{ID: "text-embedding-3-small", Family: engine.FamilyOpenAI, EmbeddingDim: dim(1536)}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})

	req := &engine.NormalizedRequest{ModelID: "text-embedding-3-small", Operation: engine.OperationEmbedding}
	if err := r.Validate(req); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestListFiltersByFamily(t *testing.T) {
	r, _ := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI}, LatencyProfileID: "standard"},
		{Capability: engine.Capability{ID: "claude-3-haiku-20240307", Family: engine.FamilyAnthropic}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})

	openai := r.List(engine.FamilyOpenAI)
	if len(openai) != 1 || openai[0].ID != "gpt-4" {
		t.Fatalf("expected exactly gpt-4 in the openai family, got %+v", openai)
	}
}

func TestNewRejectsDuplicateID(t *testing.T) {
	_, err := New([]ModelEntry{
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI}, LatencyProfileID: "standard"},
		{Capability: engine.Capability{ID: "gpt-4", Family: engine.FamilyOpenAI}, LatencyProfileID: "standard"},
	}, map[string]struct{}{"standard": {}})
	if err == nil {
		t.Fatalf("expected New to reject duplicate model ids")
	}
}
