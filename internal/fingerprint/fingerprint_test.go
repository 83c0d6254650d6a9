package fingerprint

import "testing"

func TestComputeDeterministic(t *testing.T) {
	in := Input{
		ModelID:       "gpt-4",
		Messages:      []Message{{Role: "user", Content: "Hello"}},
		Temperature:   0.7,
		TopP:          1,
		MaxTokens:     16,
		StopSequences: []string{"\n"},
	}

	a := Compute(in)
	b := Compute(in)
	if a != b {
		t.Fatalf("expected identical fingerprints, got %s vs %s", a, b)
	}
}

func TestComputeDistinguishesInputs(t *testing.T) {
	base := Input{ModelID: "gpt-4", Messages: []Message{{Role: "user", Content: "Hello"}}}
	other := Input{ModelID: "gpt-4", Messages: []Message{{Role: "user", Content: "Hello!"}}}

	if Compute(base) == Compute(other) {
		t.Fatalf("expected distinct fingerprints for distinct content")
	}
}

func TestComputeOrderIndependentForEmbeddingBatch(t *testing.T) {
	a := Compute(Input{ModelID: "text-embedding-3-small", EmbeddingText: []string{"foo", "bar"}})
	b := Compute(Input{ModelID: "text-embedding-3-small", EmbeddingText: []string{"bar", "foo"}})

	if a != b {
		t.Fatalf("expected order-independent fingerprint for embedding batches")
	}
}

func TestSeedOverrideChangesFingerprint(t *testing.T) {
	seed := int64(42)
	base := Input{ModelID: "gpt-4", Messages: []Message{{Role: "user", Content: "hi"}}}
	withSeed := base
	withSeed.SeedOverride = &seed

	if Compute(base) == Compute(withSeed) {
		t.Fatalf("expected seed override to change the fingerprint")
	}
}

func TestBatchIndexDistinguishesDuplicateInputs(t *testing.T) {
	a := Compute(Input{ModelID: "text-embedding-3-small", EmbeddingText: []string{"foo"}, BatchIndex: 0})
	b := Compute(Input{ModelID: "text-embedding-3-small", EmbeddingText: []string{"foo"}, BatchIndex: 1})
	if a == b {
		t.Fatalf("expected distinct batch indices to produce distinct fingerprints for identical input text")
	}
}

func TestStringIsLowercaseHex32(t *testing.T) {
	fp := Compute(Input{ModelID: "gpt-4"})
	s := fp.String()
	if len(s) != 32 {
		t.Fatalf("expected 32 hex chars, got %d (%s)", len(s), s)
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			t.Fatalf("non-hex character in fingerprint string: %q", s)
		}
	}
}
