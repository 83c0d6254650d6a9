// Package tokengen implements the token generator: a deterministic,
// bounded, stop-aware finite sequence of filler text fragments, plus the
// unit-normalized embedding path. Nothing here performs language modeling;
// semantic correctness of replies is explicitly out of scope.
package tokengen

import (
	"math"
	"math/rand/v2"
	"strings"

	"github.com/llmsim/simulator/internal/engine"
)

// Generator produces filler completions and embeddings from an RNG stream.
// It holds no state of its own — every method is a pure function of its
// arguments and the RNG, which is what makes determinism in (fingerprint,
// root_seed) possible.
type Generator struct{}

func New() *Generator { return &Generator{} }

// outputBound computes min(sampled_output_len, request.max_tokens,
// model.max_output_tokens). sampled_output_len is drawn from a log-normal
// distribution around a family-typical median so repeated requests with
// different fingerprints vary in length, while a fixed fingerprint always
// reproduces the same bound.
func outputBound(req *engine.NormalizedRequest, cap engine.Capability, rng *rand.Rand) int {
	median, ok := familyMedianTokens[cap.Family]
	if !ok {
		median = defaultMedianTokens
	}
	const sigma = 0.5
	mu := math.Log(median)
	sampled := int(math.Round(math.Exp(boxMuller(rng)*sigma + mu)))
	if sampled < 1 {
		sampled = 1
	}

	bound := sampled
	if req.Parameters.MaxTokens > 0 && req.Parameters.MaxTokens < bound {
		bound = req.Parameters.MaxTokens
	}
	if cap.MaxOutputTokens > 0 && int(cap.MaxOutputTokens) < bound {
		bound = int(cap.MaxOutputTokens)
	}
	if bound < 1 {
		bound = 1
	}
	return bound
}

// fragment draws one word-plus-trailing-space filler fragment. Exactly one
// fragment is emitted per completion token, so the fragment count equals
// completion_tokens.
func fragment(rng *rand.Rand, first bool) string {
	w := lorem[rng.IntN(len(lorem))]
	if first {
		w = strings.ToUpper(w[:1]) + w[1:]
	}
	return w + " "
}

// Iter returns a pull-based closure over the bounded, stop-aware fragment
// sequence: Go's idiom for a lazy finite iterator, since the language has
// no native generator and nothing here needs to block, so no goroutine is
// warranted. Each call returns the next fragment and whether the sequence
// is now exhausted (the returned fragment is empty iff done is true). The
// returned pointer holds the finish reason, valid once the first done=true
// is observed: "stop" if a configured stop sequence was matched, "length"
// if the bound (min(sampled_output_len, max_tokens, model cap)) was reached
// without ever matching one.
func (g *Generator) Iter(req *engine.NormalizedRequest, cap engine.Capability, rng *rand.Rand) (next func() (frag string, done bool), finishReason *engine.FinishReason) {
	bound := outputBound(req, cap, rng)
	emitted := 0
	stopped := false
	var built strings.Builder
	reason := engine.FinishLength

	next = func() (string, bool) {
		if stopped || emitted >= bound {
			return "", true
		}

		frag := fragment(rng, emitted == 0)
		built.WriteString(frag)
		emitted++

		for _, stop := range req.Parameters.StopSequences {
			if stop == "" {
				continue
			}
			if strings.Contains(built.String(), stop) {
				stopped = true
				reason = engine.FinishStop
				return frag, false
			}
		}

		return frag, false
	}
	return next, &reason
}

// Collect runs Iter to completion and returns the whole output, usage, and
// finish reason — the non-streaming access pattern.
func (g *Generator) Collect(req *engine.NormalizedRequest, cap engine.Capability, rng *rand.Rand) (text string, usage engine.Usage, finish engine.FinishReason) {
	next, reason := g.Iter(req, cap, rng)
	var b strings.Builder
	tokens := 0

	for {
		frag, done := next()
		if done {
			break
		}
		b.WriteString(frag)
		tokens++
	}

	promptTokens := EstimateMessages(messageContents(req))
	text = strings.TrimRight(b.String(), " ")
	usage = engine.Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: tokens,
		TotalTokens:      promptTokens + tokens,
	}
	return text, usage, *reason
}

func messageContents(req *engine.NormalizedRequest) []string {
	out := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = m.Content
	}
	return out
}
