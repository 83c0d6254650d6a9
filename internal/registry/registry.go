// Package registry implements the Model Registry (C1): an immutable,
// lock-free lookup from model id to capability record, built once at
// startup from configuration.
package registry

import (
	"fmt"

	"github.com/llmsim/simulator/internal/engine"
)

// ErrNotFound is returned by Resolve when a model id has no registry entry.
var ErrNotFound = fmt.Errorf("model not found")

// ModelEntry is one configured model, plus the latency profile id it
// resolves to.
type ModelEntry struct {
	Capability        engine.Capability
	LatencyProfileID  string
	Aliases           []string
}

// Registry is immutable after New: no mutex guards lookups because nothing
// ever mutates the underlying maps post-construction.
type Registry struct {
	byID     map[string]engine.Capability
	byFamily map[engine.Family][]engine.Capability
}

// New builds a Registry from configured entries. Aliases become additional
// map entries pointing at the same Capability value — never
// pattern-matched, exact lookup only. validLatencyProfiles is used only to
// validate default_latency_profile_id references; New returns an error
// (rather than silently accepting) when an entry names a profile that
// doesn't exist.
func New(entries []ModelEntry, validLatencyProfiles map[string]struct{}) (*Registry, error) {
	r := &Registry{
		byID:     make(map[string]engine.Capability, len(entries)),
		byFamily: make(map[engine.Family][]engine.Capability),
	}

	for _, e := range entries {
		c := e.Capability
		c.DefaultLatencyProfileID = e.LatencyProfileID
		if _, ok := validLatencyProfiles[c.DefaultLatencyProfileID]; !ok {
			return nil, fmt.Errorf("model %q names undefined latency profile %q", c.ID, c.DefaultLatencyProfileID)
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("duplicate model id %q", c.ID)
		}
		r.byID[c.ID] = c
		r.byFamily[c.Family] = append(r.byFamily[c.Family], c)

		for _, alias := range e.Aliases {
			if _, dup := r.byID[alias]; dup {
				return nil, fmt.Errorf("alias %q collides with an existing model id", alias)
			}
			r.byID[alias] = c
		}
	}

	return r, nil
}

// Resolve performs a case-sensitive, exact lookup.
func (r *Registry) Resolve(modelID string) (engine.Capability, error) {
	c, ok := r.byID[modelID]
	if !ok {
		return engine.Capability{}, ErrNotFound
	}
	return c, nil
}

// List returns the public model descriptors for a family, in the order
// their entries were passed to New, or every model if family is empty. In
// the empty-family case each family keeps that order, but the order in
// which the families follow one another is not defined.
func (r *Registry) List(family engine.Family) []engine.Capability {
	if family == "" {
		out := make([]engine.Capability, 0, len(r.byID))
		seen := make(map[string]struct{}, len(r.byID))
		for fam := range r.byFamily {
			for _, c := range r.byFamily[fam] {
				if _, dup := seen[c.ID]; dup {
					continue
				}
				seen[c.ID] = struct{}{}
				out = append(out, c)
			}
		}
		return out
	}
	return r.byFamily[family]
}

// Validate enforces request-level invariants: max_tokens within the
// model's cap, and that the requested operation is one the model supports
// (embedding vs chat).
func (r *Registry) Validate(req *engine.NormalizedRequest) error {
	c, err := r.Resolve(req.ModelID)
	if err != nil {
		return engine.NewSimError(engine.ErrModelNotFound, fmt.Sprintf("model %q not found", req.ModelID))
	}

	switch req.Operation {
	case engine.OperationEmbedding:
		if !c.IsEmbedding() {
			return engine.NewSimError(engine.ErrInvalidRequest, fmt.Sprintf("model %q does not support embeddings", req.ModelID))
		}
	case engine.OperationChat:
		if c.IsEmbedding() {
			return engine.NewSimError(engine.ErrInvalidRequest, fmt.Sprintf("model %q is embedding-only", req.ModelID))
		}
		if req.Parameters.MaxTokens > int(c.MaxOutputTokens) {
			return engine.NewSimError(engine.ErrInvalidRequest, fmt.Sprintf("max_tokens %d exceeds model limit %d", req.Parameters.MaxTokens, c.MaxOutputTokens))
		}
	}

	return nil
}
