package engine

import (
	"context"
	"time"

	"github.com/llmsim/simulator/internal/chaos"
	"github.com/llmsim/simulator/internal/fingerprint"
	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/registry"
	"github.com/llmsim/simulator/internal/rng"
	"github.com/llmsim/simulator/internal/tokengen"
)

// LatencyProfiles resolves a profile id to its latency distribution, the
// config-owned table internal/config builds from the YAML `latency.profiles`
// map.
type LatencyProfiles interface {
	Resolve(id string) (latency.LatencyProfile, bool)
}

// Dispatcher is the one-way glue binding every simulation component: it
// depends on each of them but nothing depends back on it. The engine is
// adapter-unaware; provider adapters call into Dispatcher, never the other
// way around.
type Dispatcher struct {
	Registry  *registry.Registry
	Chaos     *chaos.Decider
	Scheduler *Scheduler
	Profiles  LatencyProfiles
	RootSeed  rng.RootSeed
	Stats     *Stats
}

func NewDispatcher(reg *registry.Registry, decider *chaos.Decider, sched *Scheduler, profiles LatencyProfiles, root rng.RootSeed, stats *Stats) *Dispatcher {
	return &Dispatcher{Registry: reg, Chaos: decider, Scheduler: sched, Profiles: profiles, RootSeed: root, Stats: stats}
}

func (d *Dispatcher) rootFor(req *NormalizedRequest) rng.RootSeed {
	if req.Parameters.SeedOverride != nil {
		return rng.FromOverride(*req.Parameters.SeedOverride)
	}
	return d.RootSeed
}

// resolveAndValidate runs C1's lookup + invariant checks, shared by both
// Dispatch and Stream.
func (d *Dispatcher) resolveAndValidate(req *NormalizedRequest) (Capability, latency.LatencyProfile, error) {
	if err := d.Registry.Validate(req); err != nil {
		return Capability{}, latency.LatencyProfile{}, err
	}
	cap, err := d.Registry.Resolve(req.ModelID)
	if err != nil {
		return Capability{}, latency.LatencyProfile{}, NewSimError(ErrModelNotFound, err.Error())
	}
	profile, ok := d.Profiles.Resolve(cap.DefaultLatencyProfileID)
	if !ok {
		// Startup validation (internal/registry.New + internal/config) is
		// supposed to make this unreachable; treated as an invariant
		// violation rather than a panic.
		return Capability{}, latency.LatencyProfile{}, NewSimError(ErrServerError, "model names an unresolved latency profile")
	}
	return cap, profile, nil
}

// decide runs C5 and records metrics. On failure it returns a non-nil
// *SimError with the injected or breaker-decided kind.
func (d *Dispatcher) decide(req *NormalizedRequest, fp fingerprint.Fingerprint, root rng.RootSeed) error {
	rngChaos := rng.Derive(root, fp, rng.PurposeChaos)

	decision := d.Chaos.Decide(req.ModelID, req.Operation, rngChaos)
	if !decision.Proceed {
		d.Stats.RecordError()
		return NewSimError(decision.Kind, decision.Message)
	}
	return nil
}

// Dispatch implements the non-streaming request lifecycle: resolve ->
// fingerprint+RNG -> chaos decision -> scheduler run -> NormalizedResponse.
func (d *Dispatcher) Dispatch(ctx context.Context, req *NormalizedRequest) (*NormalizedResponse, error) {
	cap, profile, err := d.resolveAndValidate(req)
	if err != nil {
		return nil, err
	}

	root := d.rootFor(req)
	fp := req.Fingerprint()

	if err := d.decide(req, fp, root); err != nil {
		return nil, err
	}

	d.Stats.RecordRequest()

	if req.Operation == OperationEmbedding {
		return d.dispatchEmbedding(req, cap, root)
	}

	rngTTFT := rng.Derive(root, fp, rng.PurposeTTFT)
	rngITL := rng.Derive(root, fp, rng.PurposeITL)
	rngText := rng.Derive(root, fp, rng.PurposeText)

	resp, err := d.Scheduler.Collect(ctx, req, cap, profile, rngTTFT, rngITL, rngText)
	if err != nil {
		d.Stats.RecordError()
		return nil, err
	}
	d.Stats.RecordTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// Stream implements the streaming counterpart, returning the ChunkEvent
// channel directly from C6 after the same resolve/decide preamble.
func (d *Dispatcher) Stream(ctx context.Context, req *NormalizedRequest) (<-chan ChunkEvent, error) {
	cap, profile, err := d.resolveAndValidate(req)
	if err != nil {
		return nil, err
	}

	root := d.rootFor(req)
	fp := req.Fingerprint()

	if err := d.decide(req, fp, root); err != nil {
		return nil, err
	}

	d.Stats.RecordRequest()

	rngTTFT := rng.Derive(root, fp, rng.PurposeTTFT)
	rngITL := rng.Derive(root, fp, rng.PurposeITL)
	rngText := rng.Derive(root, fp, rng.PurposeText)

	raw := d.Scheduler.Run(ctx, req, cap, profile, rngTTFT, rngITL, rngText)
	out := make(chan ChunkEvent, 1)
	go func() {
		defer close(out)
		for ev := range raw {
			if ev.Kind() == ChunkEnd {
				d.Stats.RecordTokens(ev.Usage.PromptTokens, ev.Usage.CompletionTokens)
			}
			if ev.Kind() == ChunkError {
				d.Stats.RecordError()
			}
			out <- ev
		}
	}()
	return out, nil
}

// dispatchEmbedding implements the embedding path: one unit-normalized
// vector per input string, each deterministically derived from
// (root_seed, fingerprint, input_index).
func (d *Dispatcher) dispatchEmbedding(req *NormalizedRequest, cap Capability, root rng.RootSeed) (*NormalizedResponse, error) {
	dim := 0
	if cap.EmbeddingDim != nil {
		dim = int(*cap.EmbeddingDim)
	}

	vectors := make([][]float32, len(req.EmbeddingInput))
	promptTokens := 0
	for i, input := range req.EmbeddingInput {
		inputFP := fingerprint.Compute(fingerprint.Input{
			ModelID:       req.ModelID,
			EmbeddingText: []string{input},
			BatchIndex:    i,
		})
		r := rng.Derive(root, inputFP, rng.PurposeEmbedding)
		vectors[i] = tokengen.GenerateEmbedding(dim, r)
		promptTokens += tokengen.EstimateTokens(input)
	}

	usage := Usage{PromptTokens: promptTokens, CompletionTokens: 0, TotalTokens: promptTokens}
	d.Stats.RecordTokens(usage.PromptTokens, usage.CompletionTokens)

	return &NormalizedResponse{
		ID:               req.ID,
		ModelID:          req.ModelID,
		CreatedAt:        time.Now(),
		FinishReason:     FinishStop,
		Embeddings:       vectors,
		Usage:            usage,
		EstimatedCostUSD: EstimateCost(cap, usage),
	}, nil
}
