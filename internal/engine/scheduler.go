package engine

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/tokengen"
)

// DefaultKeepAliveInterval is the default interval at which a stalled
// stream emits a keep-alive frame instead of going silent.
const DefaultKeepAliveInterval = 15 * time.Second

// Scheduler is the Stream Scheduler (C6): it combines a latency.Sampler and
// a tokengen.Generator into a timed asynchronous sequence of ChunkEvents,
// honoring cancellation and emitting keep-alives during long idle gaps.
type Scheduler struct {
	Sampler          latency.Sampler
	Generator        *tokengen.Generator
	KeepAliveInterval time.Duration
}

func NewScheduler(sampler latency.Sampler, gen *tokengen.Generator) *Scheduler {
	return &Scheduler{Sampler: sampler, Generator: gen, KeepAliveInterval: DefaultKeepAliveInterval}
}

// sleep blocks for d or until ctx is canceled, whichever comes first: a
// timer plus a select, never a bare time.Sleep, so cancellation is
// observed within one scheduling interval rather than after the full delay.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Run spawns exactly one goroutine for this request and returns a channel
// of ChunkEvents terminating in exactly one End or Error. The channel is
// sized one so a slow consumer applies backpressure onto the scheduler's
// own pacing rather than unboundedly queuing events in memory.
func (s *Scheduler) Run(ctx context.Context, req *NormalizedRequest, cap Capability, profile latency.LatencyProfile, rngTTFT, rngITL, rngText *rand.Rand) <-chan ChunkEvent {
	out := make(chan ChunkEvent, 1)

	go func() {
		defer close(out)
		defer func() {
			if r := recover(); r != nil {
				out <- NewError(ErrServerError, fmt.Sprintf("internal error: %v", r))
			}
		}()

		ttft :=s.Sampler.SampleTTFT(profile, rngTTFT)
		if !sleep(ctx, ttft) {
			out <- NewError(ErrCanceled, "canceled during time-to-first-token wait")
			return
		}

		responseID := req.ID
		out <- NewStart(responseID, req.ModelID)

		next, finishReason := s.Generator.Iter(req, cap, rngText)
		lastEmit := time.Now()
		tokens := 0

		for {
			frag, done := next()
			if done {
				break
			}

			itl := s.Sampler.NextITL(profile, rngITL)
			if elapsed := time.Since(lastEmit); elapsed+itl > s.keepAliveInterval() {
				if !sleep(ctx, s.keepAliveInterval()-elapsed) {
					out <- NewError(ErrCanceled, "canceled during inter-token wait")
					return
				}
				out <- NewKeepAlive()
				itl -= s.keepAliveInterval() - elapsed
				lastEmit = time.Now()
			}
			if !sleep(ctx, itl) {
				out <- NewError(ErrCanceled, "canceled during inter-token wait")
				return
			}

			out <- NewDelta(frag)
			tokens++
			lastEmit = time.Now()
		}

		promptTokens := tokengen.EstimateMessages(messageContents(req))
		usage := Usage{PromptTokens: promptTokens, CompletionTokens: tokens, TotalTokens: promptTokens + tokens}
		out <- NewEnd(*finishReason, usage)
	}()

	return out
}

func (s *Scheduler) keepAliveInterval() time.Duration {
	if s.KeepAliveInterval <= 0 {
		return DefaultKeepAliveInterval
	}
	return s.KeepAliveInterval
}

func messageContents(req *NormalizedRequest) []string {
	out := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		out[i] = m.Content
	}
	return out
}

// Collect runs the non-streaming path: identical latency honoring to Run,
// but buffers all Deltas and returns a single NormalizedResponse instead of
// a channel.
func (s *Scheduler) Collect(ctx context.Context, req *NormalizedRequest, cap Capability, profile latency.LatencyProfile, rngTTFT, rngITL, rngText *rand.Rand) (*NormalizedResponse, error) {
	ch := s.Run(ctx, req, cap, profile, rngTTFT, rngITL, rngText)

	var text string
	var usage Usage
	var finish FinishReason
	var ttftMs *int64
	start := time.Now()

	for ev := range ch {
		switch ev.Kind() {
		case ChunkStart:
			ms := time.Since(start).Milliseconds()
			ttftMs = &ms
		case ChunkDelta:
			text += ev.Text
		case ChunkEnd:
			usage = ev.Usage
			finish = ev.FinishReason
		case ChunkError:
			return nil, NewSimError(ev.ErrKind, ev.ErrMsg)
		}
	}

	resp := &NormalizedResponse{
		ID:                 req.ID,
		ModelID:            req.ModelID,
		CreatedAt:          time.Now(),
		FinishReason:       finish,
		Choices:            []Choice{{Content: text, Role: RoleAssistant}},
		Usage:              usage,
		TimeToFirstTokenMs: ttftMs,
		EstimatedCostUSD:   EstimateCost(cap, usage),
	}
	return resp, nil
}

// EstimateCost applies the model's per-million-token pricing to a usage
// triple. Non-negative by construction since usage and pricing are both
// non-negative.
func EstimateCost(cap Capability, usage Usage) float64 {
	promptCost := float64(usage.PromptTokens) / 1_000_000 * cap.Pricing.PromptUSDPerMToken
	completionCost := float64(usage.CompletionTokens) / 1_000_000 * cap.Pricing.CompletionUSDPerMToken
	return promptCost + completionCost
}
