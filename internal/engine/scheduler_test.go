package engine

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/llmsim/simulator/internal/latency"
	"github.com/llmsim/simulator/internal/tokengen"
)

func rngFor(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x51de))
}

func fastProfile() latency.LatencyProfile {
	return latency.LatencyProfile{
		TTFT: latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 1},
		ITL:  latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 1},
	}
}

func testCap() Capability {
	return Capability{ID: "gpt-4", Family: FamilyOpenAI, MaxOutputTokens: 2048}
}

func testReq(maxTokens int) *NormalizedRequest {
	return &NormalizedRequest{
		ID:        "req-1",
		ModelID:   "gpt-4",
		Operation: OperationChat,
		Messages:  []Message{{Role: RoleUser, Content: "Hello"}},
		Parameters: Parameters{
			MaxTokens: maxTokens,
		},
	}
}

func newScheduler() *Scheduler {
	s := NewScheduler(latency.NewSampler(0), tokengen.New())
	return s
}

func TestRunEmitsStrictOrdering(t *testing.T) {
	sched := newScheduler()
	req := testReq(8)
	cap := testCap()

	ch := sched.Run(context.Background(), req, cap, fastProfile(), rngFor(1), rngFor(2), rngFor(3))

	var events []ChunkEvent
	for ev := range ch {
		events = append(events, ev)
	}

	if len(events) < 2 {
		t.Fatalf("expected at least Start and a terminal event, got %d", len(events))
	}
	if events[0].Kind() != ChunkStart {
		t.Fatalf("expected first event to be Start, got %v", events[0].Kind())
	}
	last := events[len(events)-1]
	if last.Kind() != ChunkEnd && last.Kind() != ChunkError {
		t.Fatalf("expected terminal event to be End or Error, got %v", last.Kind())
	}
	for _, ev := range events[1 : len(events)-1] {
		if ev.Kind() != ChunkDelta && ev.Kind() != ChunkKeepAlive {
			t.Fatalf("expected only Delta/KeepAlive between Start and terminal, got %v", ev.Kind())
		}
	}
}

func TestCollectHonorsLatency(t *testing.T) {
	sched := NewScheduler(latency.NewSampler(1.0), tokengen.New())
	req := testReq(4)
	cap := testCap()
	profile := latency.LatencyProfile{
		TTFT: latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 20},
		ITL:  latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 20},
	}

	start := time.Now()
	resp, err := sched.Collect(context.Background(), req, cap, profile, rngFor(1), rngFor(2), rngFor(3))
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Usage.CompletionTokens == 0 {
		t.Fatalf("expected at least one completion token")
	}
	minExpected := time.Duration(20+20*resp.Usage.CompletionTokens) * time.Millisecond
	if elapsed < minExpected/2 {
		t.Fatalf("expected wall time to roughly track TTFT + sum(ITL), elapsed %v want >= ~%v", elapsed, minExpected)
	}
}

func TestCancellationYieldsErrorCanceled(t *testing.T) {
	sched := NewScheduler(latency.NewSampler(1.0), tokengen.New())
	req := testReq(2048)
	cap := testCap()
	profile := latency.LatencyProfile{
		TTFT: latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 5},
		ITL:  latency.DistributionSpec{Kind: latency.Constant, ConstantMs: 50},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	ch := sched.Run(ctx, req, cap, profile, rngFor(1), rngFor(2), rngFor(3))
	var deltas int
	var terminal ChunkEvent
	for ev := range ch {
		switch ev.Kind() {
		case ChunkDelta:
			deltas++
		case ChunkEnd, ChunkError:
			terminal = ev
		}
	}

	if terminal.Kind() != ChunkError || terminal.ErrKind != ErrCanceled {
		t.Fatalf("expected terminal Error{Canceled}, got kind=%v errKind=%v", terminal.Kind(), terminal.ErrKind)
	}
	if deltas > 1 {
		t.Fatalf("expected at most one additional Delta after cancellation, got %d", deltas)
	}
}
