package engine

import (
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Stats is the engine's statistics component: atomic request/error/token
// counters plus a reservoir-sampled latency tracker. It is the only
// mutable shared state the dispatcher touches outside the circuit
// breaker, and every field is either an atomic or guarded by its own
// narrowly-scoped mutex, never a global lock around the whole engine.
type Stats struct {
	totalRequests     atomic.Int64
	totalErrors       atomic.Int64
	totalInputTokens  atomic.Int64
	totalOutputTokens atomic.Int64

	latencyMu sync.Mutex
	latency   latencyTracker
}

func NewStats() *Stats {
	return &Stats{latency: newLatencyTracker(10_000)}
}

func (s *Stats) RecordRequest() { s.totalRequests.Add(1) }
func (s *Stats) RecordError()   { s.totalErrors.Add(1) }

func (s *Stats) RecordTokens(input, output int) {
	s.totalInputTokens.Add(int64(input))
	s.totalOutputTokens.Add(int64(output))
}

func (s *Stats) RecordLatency(d time.Duration) {
	s.latencyMu.Lock()
	defer s.latencyMu.Unlock()
	s.latency.record(d)
}

// Snapshot is a point-in-time read of every counter, used by /metrics.
type Snapshot struct {
	TotalRequests     int64
	TotalErrors       int64
	TotalInputTokens  int64
	TotalOutputTokens int64
	Latency           LatencyStats
}

func (s *Stats) Snapshot() Snapshot {
	s.latencyMu.Lock()
	lat := s.latency.stats()
	s.latencyMu.Unlock()

	return Snapshot{
		TotalRequests:     s.totalRequests.Load(),
		TotalErrors:       s.totalErrors.Load(),
		TotalInputTokens:  s.totalInputTokens.Load(),
		TotalOutputTokens: s.totalOutputTokens.Load(),
		Latency:           lat,
	}
}

func (sn Snapshot) ErrorRate() float64 {
	if sn.TotalRequests == 0 {
		return 0
	}
	return float64(sn.TotalErrors) / float64(sn.TotalRequests)
}

// LatencyStats is the percentile table reported alongside the raw counters.
type LatencyStats struct {
	Count  int64
	MeanMs float64
	MinMs  float64
	MaxMs  float64
	P50Ms  float64
	P90Ms  float64
	P95Ms  float64
	P99Ms  float64
}

// latencyTracker reservoir-samples up to maxSamples observations so
// percentile computation stays bounded in memory regardless of total
// request volume.
type latencyTracker struct {
	samples    []time.Duration
	count      int64
	maxSamples int
	sum        time.Duration
	min, max   time.Duration
}

func newLatencyTracker(maxSamples int) latencyTracker {
	return latencyTracker{samples: make([]time.Duration, 0, maxSamples), maxSamples: maxSamples}
}

func (t *latencyTracker) record(d time.Duration) {
	t.count++
	t.sum += d

	if t.count == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}

	if len(t.samples) < t.maxSamples {
		t.samples = append(t.samples, d)
		return
	}
	idx := rand.IntN(int(t.count))
	if idx < t.maxSamples {
		t.samples[idx] = d
	}
}

func (t *latencyTracker) stats() LatencyStats {
	if t.count == 0 {
		return LatencyStats{}
	}

	mean := float64(t.sum.Milliseconds()) / float64(t.count)

	sorted := make([]float64, len(t.samples))
	for i, d := range t.samples {
		sorted[i] = float64(d) / float64(time.Millisecond)
	}
	sort.Float64s(sorted)

	percentile := func(p float64) float64 {
		if len(sorted) == 0 {
			return 0
		}
		idx := int(p / 100.0 * float64(len(sorted)-1))
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return sorted[idx]
	}

	return LatencyStats{
		Count:  t.count,
		MeanMs: mean,
		MinMs:  float64(t.min) / float64(time.Millisecond),
		MaxMs:  float64(t.max) / float64(time.Millisecond),
		P50Ms:  percentile(50),
		P90Ms:  percentile(90),
		P95Ms:  percentile(95),
		P99Ms:  percentile(99),
	}
}
