package chaos

import (
	"testing"
	"time"
)

func cfg() CircuitBreakerConfig {
	return CircuitBreakerConfig{FailureThreshold: 3, OpenDuration: 50 * time.Millisecond, HalfOpenProbeCount: 2}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(cfg())
	now := time.Now()

	for i := 0; i < 2; i++ {
		cb.RecordFailure(now)
		if cb.State() != Closed {
			t.Fatalf("expected breaker to remain closed before threshold, iteration %d", i)
		}
	}
	cb.RecordFailure(now)
	if cb.State() != Open {
		t.Fatalf("expected breaker to open after failure_threshold consecutive failures")
	}
	if !cb.IsOpen(now) {
		t.Fatalf("expected IsOpen to report true immediately after opening")
	}
}

func TestBreakerTransitionsToHalfOpenAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(cfg())
	t0 := time.Now()
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	if cb.State() != Open {
		t.Fatalf("expected Open")
	}

	stillOpen := cb.IsOpen(t0.Add(10 * time.Millisecond))
	if !stillOpen {
		t.Fatalf("expected breaker to remain open before open_duration elapses")
	}

	afterCooldown := cb.IsOpen(t0.Add(60 * time.Millisecond))
	if afterCooldown {
		t.Fatalf("expected IsOpen to report false (admitting a probe) once open_duration elapses")
	}
	if cb.State() != HalfOpen {
		t.Fatalf("expected breaker to be HalfOpen after the cooldown check")
	}
}

func TestBreakerClosesOnFirstProbeSuccess(t *testing.T) {
	cb := NewCircuitBreaker(cfg())
	t0 := time.Now()
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.IsOpen(t0.Add(60 * time.Millisecond)) // transitions to HalfOpen

	cb.RecordSuccess(t0.Add(61 * time.Millisecond))
	if cb.State() != Closed {
		t.Fatalf("expected breaker to close on the first HalfOpen probe success")
	}
}

func TestBreakerBoundsConcurrentHalfOpenProbes(t *testing.T) {
	cb := NewCircuitBreaker(cfg()) // HalfOpenProbeCount: 2
	t0 := time.Now()
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.IsOpen(t0.Add(60 * time.Millisecond)) // transitions to HalfOpen, admits probe 1

	if admitted := !cb.IsOpen(t0.Add(61 * time.Millisecond)); !admitted {
		t.Fatalf("expected the second probe to be admitted, filling half_open_probe_count")
	}
	if blocked := cb.IsOpen(t0.Add(62 * time.Millisecond)); !blocked {
		t.Fatalf("expected a third concurrent probe to be rejected as still-open")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(cfg())
	t0 := time.Now()
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.IsOpen(t0.Add(60 * time.Millisecond)) // transitions to HalfOpen

	cb.RecordFailure(t0.Add(61 * time.Millisecond))
	if cb.State() != Open {
		t.Fatalf("expected any half-open probe failure to reopen the breaker")
	}
	if !cb.IsOpen(t0.Add(62 * time.Millisecond)) {
		t.Fatalf("expected the reopened breaker to stay open immediately after reopening")
	}
}

func TestBreakerSuccessResetsFailureCountWhileClosed(t *testing.T) {
	cb := NewCircuitBreaker(cfg())
	t0 := time.Now()
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	cb.RecordSuccess(t0)
	cb.RecordFailure(t0)
	cb.RecordFailure(t0)
	if cb.State() != Closed {
		t.Fatalf("expected the breaker to still be closed: failure count should have reset on success")
	}
}
