package chaos

import (
	"sync/atomic"
	"time"
)

// breakerState values, packed into the low 2 bits of CircuitBreaker.word.
const (
	stateClosed int64 = 0
	stateOpen   int64 = 1
	stateHalf   int64 = 2
)

// CircuitBreakerConfig holds the three breaker tunables.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenDuration     time.Duration
	// HalfOpenProbeCount bounds how many trial requests are admitted
	// concurrently while HalfOpen; any request beyond that count is
	// rejected as still-open until the state changes.
	HalfOpenProbeCount int
}

// CircuitBreaker implements a Closed/Open/HalfOpen state machine with no
// mutex on the transition path: state and a secondary counter are packed
// into a single atomic.Int64 (state in bits 0-1, counter shifted into the
// rest), transitioned with CAS-retry loops so concurrent callers never
// block each other and never observe a torn update. The counter means
// consecutive failures while Closed, and admitted-in-flight-probes while
// HalfOpen; it is unused while Open.
type CircuitBreaker struct {
	cfg          CircuitBreakerConfig
	word         atomic.Int64 // packed (state, counter)
	openedAtNano atomic.Int64
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg}
}

func pack(state, counter int64) int64 { return state | counter<<2 }
func unpack(word int64) (state, counter int64) {
	return word & 0x3, word >> 2
}

func (cb *CircuitBreaker) probeLimit() int64 {
	if cb.cfg.HalfOpenProbeCount <= 0 {
		return 1
	}
	return int64(cb.cfg.HalfOpenProbeCount)
}

// IsOpen reports whether the breaker currently blocks requests. It also
// performs the Open -> HalfOpen transition once open_duration has elapsed,
// and, while HalfOpen, admits at most half_open_probe_count concurrent
// trial requests — rejecting any request beyond that bound as still-open
// rather than letting every waiting caller through at once.
func (cb *CircuitBreaker) IsOpen(now time.Time) bool {
	for {
		word := cb.word.Load()
		state, counter := unpack(word)

		switch state {
		case stateOpen:
			openedAt := cb.openedAtNano.Load()
			if now.UnixNano()-openedAt < cb.cfg.OpenDuration.Nanoseconds() {
				return true
			}
			if cb.word.CompareAndSwap(word, pack(stateHalf, 0)) {
				continue // re-read as HalfOpen and attempt to admit a probe
			}
			// lost the race to another goroutine's transition; re-read.
		case stateHalf:
			if counter >= cb.probeLimit() {
				return true
			}
			if cb.word.CompareAndSwap(word, pack(stateHalf, counter+1)) {
				return false
			}
		case stateClosed:
			return false
		default:
			return false
		}
	}
}

// RecordFailure advances the breaker on a failed (or injected-failure)
// outcome: Closed -> Open once failure_threshold consecutive failures
// accrue, HalfOpen -> Open (resetting opened_at) on any probe failure.
func (cb *CircuitBreaker) RecordFailure(now time.Time) {
	for {
		word := cb.word.Load()
		state, failures := unpack(word)

		switch state {
		case stateClosed:
			next := failures + 1
			if int(next) >= cb.cfg.FailureThreshold {
				if cb.word.CompareAndSwap(word, pack(stateOpen, 0)) {
					cb.openedAtNano.Store(now.UnixNano())
					return
				}
				continue
			}
			if cb.word.CompareAndSwap(word, pack(stateClosed, next)) {
				return
			}
		case stateHalf:
			if cb.word.CompareAndSwap(word, pack(stateOpen, 0)) {
				cb.openedAtNano.Store(now.UnixNano())
				return
			}
		case stateOpen:
			return
		default:
			return
		}
	}
}

// RecordSuccess advances the breaker on a successful outcome: resets the
// consecutive-failure count while Closed, or closes the breaker
// immediately on any HalfOpen probe success.
func (cb *CircuitBreaker) RecordSuccess(now time.Time) {
	for {
		word := cb.word.Load()
		state, failures := unpack(word)

		switch state {
		case stateClosed:
			if failures == 0 {
				return
			}
			if cb.word.CompareAndSwap(word, pack(stateClosed, 0)) {
				return
			}
		case stateHalf:
			if cb.word.CompareAndSwap(word, pack(stateClosed, 0)) {
				return
			}
		case stateOpen:
			return
		default:
			return
		}
	}
}

// State exposes the current state for diagnostics and tests.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (cb *CircuitBreaker) State() State {
	state, _ := unpack(cb.word.Load())
	switch state {
	case stateOpen:
		return Open
	case stateHalf:
		return HalfOpen
	default:
		return Closed
	}
}
