// Package chaos implements the Chaos Decider (C5): an ordered rule list
// behind an atomic pointer swap, plus a small fixed-size table of circuit
// breakers keyed by (model, operation) or a single global entry.
package chaos

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/llmsim/simulator/internal/engine"
)

// Decision is the outcome of Decide: either Proceed, or Fail with the kind
// of InjectedError that should be rendered.
type Decision struct {
	Proceed bool
	Kind    engine.ErrorKind
	Message string
}

func proceed() Decision { return Decision{Proceed: true} }

func fail(kind engine.ErrorKind, msg string) Decision {
	return Decision{Proceed: false, Kind: kind, Message: msg}
}

// Decider holds the rule list and circuit breaker table.
type Decider struct {
	enabled           bool
	rules             atomicRules
	globalProbability float64
	breakerConfig     CircuitBreakerConfig
	perModel          bool

	breakersMu sync.RWMutex
	breakers   map[string]*CircuitBreaker

	now func() time.Time // swappable for tests; defaults to time.Now
}

// New builds a Decider. enabled, rules and global_probability come from
// config.ChaosConfig; breakerConfig/perModel come from
// config.ChaosConfig.CircuitBreaker. When enabled is false, Decide always
// proceeds without ever touching the rule list or the breaker table.
func New(enabled bool, rules []Rule, globalProbability float64, breakerConfig CircuitBreakerConfig, perModel bool) *Decider {
	d := &Decider{
		enabled:           enabled,
		globalProbability: globalProbability,
		breakerConfig:     breakerConfig,
		perModel:          perModel,
		breakers:          make(map[string]*CircuitBreaker),
		now:               time.Now,
	}
	d.rules.store(rules)
	return d
}

// SwapRules atomically replaces the active rule list — a single pointer
// store, never a mutation in place, so readers never block. Circuit breaker
// state is untouched by a rule swap.
func (d *Decider) SwapRules(rules []Rule) {
	d.rules.store(rules)
}

func (d *Decider) breakerKey(model string, op engine.Operation) string {
	if !d.perModel {
		return "global"
	}
	return model + "/" + string(op)
}

func (d *Decider) breakerFor(model string, op engine.Operation) *CircuitBreaker {
	key := d.breakerKey(model, op)

	d.breakersMu.RLock()
	b, ok := d.breakers[key]
	d.breakersMu.RUnlock()
	if ok {
		return b
	}

	d.breakersMu.Lock()
	defer d.breakersMu.Unlock()
	if b, ok := d.breakers[key]; ok {
		return b
	}
	b = NewCircuitBreaker(d.breakerConfig)
	d.breakers[key] = b
	return b
}

// Decide consults the breaker first, then the ordered rule list, recording
// outcomes on the breaker along either the failure or the
// half-open-success path.
func (d *Decider) Decide(model string, op engine.Operation, rngChaos *rand.Rand) Decision {
	if !d.enabled {
		return proceed()
	}

	breaker := d.breakerFor(model, op)
	now := d.now()

	if breaker.IsOpen(now) {
		return fail(engine.ErrCircuitOpen, "circuit breaker is open")
	}

	rules := d.rules.load()
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		if !rule.Scope.matches(model, op) {
			continue
		}

		effective := rule.Probability * d.globalProbability
		if rngChaos.Float64() < effective {
			breaker.RecordFailure(now)
			return fail(rule.ErrorKind, "injected "+rule.ErrorKind.String()+" error")
		}
	}

	breaker.RecordSuccess(now)
	return proceed()
}
