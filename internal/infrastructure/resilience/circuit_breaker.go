package resilience

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState string

const (
	// StateClosed passes requests through, counting failures in a sliding window.
	StateClosed BreakerState = "CLOSED"
	// StateOpen fails requests immediately until the reset timeout elapses.
	StateOpen BreakerState = "OPEN"
	// StateHalfOpen lets probe requests through; enough consecutive
	// successes close the circuit, any failure reopens it.
	StateHalfOpen BreakerState = "HALF_OPEN"
)

// BreakerConfig tunes a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of failures inside FailureWindow that
	// trips the circuit.
	FailureThreshold int
	// FailureWindow is the sliding window over which failures are counted.
	FailureWindow time.Duration
	// ResetTimeout is the cooldown before an OPEN circuit admits a probe.
	ResetTimeout time.Duration
	// SuccessThreshold is the number of consecutive HALF_OPEN successes
	// required to close the circuit.
	SuccessThreshold int
}

// DefaultBreakerConfig returns the standard per-provider breaker tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		FailureWindow:    60 * time.Second,
		ResetTimeout:     30 * time.Second,
		SuccessThreshold: 2,
	}
}

func (c *BreakerConfig) applyDefaults() {
	def := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = def.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = def.FailureWindow
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = def.ResetTimeout
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = def.SuccessThreshold
	}
}

// CircuitBreaker tracks failures for one provider and fails fast while the
// provider is unhealthy. State only changes inside Execute, Reset and Trip;
// there is no background timer — the OPEN→HALF_OPEN transition happens
// lazily on the first call at or after the reset deadline.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig
	log  *zap.Logger
	now  func() time.Time

	mu                sync.Mutex
	state             BreakerState
	failures          []time.Time
	halfOpenSuccesses int
	nextAttempt       time.Time
}

// NewCircuitBreaker creates a breaker for the named provider. Zero config
// fields fall back to DefaultBreakerConfig values.
func NewCircuitBreaker(name string, cfg BreakerConfig, log *zap.Logger) *CircuitBreaker {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &CircuitBreaker{
		name:  name,
		cfg:   cfg,
		log:   log.With(zap.String("breaker", name)),
		now:   time.Now,
		state: StateClosed,
	}
}

// Execute runs fn under the breaker. While OPEN and before the reset
// deadline it returns *CircuitOpenError without invoking fn.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)
	if err != nil {
		b.onFailure()
		return err
	}
	b.onSuccess()
	return nil
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker CLOSED and clears all failure history. Intended
// as an operational override.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateClosed)
	b.failures = nil
	b.halfOpenSuccesses = 0
}

// Trip forces the breaker OPEN for a full reset timeout. Intended as an
// operational override.
func (b *CircuitBreaker) Trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transition(StateOpen)
	b.nextAttempt = b.now().Add(b.cfg.ResetTimeout)
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}

	now := b.now()
	if now.Before(b.nextAttempt) {
		return &CircuitOpenError{Name: b.name, RetryAfter: b.nextAttempt.Sub(now)}
	}

	// Reset deadline passed: admit this call as a probe.
	b.transition(StateHalfOpen)
	b.halfOpenSuccesses = 0
	return nil
}

func (b *CircuitBreaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneFailures()

	if b.state == StateHalfOpen {
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.cfg.SuccessThreshold {
			b.transition(StateClosed)
			b.failures = nil
			b.halfOpenSuccesses = 0
		}
	}
}

func (b *CircuitBreaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	if b.state == StateHalfOpen {
		// A single probe failure reopens the circuit.
		b.transition(StateOpen)
		b.nextAttempt = now.Add(b.cfg.ResetTimeout)
		return
	}

	b.failures = append(b.failures, now)
	b.pruneFailures()

	if b.state == StateClosed && len(b.failures) >= b.cfg.FailureThreshold {
		b.transition(StateOpen)
		b.nextAttempt = now.Add(b.cfg.ResetTimeout)
	}
}

// pruneFailures drops failure timestamps that fell out of the sliding
// window, so intermittent failures never accumulate indefinitely.
// Caller must hold b.mu.
func (b *CircuitBreaker) pruneFailures() {
	cutoff := b.now().Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, ts := range b.failures {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	b.failures = kept
}

// transition changes state and logs the change. Caller must hold b.mu.
func (b *CircuitBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.log.Info("circuit breaker state change",
		zap.String("from", string(b.state)),
		zap.String("to", string(to)),
	)
	b.state = to
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// BreakerRegistry hands out at most one breaker per provider name. It is
// constructed at the composition root and injected, so tests can build
// isolated registries.
type BreakerRegistry struct {
	cfg BreakerConfig
	log *zap.Logger

	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
}

// NewBreakerRegistry creates a registry applying cfg to new breakers.
func NewBreakerRegistry(cfg BreakerConfig, log *zap.Logger) *BreakerRegistry {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &BreakerRegistry{
		cfg:      cfg,
		log:      log,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// GetOrCreate returns the breaker for name, creating it on first use.
func (r *BreakerRegistry) GetOrCreate(name string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := NewCircuitBreaker(name, r.cfg, r.log)
	r.breakers[name] = b
	return b
}

// Names returns the names of all registered breakers.
func (r *BreakerRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	return names
}
