package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// drainInterval is how often the queue drainer wakes to refill tokens and
// release waiters.
const drainInterval = 20 * time.Millisecond

// LimiterConfig tunes a token-bucket rate limiter.
type LimiterConfig struct {
	// MaxTokens is the bucket capacity (burst size).
	MaxTokens float64
	// RefillRate is the sustained rate in tokens per second.
	RefillRate float64
	// MaxQueueSize bounds the FIFO waiter queue; acquires beyond it fail
	// immediately with ErrQueueFull.
	MaxQueueSize int
	// MaxWaitTime is the longest a queued waiter may wait before being
	// rejected with ErrAcquireTimeout.
	MaxWaitTime time.Duration
}

// DefaultLimiterConfig is the fallback for providers without a published
// quota entry in the rate table.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxTokens:    10,
		RefillRate:   1,
		MaxQueueSize: 100,
		MaxWaitTime:  30 * time.Second,
	}
}

func (c *LimiterConfig) applyDefaults() {
	def := DefaultLimiterConfig()
	if c.MaxTokens <= 0 {
		c.MaxTokens = def.MaxTokens
	}
	if c.RefillRate <= 0 {
		c.RefillRate = def.RefillRate
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = def.MaxQueueSize
	}
	if c.MaxWaitTime <= 0 {
		c.MaxWaitTime = def.MaxWaitTime
	}
}

type waiter struct {
	ready      chan error
	enqueuedAt time.Time
}

// RateLimiter is a token bucket throttling outbound calls to one provider.
// Tokens refill lazily from elapsed wall-clock time on every access; there
// is no ticking refill timer. Callers that find the bucket empty join a
// bounded FIFO queue and are released in order by a drain goroutine that
// runs only while the queue is non-empty.
type RateLimiter struct {
	name string
	cfg  LimiterConfig
	log  *zap.Logger
	now  func() time.Time

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	queue      []*waiter
	draining   bool
}

// NewRateLimiter creates a limiter for the named provider. Zero config
// fields fall back to DefaultLimiterConfig values. The bucket starts full.
func NewRateLimiter(name string, cfg LimiterConfig, log *zap.Logger) *RateLimiter {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		name:       name,
		cfg:        cfg,
		log:        log.With(zap.String("limiter", name)),
		now:        time.Now,
		tokens:     cfg.MaxTokens,
		lastRefill: time.Now(),
	}
}

// Acquire blocks until a token is available, the context is cancelled, the
// wait exceeds MaxWaitTime, or the queue is full. A token available
// immediately is consumed synchronously without queueing.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.refill()

	// Fast path: token available and nobody queued ahead of us.
	if len(l.queue) == 0 && l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}

	if len(l.queue) >= l.cfg.MaxQueueSize {
		n := len(l.queue)
		l.mu.Unlock()
		return fmt.Errorf("%w: %s has %d requests waiting", ErrQueueFull, l.name, n)
	}

	w := &waiter{ready: make(chan error, 1), enqueuedAt: l.now()}
	l.queue = append(l.queue, w)
	l.startDrain()
	l.mu.Unlock()

	select {
	case err := <-w.ready:
		return err
	case <-ctx.Done():
		l.remove(w)
		return ctx.Err()
	}
}

// Execute acquires a token and then runs fn.
func (l *RateLimiter) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	return fn(ctx)
}

// Tokens returns the current token count after a lazy refill.
func (l *RateLimiter) Tokens() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refill()
	return l.tokens
}

// QueueLen returns the number of queued waiters.
func (l *RateLimiter) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Reset refills the bucket to capacity and rejects every queued waiter with
// ErrLimiterReset.
func (l *RateLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = l.cfg.MaxTokens
	l.lastRefill = l.now()
	for _, w := range l.queue {
		w.ready <- ErrLimiterReset
	}
	l.queue = nil
}

// refill credits tokens for the wall-clock time elapsed since the last
// refill, capped at the bucket capacity. Caller must hold l.mu.
func (l *RateLimiter) refill() {
	now := l.now()
	elapsed := now.Sub(l.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.cfg.RefillRate
	if l.tokens > l.cfg.MaxTokens {
		l.tokens = l.cfg.MaxTokens
	}
	l.lastRefill = now
}

// startDrain launches the drain goroutine if it is not already running.
// Caller must hold l.mu.
func (l *RateLimiter) startDrain() {
	if l.draining {
		return
	}
	l.draining = true
	go l.drain()
}

// drain wakes periodically, refills, times out stale waiters and releases
// the rest in FIFO order while tokens last. It exits when the queue empties.
func (l *RateLimiter) drain() {
	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		l.refill()

		// Reject waiters that exceeded the wait ceiling.
		kept := l.queue[:0]
		for _, w := range l.queue {
			if l.now().Sub(w.enqueuedAt) > l.cfg.MaxWaitTime {
				w.ready <- fmt.Errorf("%w: %s waited over %s",
					ErrAcquireTimeout, l.name, l.cfg.MaxWaitTime)
				continue
			}
			kept = append(kept, w)
		}
		l.queue = kept

		// Release in order while tokens last.
		for len(l.queue) > 0 && l.tokens >= 1 {
			l.tokens--
			w := l.queue[0]
			l.queue = l.queue[1:]
			w.ready <- nil
		}

		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

// remove drops a waiter that abandoned the queue (context cancellation).
// If drain already granted the waiter a token, the grant sits unread in the
// buffered ready channel; reclaim it so the token is not lost.
func (l *RateLimiter) remove(target *waiter) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, w := range l.queue {
		if w == target {
			l.queue = append(l.queue[:i], l.queue[i+1:]...)
			return
		}
	}

	select {
	case err := <-target.ready:
		if err == nil {
			l.tokens++
			if l.tokens > l.cfg.MaxTokens {
				l.tokens = l.cfg.MaxTokens
			}
		}
	default:
	}
}

// ---------------------------------------------------------------------------
// Registry
// ---------------------------------------------------------------------------

// LimiterRegistry hands out at most one limiter per provider name, seeding
// new limiters from the per-provider rate table.
type LimiterRegistry struct {
	log *zap.Logger

	mu       sync.Mutex
	limiters map[string]*RateLimiter
}

// NewLimiterRegistry creates an empty limiter registry.
func NewLimiterRegistry(log *zap.Logger) *LimiterRegistry {
	if log == nil {
		log = zap.NewNop()
	}
	return &LimiterRegistry{
		log:      log,
		limiters: make(map[string]*RateLimiter),
	}
}

// GetOrCreate returns the limiter for name, creating it on first use with
// the provider's rate-table config (or defaults when unlisted).
func (r *LimiterRegistry) GetOrCreate(name string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[name]; ok {
		return l
	}
	l := NewRateLimiter(name, RateTableConfig(name), r.log)
	r.limiters[name] = l
	return l
}

// Names returns the names of all registered limiters.
func (r *LimiterRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	return names
}
