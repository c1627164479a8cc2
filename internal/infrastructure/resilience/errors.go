package resilience

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by Acquire when the limiter's waiter queue is
	// at capacity. The request was never queued; try again later.
	ErrQueueFull = errors.New("resilience: rate limit queue full")

	// ErrAcquireTimeout is returned to a queued waiter that exceeded the
	// limiter's maximum wait time.
	ErrAcquireTimeout = errors.New("resilience: rate limit acquire timed out")

	// ErrLimiterReset is returned to waiters that were queued when the
	// limiter was reset.
	ErrLimiterReset = errors.New("resilience: rate limiter reset")
)

// CircuitOpenError is returned by Execute while the breaker is OPEN and the
// reset timeout has not elapsed. The wrapped function was not invoked.
type CircuitOpenError struct {
	// Name is the provider the breaker guards.
	Name string
	// RetryAfter is the remaining cooldown before the next attempt is allowed.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit open for %s, retry after %.1fs",
		e.Name, e.RetryAfter.Seconds())
}

// IsCircuitOpen reports whether err is (or wraps) a CircuitOpenError.
func IsCircuitOpen(err error) bool {
	var coe *CircuitOpenError
	return errors.As(err, &coe)
}

// IsBackpressure reports whether err indicates retryable-later backpressure
// from the resilience layer rather than a provider failure.
func IsBackpressure(err error) bool {
	return IsCircuitOpen(err) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrAcquireTimeout)
}
