package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cfg LimiterConfig) (*RateLimiter, *fakeClock) {
	clock := newFakeClock()
	l := NewRateLimiter("TEST", cfg, nil)
	l.now = clock.Now
	l.lastRefill = clock.Now()
	return l, clock
}

func TestRateLimiter_SequentialAcquireDrainsBucket(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 10, RefillRate: 1})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	assert.InDelta(t, 0, l.Tokens(), 0.0001)
}

func TestRateLimiter_LazyRefill(t *testing.T) {
	l, clock := newTestLimiter(LimiterConfig{MaxTokens: 10, RefillRate: 2})
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, l.Acquire(ctx))
	}
	require.InDelta(t, 0, l.Tokens(), 0.0001)

	clock.Advance(1000 * time.Millisecond)
	assert.InDelta(t, 2, l.Tokens(), 0.0001)
}

func TestRateLimiter_TokensNeverExceedCapacity(t *testing.T) {
	l, clock := newTestLimiter(LimiterConfig{MaxTokens: 10, RefillRate: 5})

	clock.Advance(time.Hour)
	assert.InDelta(t, 10, l.Tokens(), 0.0001)
}

func TestRateLimiter_QueueOverflowRejectsImmediately(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 1, RefillRate: 0.001, MaxQueueSize: 2})
	ctx := context.Background()

	// Drain the only token.
	require.NoError(t, l.Acquire(ctx))

	// Fill the queue with two waiters that will never be released.
	for i := 0; i < 2; i++ {
		go func() { _ = l.Acquire(context.Background()) }()
	}
	require.Eventually(t, func() bool { return l.QueueLen() == 2 },
		time.Second, 5*time.Millisecond)

	err := l.Acquire(ctx)
	require.ErrorIs(t, err, ErrQueueFull)
	assert.Contains(t, err.Error(), "queue full")
	assert.True(t, IsBackpressure(err))

	l.Reset()
}

func TestRateLimiter_FIFOOrder(t *testing.T) {
	// Real clock: released waiters depend on actual refill over time.
	l := NewRateLimiter("TEST", LimiterConfig{MaxTokens: 1, RefillRate: 200, MaxQueueSize: 10}, nil)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			if err := l.Acquire(context.Background()); err == nil {
				order <- i
			}
		}()
		// Give each goroutine time to enqueue before starting the next so
		// arrival order is deterministic.
		require.Eventually(t, func() bool { return l.QueueLen() == i+1 },
			time.Second, time.Millisecond)
	}

	got := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		select {
		case n := <-order:
			got = append(got, n)
		case <-time.After(2 * time.Second):
			t.Fatal("waiter was never released")
		}
	}
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestRateLimiter_WaiterTimesOut(t *testing.T) {
	l, clock := newTestLimiter(LimiterConfig{
		MaxTokens:    1,
		RefillRate:   0.001,
		MaxQueueSize: 10,
		MaxWaitTime:  100 * time.Millisecond,
	})
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	require.Eventually(t, func() bool { return l.QueueLen() == 1 },
		time.Second, time.Millisecond)

	clock.Advance(time.Second)

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrAcquireTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not timed out")
	}
}

func TestRateLimiter_ContextCancellation(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 1, RefillRate: 0.001, MaxQueueSize: 10})
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()
	require.Eventually(t, func() bool { return l.QueueLen() == 1 },
		time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled waiter did not return")
	}
	assert.Equal(t, 0, l.QueueLen())

	l.Reset()
}

func TestRateLimiter_CancelledWaiterReturnsGrantedToken(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 1, RefillRate: 0.001, MaxQueueSize: 10})
	require.NoError(t, l.Acquire(context.Background()))

	// Enqueue a waiter, then grant it a token the way drain does, before the
	// waiter has read its ready channel.
	w := &waiter{ready: make(chan error, 1), enqueuedAt: l.now()}
	l.mu.Lock()
	l.queue = append(l.queue, w)
	l.tokens = 1
	l.tokens--
	l.queue = l.queue[1:]
	w.ready <- nil
	l.mu.Unlock()

	// The waiter's context fired concurrently with the grant; its abandoned
	// token must flow back into the bucket.
	l.remove(w)

	assert.InDelta(t, 1, l.Tokens(), 0.01)
	assert.Equal(t, 0, l.QueueLen())
}

func TestRateLimiter_ResetRejectsQueuedWaiters(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 1, RefillRate: 0.001, MaxQueueSize: 10})
	require.NoError(t, l.Acquire(context.Background()))

	done := make(chan error, 1)
	go func() { done <- l.Acquire(context.Background()) }()
	require.Eventually(t, func() bool { return l.QueueLen() == 1 },
		time.Second, time.Millisecond)

	l.Reset()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLimiterReset)
	case <-time.After(2 * time.Second):
		t.Fatal("reset did not release waiter")
	}
	assert.InDelta(t, 1, l.Tokens(), 0.0001)
}

func TestRateLimiter_Execute(t *testing.T) {
	l, _ := newTestLimiter(LimiterConfig{MaxTokens: 2, RefillRate: 1})

	ran := false
	err := l.Execute(context.Background(), func(context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.InDelta(t, 1, l.Tokens(), 0.0001)
}

func TestLimiterRegistry_SeedsFromRateTable(t *testing.T) {
	reg := NewLimiterRegistry(nil)

	shopify := reg.GetOrCreate("SHOPIFY")
	assert.Same(t, shopify, reg.GetOrCreate("SHOPIFY"))
	assert.InDelta(t, 40, shopify.cfg.MaxTokens, 0.0001)
	assert.InDelta(t, 2, shopify.cfg.RefillRate, 0.0001)

	amazon := reg.GetOrCreate("AMAZON")
	assert.InDelta(t, 0.5, amazon.cfg.RefillRate, 0.0001)

	unknown := reg.GetOrCreate("SOMETHING_ELSE")
	assert.InDelta(t, DefaultLimiterConfig().MaxTokens, unknown.cfg.MaxTokens, 0.0001)
}

func TestRateTableConfig_UniformQueueDefaults(t *testing.T) {
	cfg := RateTableConfig("DELHIVERY")
	assert.Equal(t, 100, cfg.MaxQueueSize)
	assert.Equal(t, 30*time.Second, cfg.MaxWaitTime)
}
