package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTokenCache(now time.Time) (*TokenCache, *time.Time) {
	c := NewTokenCache(nil)
	t := now
	c.now = func() time.Time { return t }
	return c, &t
}

func fixedFetch(token string, ttl time.Duration, now func() time.Time, calls *atomic.Int32) FetchFunc {
	return func(context.Context) (string, time.Time, error) {
		calls.Add(1)
		return token, now().Add(ttl), nil
	}
}

func TestTokenCache_CachesUntilBuffer(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c, now := newTestTokenCache(start)
	ctx := context.Background()

	var calls atomic.Int32
	fetch := fixedFetch("tok-1", 10*time.Minute, func() time.Time { return *now }, &calls)

	got, err := c.Token(ctx, "FLIPKART", fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)

	// Well inside validity: served from cache.
	*now = start.Add(5 * time.Minute)
	got, err = c.Token(ctx, "FLIPKART", fetch)
	require.NoError(t, err)
	assert.Equal(t, "tok-1", got)
	assert.EqualValues(t, 1, calls.Load())

	// Inside the 60s safety buffer: refreshed even though not yet expired.
	*now = start.Add(9*time.Minute + 30*time.Second)
	_, err = c.Token(ctx, "FLIPKART", fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestTokenCache_ProvidersIndependent(t *testing.T) {
	c, now := newTestTokenCache(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var a, b atomic.Int32
	_, err := c.Token(ctx, "NYKAA", fixedFetch("na", time.Hour, func() time.Time { return *now }, &a))
	require.NoError(t, err)
	_, err = c.Token(ctx, "JIOMART", fixedFetch("jb", time.Hour, func() time.Time { return *now }, &b))
	require.NoError(t, err)

	assert.EqualValues(t, 1, a.Load())
	assert.EqualValues(t, 1, b.Load())
}

func TestTokenCache_SingleFlightRefresh(t *testing.T) {
	c := NewTokenCache(nil)
	ctx := context.Background()

	var calls atomic.Int32
	slowFetch := func(context.Context) (string, time.Time, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return "tok", time.Now().Add(time.Hour), nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := c.Token(ctx, "AMAZON", slowFetch)
			assert.NoError(t, err)
			assert.Equal(t, "tok", got)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
}

func TestTokenCache_FetchErrorNotCached(t *testing.T) {
	c, _ := newTestTokenCache(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	boom := errors.New("auth endpoint down")
	_, err := c.Token(ctx, "EKART", func(context.Context) (string, time.Time, error) {
		return "", time.Time{}, boom
	})
	require.ErrorIs(t, err, boom)

	// A later successful fetch is not blocked by the earlier failure.
	got, err := c.Token(ctx, "EKART", func(context.Context) (string, time.Time, error) {
		return "tok-2", time.Now().Add(time.Hour), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-2", got)
}

func TestTokenCache_InvalidateForcesRefetch(t *testing.T) {
	c, now := newTestTokenCache(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()

	var calls atomic.Int32
	fetch := fixedFetch("tok", time.Hour, func() time.Time { return *now }, &calls)

	_, err := c.Token(ctx, "SHIPROCKET", fetch)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "SHIPROCKET"))

	_, err = c.Token(ctx, "SHIPROCKET", fetch)
	require.NoError(t, err)
	assert.EqualValues(t, 2, calls.Load())
}
