package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/resilience"
	"github.com/oms/backend/internal/infrastructure/transport"
)

func newTestGateway(breakerCfg resilience.BreakerConfig) *Gateway {
	client := transport.New(transport.Config{MaxAttempts: 1, BaseDelay: time.Millisecond}, nil)
	return New(client, resilience.NewLimiterRegistry(nil), resilience.NewBreakerRegistry(breakerCfg, nil), nil)
}

func TestGateway_SuccessPassesThrough(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"orders":[]}`))
	}))
	defer srv.Close()

	g := newTestGateway(resilience.BreakerConfig{})
	res, err := g.Do(context.Background(), "SHOPIFY", "GET", srv.URL, nil, nil)

	require.NoError(t, err)
	require.True(t, res.Success)
	assert.JSONEq(t, `{"orders":[]}`, string(res.Body))
}

func TestGateway_ServerErrorsTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := newTestGateway(resilience.BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := g.Do(ctx, "MEESHO", "GET", srv.URL, nil, nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
	}

	// Third call is rejected before reaching the network.
	_, err := g.Do(ctx, "MEESHO", "GET", srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, resilience.IsCircuitOpen(err))
	assert.ErrorIs(t, err, integration.ErrProviderUnavailable)
	assert.True(t, integration.IsRetryable(err))
}

func TestGateway_ClientErrorsDoNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	g := newTestGateway(resilience.BreakerConfig{FailureThreshold: 2})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := g.Do(ctx, "NYKAA", "GET", srv.URL, nil, nil)
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	}
}

func TestGateway_OpenBreakerSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGateway(resilience.BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	_, err := g.Do(ctx, "DTDC", "GET", srv.URL, nil, nil)
	require.NoError(t, err)
	require.EqualValues(t, 1, calls.Load())

	_, err = g.Do(ctx, "DTDC", "GET", srv.URL, nil, nil)
	require.Error(t, err)
	assert.EqualValues(t, 1, calls.Load())
}

func TestGateway_ProvidersAreIsolated(t *testing.T) {
	okSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer okSrv.Close()
	badSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer badSrv.Close()

	g := newTestGateway(resilience.BreakerConfig{FailureThreshold: 1})
	ctx := context.Background()

	_, err := g.Do(ctx, "EKART", "GET", badSrv.URL, nil, nil)
	require.NoError(t, err)
	_, err = g.Do(ctx, "EKART", "GET", badSrv.URL, nil, nil)
	require.Error(t, err)

	// A tripped EKART breaker must not affect SHADOWFAX.
	res, err := g.Do(ctx, "SHADOWFAX", "GET", okSrv.URL, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestGateway_Health(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := newTestGateway(resilience.BreakerConfig{})
	_, err := g.Do(context.Background(), "SHIPROCKET", "GET", srv.URL, nil, nil)
	require.NoError(t, err)

	health := g.Health()
	require.Len(t, health, 1)
	assert.Equal(t, "SHIPROCKET", health[0].Provider)
	assert.Equal(t, resilience.StateClosed, health[0].BreakerState)
	assert.Equal(t, 0, health[0].QueueLength)
}
