package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastClient() *Client {
	return New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Timeout: 2 * time.Second}, nil)
}

func TestClient_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "POST", srv.URL, []byte(`{}`), nil)

	require.True(t, res.Success)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(res.Body))
	assert.Equal(t, 1, res.Attempts)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "GET", srv.URL, nil, nil)

	require.True(t, res.Success)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"bad sku"}`))
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "POST", srv.URL, []byte(`{}`), nil)

	require.False(t, res.Success)
	assert.Equal(t, http.StatusUnprocessableEntity, res.StatusCode)
	assert.Contains(t, res.Error, "HTTP 422")
	assert.EqualValues(t, 1, calls.Load())
	// Failure body is preserved so adapters can surface provider messages.
	assert.Contains(t, string(res.Body), "bad sku")
}

func TestClient_RetriesTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "GET", srv.URL, nil, nil)

	require.True(t, res.Success)
	assert.EqualValues(t, 2, calls.Load())
}

func TestClient_ExhaustedRetriesReturnLastError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "GET", srv.URL, nil, nil)

	require.False(t, res.Success)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, 3, res.Attempts)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_NetworkErrorRetriedThenSurfaced(t *testing.T) {
	// Closed server: every attempt is a connection error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := fastClient().Do(context.Background(), "GET", url, nil, nil)

	require.False(t, res.Success)
	assert.Equal(t, 0, res.StatusCode)
	assert.NotEmpty(t, res.Error)
	assert.Equal(t, 3, res.Attempts)
}

func TestClient_MalformedRequestFailsWithoutRetry(t *testing.T) {
	res := fastClient().Do(context.Background(), "GET", "http://bad host/path", nil, nil)

	require.False(t, res.Success)
	assert.Equal(t, 0, res.StatusCode)
	assert.Contains(t, res.Error, "invalid request")
	assert.Equal(t, 1, res.Attempts)
}

func TestClient_ContextCancellationStopsBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := New(Config{MaxAttempts: 3, BaseDelay: 10 * time.Second, Timeout: time.Second}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	res := client.Do(ctx, "GET", srv.URL, nil, nil)

	require.False(t, res.Success)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Contains(t, res.Error, "context deadline exceeded")
}

func TestClient_CustomHeadersSent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token-123", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := fastClient().Do(context.Background(), "POST", srv.URL, []byte("a=b"), map[string]string{
		"X-Api-Key":    "token-123",
		"Content-Type": "application/x-www-form-urlencoded",
	})
	require.True(t, res.Success)
}
