// Package transport provides the single retrying HTTP client used beneath
// every provider adapter. All failures are converted into a tagged Result;
// the client never returns a Go error to its caller.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// maxResponseSize caps response bodies to prevent memory exhaustion (10MB).
const maxResponseSize = 10 * 1024 * 1024

// Config tunes the retrying client.
type Config struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	// BaseDelay is the linear backoff unit: the wait before attempt n+1 is
	// BaseDelay × n, capped at MaxDelay.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration
	// Timeout is the per-request HTTP timeout, independent of backoff.
	Timeout time.Duration
}

// DefaultConfig returns the standard transport tuning.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Timeout:     30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = def.BaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
}

// Result is the tagged outcome of a request. Exactly one of Body (on
// success) or Error (on failure) is meaningful. StatusCode is zero when the
// request never reached the server.
type Result struct {
	Success    bool
	StatusCode int
	Body       []byte
	Header     http.Header
	Error      string
	Attempts   int
}

// Client is the retrying HTTP transport. Transient failures (5xx, 429,
// network errors, timeouts) are retried with linear backoff; other 4xx
// responses fail immediately since retrying a rejected request cannot
// succeed.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// New creates a transport client. Zero config fields fall back to defaults.
func New(cfg Config, log *zap.Logger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Do issues the request, retrying transient failures. Request and response
// are logged at status level only — never bodies, never headers, since both
// can carry credentials.
func (c *Client) Do(ctx context.Context, method, url string, body []byte, headers map[string]string) Result {
	// A request that cannot even be constructed will fail identically on
	// every attempt, so it is rejected before the retry loop.
	if _, err := http.NewRequestWithContext(ctx, method, url, nil); err != nil {
		return Result{Error: fmt.Sprintf("invalid request: %v", err), Attempts: 1}
	}

	var last Result

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		c.log.Debug("outbound request",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("attempt", attempt),
		)

		last = c.doOnce(ctx, method, url, body, headers)
		last.Attempts = attempt

		c.log.Info("outbound response",
			zap.String("method", method),
			zap.String("url", url),
			zap.Int("status", last.StatusCode),
			zap.Bool("success", last.Success),
			zap.Int("attempt", attempt),
		)

		if last.Success || !retryable(last.StatusCode) {
			return last
		}
		if attempt == c.cfg.MaxAttempts {
			break
		}
		if err := c.sleep(ctx, c.backoff(attempt)); err != nil {
			last.Error = err.Error()
			return last
		}
	}

	return last
}

// doOnce performs a single HTTP exchange.
func (c *Client) doOnce(ctx context.Context, method, url string, body []byte, headers map[string]string) Result {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		// Malformed URL or method: not retryable, not a server failure.
		return Result{StatusCode: 0, Error: fmt.Sprintf("invalid request: %v", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Error: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return Result{StatusCode: resp.StatusCode, Error: fmt.Sprintf("reading response: %v", err)}
	}

	if resp.StatusCode >= 400 {
		return Result{
			StatusCode: resp.StatusCode,
			Header:     resp.Header,
			Body:       respBody,
			Error:      fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	return Result{
		Success:    true,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}
}

// retryable reports whether a failed exchange should be retried. Network
// errors (status 0) and server-side failures are transient; client errors
// are not, except 429 which signals throttling.
func retryable(status int) bool {
	if status == 0 {
		return true
	}
	if status == http.StatusTooManyRequests {
		return true
	}
	return status >= 500
}

// backoff returns the wait after the given attempt, capped at MaxDelay.
func (c *Client) backoff(attempt int) time.Duration {
	d := time.Duration(attempt) * c.cfg.BaseDelay
	if d > c.cfg.MaxDelay {
		d = c.cfg.MaxDelay
	}
	return d
}

// sleep waits for the backoff delay or until the context is cancelled.
func (c *Client) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
