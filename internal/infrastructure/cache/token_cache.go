package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// expiryBuffer is subtracted from every token's expiry so a token is never
// used in the last minute of its life. Providers reject tokens that expire
// mid-request.
const expiryBuffer = 60 * time.Second

// FetchFunc obtains a fresh token for one provider, returning the token and
// its absolute expiry.
type FetchFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenProvider hands out cached OAuth/login tokens, refreshing through the
// supplied fetch function when the cached token is missing or near expiry.
type TokenProvider interface {
	Token(ctx context.Context, provider string, fetch FetchFunc) (string, error)
	Invalidate(ctx context.Context, provider string) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type tokenEntry struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// TokenCache is the in-memory TokenProvider, suitable for single-instance
// deployments and testing. Refreshes are single-flight per provider:
// concurrent callers finding a stale token block on one fetch instead of
// stampeding the provider's auth endpoint.
type TokenCache struct {
	log *zap.Logger
	now func() time.Time

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

// NewTokenCache creates an empty in-memory token cache.
func NewTokenCache(log *zap.Logger) *TokenCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &TokenCache{
		log:     log,
		now:     time.Now,
		entries: make(map[string]*tokenEntry),
	}
}

// Token returns the cached token for provider, fetching a new one when none
// is cached or the cached one is inside the expiry buffer.
func (c *TokenCache) Token(ctx context.Context, provider string, fetch FetchFunc) (string, error) {
	e := c.entry(provider)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token != "" && c.now().Before(e.expiresAt.Add(-expiryBuffer)) {
		return e.token, nil
	}

	token, expiresAt, err := fetch(ctx)
	if err != nil {
		return "", err
	}
	e.token = token
	e.expiresAt = expiresAt

	c.log.Debug("token refreshed",
		zap.String("provider", provider),
		zap.Time("expiresAt", expiresAt),
	)
	return token, nil
}

// Invalidate drops the cached token so the next Token call refetches. Used
// after a provider rejects a token before its recorded expiry.
func (c *TokenCache) Invalidate(_ context.Context, provider string) error {
	e := c.entry(provider)
	e.mu.Lock()
	e.token = ""
	e.expiresAt = time.Time{}
	e.mu.Unlock()
	return nil
}

func (c *TokenCache) entry(provider string) *tokenEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[provider]
	if !ok {
		e = &tokenEntry{}
		c.entries[provider] = e
	}
	return e
}

var _ TokenProvider = (*TokenCache)(nil)
