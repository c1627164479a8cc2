package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTokenCache implements TokenProvider on Redis so multiple instances
// share one token per provider instead of each minting their own. Providers
// like Shiprocket invalidate older tokens when a new login succeeds, which
// makes per-instance caches actively harmful.
type RedisTokenCache struct {
	client    *redis.Client
	keyPrefix string
	log       *zap.Logger

	// local single-flight so concurrent refreshes on one instance collapse
	// into a single fetch.
	local *TokenCache
}

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisTokenCache connects to Redis and verifies the connection.
func NewRedisTokenCache(cfg RedisConfig, log *zap.Logger) (*RedisTokenCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return NewRedisTokenCacheWithClient(client, "", log), nil
}

// NewRedisTokenCacheWithClient wraps an existing Redis client. Useful for
// testing or when sharing a client across components.
func NewRedisTokenCacheWithClient(client *redis.Client, keyPrefix string, log *zap.Logger) *RedisTokenCache {
	if keyPrefix == "" {
		keyPrefix = "integration:token:"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisTokenCache{
		client:    client,
		keyPrefix: keyPrefix,
		log:       log,
		local:     NewTokenCache(log),
	}
}

// Token checks Redis first, then refreshes through the local single-flight
// cache and writes the result back with a TTL ending at the buffered expiry.
func (c *RedisTokenCache) Token(ctx context.Context, provider string, fetch FetchFunc) (string, error) {
	key := c.keyPrefix + provider

	token, err := c.client.Get(ctx, key).Result()
	if err == nil && token != "" {
		return token, nil
	}
	if err != nil && err != redis.Nil {
		// Redis being down should degrade to direct fetching, not block
		// every provider call.
		c.log.Warn("redis token lookup failed, fetching directly",
			zap.String("provider", provider),
			zap.Error(err),
		)
	}

	return c.local.Token(ctx, provider, func(ctx context.Context) (string, time.Time, error) {
		token, expiresAt, err := fetch(ctx)
		if err != nil {
			return "", time.Time{}, err
		}
		ttl := time.Until(expiresAt.Add(-expiryBuffer))
		if ttl > 0 {
			if err := c.client.Set(ctx, key, token, ttl).Err(); err != nil {
				c.log.Warn("caching token in redis failed",
					zap.String("provider", provider),
					zap.Error(err),
				)
			}
		}
		return token, expiresAt, nil
	})
}

// Invalidate drops the token from Redis and the local cache.
func (c *RedisTokenCache) Invalidate(ctx context.Context, provider string) error {
	_ = c.local.Invalidate(ctx, provider)
	if err := c.client.Del(ctx, c.keyPrefix+provider).Err(); err != nil {
		return fmt.Errorf("invalidating token for %s: %w", provider, err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}

var _ TokenProvider = (*RedisTokenCache)(nil)
