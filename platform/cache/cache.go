// Package cache provides a small Redis-backed TTL cache.
// This is part of the platform layer and contains no business logic.
//
// The cache is injected explicitly into services that need it; there is no
// module-level mutable state. Invalidation is by key, so callers own their
// key scheme.
package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned when a key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Cache is a JSON-serializing TTL cache on top of Redis.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New creates a cache from a Redis URL. A nil *Cache is safe to use and
// behaves as a permanent miss, so callers don't need to branch on whether
// caching is configured.
func New(redisURL string, tlsInsecure bool, ttl time.Duration) (*Cache, error) {
	if redisURL == "" {
		return nil, nil
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && tlsInsecure {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Cache{client: redis.NewClient(opt), ttl: ttl}, nil
}

// NewWithClient wraps an existing Redis client. Used by tests with miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get unmarshals the cached value for key into dest.
func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	if c == nil || c.client == nil {
		return ErrMiss
	}

	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Set stores value under key for the configured TTL.
func (c *Cache) Set(ctx context.Context, key string, value any) error {
	if c == nil || c.client == nil {
		return nil
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate removes a key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
