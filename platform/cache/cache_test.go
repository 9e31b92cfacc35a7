package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(client, time.Minute), mr
}

func TestCache_SetGetRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant:abc", payload{Name: "acme", Count: 3}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	var got payload
	if err := c.Get(ctx, "tenant:abc", &got); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Name != "acme" || got.Count != 3 {
		t.Fatalf("expected {acme 3}, got %+v", got)
	}
}

func TestCache_MissAfterInvalidate(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant:abc", payload{Name: "acme"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := c.Invalidate(ctx, "tenant:abc"); err != nil {
		t.Fatalf("invalidate failed: %v", err)
	}

	var got payload
	if err := c.Get(ctx, "tenant:abc", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
}

func TestCache_MissAfterTTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "tenant:abc", payload{Name: "acme"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	var got payload
	if err := c.Get(ctx, "tenant:abc", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after TTL, got %v", err)
	}
}

func TestCache_NilCacheIsAMiss(t *testing.T) {
	var c *Cache
	ctx := context.Background()

	if err := c.Set(ctx, "k", payload{}); err != nil {
		t.Fatalf("nil cache set should be a no-op, got %v", err)
	}
	var got payload
	if err := c.Get(ctx, "k", &got); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss from nil cache, got %v", err)
	}
}
