package tenants

import (
	"context"
	"errors"

	"leadrouter/platform/cache"

	"github.com/google/uuid"
)

// Reader is the lookup interface consumed by the routing module.
type Reader interface {
	Get(ctx context.Context, id uuid.UUID) (Tenant, error)
}

// Service wraps the repository with an explicit, injected TTL cache. Cache
// misses and cache errors both fall through to the database; a broken cache
// degrades latency, not correctness.
type Service struct {
	repo  *Repository
	cache *cache.Cache
}

func NewService(repo *Repository, c *cache.Cache) *Service {
	return &Service{repo: repo, cache: c}
}

func cacheKey(id uuid.UUID) string {
	return "tenants:" + id.String()
}

// Get returns the tenant snapshot, serving from cache when fresh.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Tenant, error) {
	var cached Tenant
	if err := s.cache.Get(ctx, cacheKey(id), &cached); err == nil && cached.ID == id {
		return cached, nil
	} else if err != nil && !errors.Is(err, cache.ErrMiss) {
		// fall through to the database on cache failure
	}

	tenant, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Tenant{}, err
	}

	_ = s.cache.Set(ctx, cacheKey(id), tenant)
	return tenant, nil
}

// Invalidate drops a tenant from the cache after an operator change.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID) error {
	return s.cache.Invalidate(ctx, cacheKey(id))
}

var _ Reader = (*Service)(nil)
