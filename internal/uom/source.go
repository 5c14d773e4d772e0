package uom

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"restopos/backend/internal/cache"
	"restopos/backend/internal/domain"
	"restopos/backend/internal/store"
)

// CachedSource serves unit lookups from cache and falls back to the
// repository. Lookups made inside a store transaction skip the cache so a
// whole chain is read from the transaction's snapshot.
type CachedSource struct {
	repo  UnitSource
	cache cache.UnitCache
	ttl   time.Duration
}

func NewCachedSource(repo UnitSource, unitCache cache.UnitCache, ttl time.Duration) *CachedSource {
	if unitCache == nil {
		unitCache = cache.NoopUnitCache{}
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedSource{repo: repo, cache: unitCache, ttl: ttl}
}

func (s *CachedSource) GetUnit(ctx context.Context, id string) (*domain.Unit, error) {
	if store.InTx(ctx) {
		return s.repo.GetUnit(ctx, id)
	}

	cached, ok, err := s.cache.Get(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("unit_id", id).Msg("unit cache read failed")
	} else if ok {
		return cached, nil
	}

	unit, err := s.repo.GetUnit(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, unit, s.ttl); err != nil {
		log.Warn().Err(err).Str("unit_id", id).Msg("unit cache write failed")
	}
	return unit, nil
}

func (s *CachedSource) Invalidate(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		log.Warn().Err(err).Str("unit_id", id).Msg("unit cache invalidation failed")
	}
}
