package cache

import (
	"context"
	"time"

	"restopos/backend/internal/domain"
)

type UnitCache interface {
	Get(ctx context.Context, id string) (*domain.Unit, bool, error)
	Set(ctx context.Context, unit *domain.Unit, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

type NoopUnitCache struct{}

func (NoopUnitCache) Get(_ context.Context, _ string) (*domain.Unit, bool, error) {
	return nil, false, nil
}

func (NoopUnitCache) Set(_ context.Context, _ *domain.Unit, _ time.Duration) error {
	return nil
}

func (NoopUnitCache) Delete(_ context.Context, _ string) error {
	return nil
}
