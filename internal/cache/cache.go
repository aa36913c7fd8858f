package cache

import (
	"context"
	"time"

	"chaikadai/backend/internal/domain"
)

// MenuCache fronts the read-heavy category menu lookups.
type MenuCache interface {
	Get(ctx context.Context, category string) ([]domain.MenuItem, bool, error)
	Set(ctx context.Context, category string, items []domain.MenuItem, ttl time.Duration) error
	Invalidate(ctx context.Context, categories ...string) error
}

type NoopMenuCache struct{}

func (NoopMenuCache) Get(_ context.Context, _ string) ([]domain.MenuItem, bool, error) {
	return nil, false, nil
}

func (NoopMenuCache) Set(_ context.Context, _ string, _ []domain.MenuItem, _ time.Duration) error {
	return nil
}

func (NoopMenuCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
