package cache

import (
	"context"
	"time"

	"github.com/chipheocrypto/c124/internal/domain"
)

// SettingsCache holds per-store settings between reads. A miss is (nil, false, nil).
type SettingsCache interface {
	Get(ctx context.Context, storeID string) (*domain.Settings, bool, error)
	Set(ctx context.Context, settings *domain.Settings, ttl time.Duration) error
	Delete(ctx context.Context, storeID string) error
}

type NoopSettingsCache struct{}

func (NoopSettingsCache) Get(_ context.Context, _ string) (*domain.Settings, bool, error) {
	return nil, false, nil
}

func (NoopSettingsCache) Set(_ context.Context, _ *domain.Settings, _ time.Duration) error {
	return nil
}

func (NoopSettingsCache) Delete(_ context.Context, _ string) error {
	return nil
}
