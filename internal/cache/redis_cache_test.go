package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/chipheocrypto/c124/internal/domain"
)

func newTestCache(t *testing.T) (*RedisSettingsCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisSettingsCache(client), mr
}

func TestRedisSettingsCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, ok, err := c.Get(ctx, "main-store")
	require.NoError(t, err)
	require.False(t, ok)

	settings := domain.DefaultSettings("main-store")
	settings.TimeRoundingMinutes = 15
	settings.VATRate = decimal.RequireFromString("7.5")
	require.NoError(t, c.Set(ctx, &settings, time.Minute))

	got, ok, err := c.Get(ctx, "main-store")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 15, got.TimeRoundingMinutes)
	require.True(t, got.VATRate.Equal(settings.VATRate))

	require.NoError(t, c.Delete(ctx, "main-store"))
	_, ok, err = c.Get(ctx, "main-store")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisSettingsCacheExpires(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	settings := domain.DefaultSettings("main-store")
	require.NoError(t, c.Set(ctx, &settings, 30*time.Second))

	mr.FastForward(31 * time.Second)

	_, ok, err := c.Get(ctx, "main-store")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNoopSettingsCacheAlwaysMisses(t *testing.T) {
	var c SettingsCache = NoopSettingsCache{}
	settings := domain.DefaultSettings("main-store")
	require.NoError(t, c.Set(context.Background(), &settings, time.Minute))

	_, ok, err := c.Get(context.Background(), "main-store")
	require.NoError(t, err)
	require.False(t, ok)
}
