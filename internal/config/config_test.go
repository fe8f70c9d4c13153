package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	require.NoError(t, err)
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DEFAULT_STORE_ID", "SETTINGS_CACHE_TTL_SECONDS", "ROOM_LOCK_TTL_SECONDS", "ACCESS_TOKEN_TTL_MINUTES", "REDIS_DB", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, "main-store", cfg.StoreID)
	require.Equal(t, 30*time.Second, cfg.SettingsCacheTTL)
	require.Equal(t, 15*time.Second, cfg.RoomLockTTL)
	require.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	require.Equal(t, 0, cfg.RedisDB)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, "json", cfg.LogFormat)
}

func TestLoadReadsOverridesAndRejectsBadNumbers(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DEFAULT_STORE_ID", "branch-2")
	t.Setenv("SETTINGS_CACHE_TTL_SECONDS", "5")
	t.Setenv("ROOM_LOCK_TTL_SECONDS", "-3")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "abc")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, "branch-2", cfg.StoreID)
	require.Equal(t, 5*time.Second, cfg.SettingsCacheTTL)
	require.Equal(t, 15*time.Second, cfg.RoomLockTTL)
	require.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	require.Equal(t, 2, cfg.RedisDB)
}
