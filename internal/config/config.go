package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	SettingsCacheTTL      time.Duration
	RoomLockTTL           time.Duration
	AuthSecret            string
	AccessTokenTTLMinutes int
	LogLevel              string
	LogFormat             string
}

// Load reads configuration from the environment, after an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	cfg := Config{
		Port:                  valueOrDefault(k.String("PORT"), "8080"),
		AllowedOrigin:         valueOrDefault(k.String("ALLOWED_ORIGIN"), "http://127.0.0.1:3000"),
		DatabaseURL:           strings.TrimSpace(k.String("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(k.String("REDIS_ADDR")),
		RedisPassword:         k.String("REDIS_PASSWORD"),
		RedisDB:               parseInt(k.String("REDIS_DB"), 0, 0),
		StoreID:               valueOrDefault(k.String("DEFAULT_STORE_ID"), "main-store"),
		SettingsCacheTTL:      time.Duration(parseInt(k.String("SETTINGS_CACHE_TTL_SECONDS"), 30, 1)) * time.Second,
		RoomLockTTL:           time.Duration(parseInt(k.String("ROOM_LOCK_TTL_SECONDS"), 15, 1)) * time.Second,
		AuthSecret:            strings.TrimSpace(k.String("AUTH_SECRET")),
		AccessTokenTTLMinutes: parseInt(k.String("ACCESS_TOKEN_TTL_MINUTES"), 480, 1),
		LogLevel:              valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:             valueOrDefault(k.String("LOG_FORMAT"), "json"),
	}

	return cfg, nil
}

func (c Config) Address() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// parseInt falls back when the value is missing, malformed or below min.
func parseInt(value string, fallback int, min int) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || n < min {
		return fallback
	}
	return n
}
