package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/chipheocrypto/c124/internal/cache"
	"github.com/chipheocrypto/c124/internal/config"
	"github.com/chipheocrypto/c124/internal/httpapi"
	"github.com/chipheocrypto/c124/internal/lock"
	"github.com/chipheocrypto/c124/internal/obs"
	"github.com/chipheocrypto/c124/internal/service"
	"github.com/chipheocrypto/c124/internal/store"
	"github.com/chipheocrypto/c124/internal/store/memory"
	pgstore "github.com/chipheocrypto/c124/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal().Err(err).Msg("postgres migration failed")
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info().Msg("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info().Msg("repository: in-memory")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics("c124", reg)

	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	opts := []service.Option{
		service.WithCredentials(auth),
		service.WithMetrics(metrics),
		service.WithLogger(logger.With().Str("component", "service").Logger()),
	}
	opts, closeRedis := withRedis(ctx, cfg, logger, opts)
	if closeRedis != nil {
		closers = append(closers, closeRedis)
	}

	svc := service.New(repo, cfg.StoreID, opts...)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin,
		httpapi.WithLogger(logger.With().Str("component", "http").Logger()),
		httpapi.WithMetrics(metrics, reg),
	)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		logger.Info().Str("addr", cfg.Address()).Msg("room POS listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

// withRedis backs the settings cache and the room locks with Redis when it is
// configured and reachable, and keeps the in-process defaults otherwise.
func withRedis(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts []service.Option) ([]service.Option, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info().Msg("cache: noop, locks: local")
		return append(opts,
			service.WithSettingsCache(cache.NoopSettingsCache{}, cfg.SettingsCacheTTL),
			service.WithLocker(lock.NewLocalLocker(), cfg.RoomLockTTL),
		), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	settingsCache := cache.NewRedisSettingsCache(client)
	if err := settingsCache.Ping(ctx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, using noop cache and local locks")
		_ = client.Close()
		return append(opts,
			service.WithSettingsCache(cache.NoopSettingsCache{}, cfg.SettingsCacheTTL),
			service.WithLocker(lock.NewLocalLocker(), cfg.RoomLockTTL),
		), nil
	}

	logger.Info().Str("addr", cfg.RedisAddr).Msg("cache: redis, locks: redis")
	return append(opts,
		service.WithSettingsCache(settingsCache, cfg.SettingsCacheTTL),
		service.WithLocker(lock.RedisLocker{R: client, RetryBackoff: 25 * time.Millisecond}, cfg.RoomLockTTL),
	), client.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.AuthSecret == "dev-change-me" || cfg.AuthSecret == "change-me-in-production-change-me" {
		return fmt.Errorf("AUTH_SECRET still holds a placeholder value")
	}
	return nil
}
