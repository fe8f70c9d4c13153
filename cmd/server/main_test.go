package main

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"

	"github.com/chipheocrypto/c124/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: "change-me-in-production-change-me"}); err == nil {
		t.Fatalf("expected placeholder secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestWithRedisFallsBackWhenUnreachable(t *testing.T) {
	cfg := config.Config{RedisAddr: "127.0.0.1:1"}
	opts, closeFn := withRedis(context.Background(), cfg, zerolog.Nop(), nil)
	if closeFn != nil {
		t.Fatalf("expected no redis closer when redis is unreachable")
	}
	if len(opts) != 2 {
		t.Fatalf("expected cache and locker options, got %d", len(opts))
	}
}

func TestWithRedisUsesReachableServer(t *testing.T) {
	mr := miniredis.RunT(t)
	opts, closeFn := withRedis(context.Background(), config.Config{RedisAddr: mr.Addr()}, zerolog.Nop(), nil)
	if closeFn == nil {
		t.Fatalf("expected redis client closer")
	}
	defer func() { _ = closeFn() }()
	if len(opts) != 2 {
		t.Fatalf("expected cache and locker options, got %d", len(opts))
	}
}
