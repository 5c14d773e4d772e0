package config

import (
	"testing"
	"time"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "Production")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("UNIT_CACHE_TTL_SECONDS", "60")
	t.Setenv("MAX_UNIT_HOPS", "8")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090, got %s", cfg.Address())
	}
	if !cfg.IsProduction() {
		t.Fatalf("expected production env, got %q", cfg.Env)
	}
	if cfg.RedisDB != 3 || cfg.UnitCacheTTL() != time.Minute || cfg.MaxUnitHops != 8 {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestLoadClampsInvalidDurations(t *testing.T) {
	t.Setenv("UNIT_CACHE_TTL_SECONDS", "0")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-5")
	t.Setenv("MAX_UNIT_HOPS", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.UnitCacheTTL() != 5*time.Minute {
		t.Fatalf("expected default cache ttl, got %v", cfg.UnitCacheTTL())
	}
	if cfg.AccessTokenTTL() != 8*time.Hour {
		t.Fatalf("expected default token ttl, got %v", cfg.AccessTokenTTL())
	}
	if cfg.MaxUnitHops != 16 {
		t.Fatalf("expected default hop limit, got %d", cfg.MaxUnitHops)
	}
}
