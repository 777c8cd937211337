package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/moim/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Profile != domain.ProfileCommunity {
		t.Errorf("expected community profile, got %s", cfg.Profile)
	}
	if cfg.Repository.Driver != "sqlite" {
		t.Errorf("expected sqlite, got %s", cfg.Repository.Driver)
	}
	if cfg.Cache.Type != "memory" || cfg.EventBus.Type != "channel" {
		t.Errorf("unexpected backends: cache=%s bus=%s", cfg.Cache.Type, cfg.EventBus.Type)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Notify.MaxAttempts != 3 || cfg.Notify.RetryDelay != 2*time.Second {
		t.Errorf("unexpected notify defaults: %+v", cfg.Notify)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MOIM_SERVER_PORT", "9090")
	t.Setenv("MOIM_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("MOIM_NOTIFY_TENANTS", "club-a,club-b")
	t.Setenv("MOIM_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected jwt secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if len(cfg.Notify.Tenants) != 2 || cfg.Notify.Tenants[1] != "club-b" {
		t.Errorf("unexpected tenants: %v", cfg.Notify.Tenants)
	}
	if LogLevel(cfg.Logging) != slog.LevelDebug {
		t.Errorf("expected debug level")
	}
}

func TestLoadProProfile(t *testing.T) {
	t.Setenv("MOIM_PROFILE", "pro")
	t.Setenv("MOIM_CACHE_REDIS_ADDR", "redis.internal:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
		t.Errorf("expected postgres + nats, got %s + %s", cfg.Repository.Driver, cfg.EventBus.Type)
	}
	if cfg.Cache.RedisAddr != "redis.internal:6379" {
		t.Errorf("expected configured redis address to be kept, got %s", cfg.Cache.RedisAddr)
	}
}

func TestLoadDotenv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("MOIM_NOTIFY_FROM_NAME=독서모임\n"), 0o600); err != nil {
		t.Fatalf("failed to write dotenv: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("MOIM_NOTIFY_FROM_NAME") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Notify.FromName != "독서모임" {
		t.Errorf("expected from name from dotenv, got %q", cfg.Notify.FromName)
	}
}

func TestLoadUnknownProfile(t *testing.T) {
	t.Setenv("MOIM_PROFILE", "enterprise")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for unknown profile")
	}
}
