// Package config loads moim configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/opensource-finance/moim/internal/domain"
)

// Load reads optional dotenv files (".env" when none are given), then parses
// MOIM_* environment variables over the community defaults.
// Variables already set in the process environment take precedence over dotenv files.
func Load(files ...string) (*domain.Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load dotenv: %w", err)
	}

	cfg := domain.DefaultConfig()
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	switch cfg.Profile {
	case domain.ProfileCommunity:
	case domain.ProfilePro:
		cfg.ApplyProProfile()
	default:
		return nil, fmt.Errorf("unknown profile: %s", cfg.Profile)
	}

	if cfg.Notify.MaxAttempts < 1 {
		cfg.Notify.MaxAttempts = 1
	}
	return cfg, nil
}

// LogLevel maps the configured level name to a slog level.
func LogLevel(cfg domain.LoggingConfig) slog.Level {
	switch strings.ToLower(cfg.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
