// Moim - Deposits, refunds and site content for membership programs.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opensource-finance/moim/internal/api"
	"github.com/opensource-finance/moim/internal/bus"
	"github.com/opensource-finance/moim/internal/cache"
	"github.com/opensource-finance/moim/internal/config"
	"github.com/opensource-finance/moim/internal/domain"
	"github.com/opensource-finance/moim/internal/export"
	"github.com/opensource-finance/moim/internal/metrics"
	"github.com/opensource-finance/moim/internal/notify"
	"github.com/opensource-finance/moim/internal/refund"
	"github.com/opensource-finance/moim/internal/repository"
	"github.com/opensource-finance/moim/internal/rollback"
	"github.com/opensource-finance/moim/internal/stats"
	"github.com/opensource-finance/moim/internal/survey"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration (.env, then MOIM_* variables)
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(newLogger(os.Stdout, cfg.Logging))

	// Log startup
	slog.Info("starting moim",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Metrics are optional; every consumer accepts nil.
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	// Initialize Refund Policy Engine
	engine, err := refund.NewEngine()
	if err != nil {
		slog.Error("failed to initialize refund engine", "error", err)
		os.Exit(1)
	}

	// Load policies from database (configure via PUT /admin/policies/{programId})
	if err := loadPoliciesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load refund policies", "error", err)
		os.Exit(1)
	}
	slog.Info("refund engine initialized", "policies_count", engine.Count())

	// Follow policy edits made on other instances
	policySub, err := engine.Watch(ctx, busImpl, repo)
	if err != nil {
		slog.Error("failed to watch policy updates", "error", err)
		os.Exit(1)
	}
	defer policySub.Unsubscribe()

	// Initialize domain services
	statsSvc := stats.NewService(repo, cacheImpl)
	refunds := refund.NewService(repo, engine, statsSvc, m)
	surveys := survey.NewProcessor(repo, refunds, busImpl)
	content := rollback.NewContentService(repo)
	rollbacks := rollback.NewService(repo, busImpl, m)
	exporter := export.NewExporter(repo, refunds)

	// Initialize notification delivery
	senders := []notify.Sender{notify.LogSender{}}
	if cfg.Notify.SendGridKey != "" {
		senders = append(senders, notify.NewSendGridSender(cfg.Notify.SendGridKey, cfg.Notify.FromName, cfg.Notify.FromEmail))
		slog.Info("email delivery enabled", "from", cfg.Notify.FromEmail)
	} else {
		slog.Info("email delivery disabled - set MOIM_NOTIFY_SENDGRID_KEY to enable")
	}
	dispatcher := notify.NewDispatcher(repo, m, notify.DispatcherConfig{
		MaxAttempts: cfg.Notify.MaxAttempts,
		RetryDelay:  cfg.Notify.RetryDelay,
	}, senders...)

	notifyWorker := notify.NewWorker(busImpl, dispatcher)
	if err := notifyWorker.Start(notify.Config{TenantIDs: cfg.Notify.Tenants}); err != nil {
		slog.Error("failed to start notification worker", "error", err)
		os.Exit(1)
	}
	workerStats := notifyWorker.GetStats()
	slog.Info("notification worker subscribed",
		"subscriptions", workerStats.SubscriptionCount,
		"topics", workerStats.Topics,
	)

	if cfg.Auth.JWTSecret == "" {
		slog.Warn("admin API disabled - set MOIM_AUTH_JWT_SECRET to enable")
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Services{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Refunds:   refunds,
		Stats:     statsSvc,
		Surveys:   surveys,
		Content:   content,
		Rollbacks: rollbacks,
		Notifier:  dispatcher,
		Exporter:  exporter,
		Metrics:   m,
		Auth:      cfg.Auth,
		Version:   Version,
	})

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("moim is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop the notification worker first
	if err := notifyWorker.Stop(); err != nil {
		slog.Error("failed to stop notification worker", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("moim shutdown complete")
}

func newLogger(w io.Writer, cfg domain.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: config.LogLevel(cfg)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// loadPoliciesFromDatabase loads every tenant's refund policies into the engine.
func loadPoliciesFromDatabase(ctx context.Context, repo domain.Repository, engine *refund.Engine) error {
	tables, err := repo.ListPolicyTables(ctx, domain.WildcardTenant)
	if err != nil {
		slog.Warn("failed to list refund policies from database", "error", err)
		return nil // Start without policies - they can be added via API
	}

	if len(tables) == 0 {
		slog.Info("no refund policies in database - configure via PUT /admin/policies/{programId}")
		return nil
	}

	slog.Info("loading refund policies from database", "count", len(tables))
	return engine.LoadAll(tables)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║                  MOIM                     ║")
	fmt.Println("  ║   Deposits and refunds for study groups   ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /programs                              - List programs")
	fmt.Println("    GET  /programs/{id}/sessions                - Session dates")
	fmt.Println("    GET  /programs/{id}/members/{memberId}/refund - Refund preview")
	fmt.Println("    POST /programs/{id}/surveys                 - Submit survey")
	fmt.Println("    PUT  /admin/programs/{id}/deposit           - Deposit settings")
	fmt.Println("    PUT  /admin/policies/{programId}            - Refund policy table")
	fmt.Println("    POST /admin/policies/reload                 - Hot-reload policies")
	fmt.Println("    GET  /admin/programs/{id}/refunds.xlsx      - Refund report")
	fmt.Println("    POST /admin/content/changes/{id}/rollback   - Roll back a change")
	fmt.Println("    GET  /admin/notifications                   - Notification log")
	fmt.Println("    GET  /health                                - Health check")
	fmt.Println()
}
