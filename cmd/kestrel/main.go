// Kestrel - Real-time fraud scoring for payments and messaging.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/opensource-finance/kestrel/internal/api"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/enrich"
	"github.com/opensource-finance/kestrel/internal/learning"
	"github.com/opensource-finance/kestrel/internal/payee"
	"github.com/opensource-finance/kestrel/internal/pipeline"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/responder"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := loadConfig()

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"enrichment", cfg.Enrichment.Enabled,
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

	// Initialize the learning store and restore its persisted state
	store := learning.NewStore(cfg.Learning.ReportThreshold, logger)

	flusher := worker.NewFlusher(store, repo, time.Duration(cfg.Learning.FlushInterval)*time.Second, logger)
	if err := flusher.Restore(ctx); err != nil {
		slog.Error("failed to restore learning state", "error", err)
		os.Exit(1)
	}
	flusher.Start()
	defer flusher.Stop()
	slog.Info("learning store initialized", "report_threshold", cfg.Learning.ReportThreshold)

	// Initialize Rule Engine with builtin plus database rules
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	if err := loadRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Optional LLM content enrichment
	enricher := enrich.New(cfg.Enrichment, logger)

	// Initialize the scoring pipeline
	pipe := pipeline.New(pipeline.Deps{
		Store:     store,
		Responder: responder.New(store),
		Rules:     engine,
		Enricher:  enricher,
		Payees:    payee.NewService(repo, cacheImpl, logger),
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Logger:    logger,
	})
	slog.Info("scoring pipeline initialized")

	// Initialize Server
	srv := api.NewServer(cfg.Server, pipe, repo, cacheImpl, engine, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// loadConfig builds the configuration from tier defaults plus KESTREL_*
// environment overrides.
func loadConfig() *domain.Config {
	cfg := domain.DefaultConfig()

	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	if v := os.Getenv("KESTREL_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("KESTREL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_POSTGRES_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_NATS_TOKEN"); v != "" {
		cfg.EventBus.NATSToken = v
	}
	if v := os.Getenv("KESTREL_REPORT_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Learning.ReportThreshold = n
		}
	}

	// Content enrichment turns on when an API key is present.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.Enrichment.Enabled = true
		cfg.Enrichment.APIKey = key
		if model := os.Getenv("KESTREL_ENRICHMENT_MODEL"); model != "" {
			cfg.Enrichment.Model = model
		}
	}

	return cfg
}

// loadRules seeds the engine with the builtin rules plus any custom
// rules configured via the API.
func loadRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		return err
	}

	dbRules, err := repo.ListRuleConfigs(ctx)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		return nil // Start with builtins only - more can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                  ║")
	fmt.Println("  ║        Fraud Risk Scoring Engine          ║")
	fmt.Println("  ║     Every signal, scored in real time.    ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /api/v1/analyze/url          - Score a URL")
	fmt.Println("    POST /api/v1/analyze/sms          - Score an SMS message")
	fmt.Println("    POST /api/v1/analyze/transaction  - Score a UPI transaction")
	fmt.Println("    POST /api/v1/analyze/qr           - Score a scanned QR code")
	fmt.Println("    GET  /api/v1/check                - Cached URL assessment")
	fmt.Println("    POST /api/v1/feedback             - Submit a verdict on an analysis")
	fmt.Println("    POST /api/v1/reports              - File a community fraud report")
	fmt.Println("    GET  /api/v1/learning/metrics     - Learning engine metrics")
	fmt.Println("    GET  /api/v1/history              - Recent analyses for a user")
	fmt.Println("    GET  /api/v1/rules                - List rules")
	fmt.Println("    POST /api/v1/rules                - Create a custom rule")
	fmt.Println("    POST /api/v1/rules/reload         - Hot-reload rules from database")
	fmt.Println("    GET  /health                      - Health check")
	fmt.Println()
}
