// Kite - Fraud decisions for financial documents.
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
	"syscall"
	"time"

	"github.com/opensource-finance/kite/internal/advisor"
	"github.com/opensource-finance/kite/internal/api"
	"github.com/opensource-finance/kite/internal/assess"
	"github.com/opensource-finance/kite/internal/bus"
	"github.com/opensource-finance/kite/internal/cache"
	"github.com/opensource-finance/kite/internal/classify"
	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
	"github.com/opensource-finance/kite/internal/history"
	"github.com/opensource-finance/kite/internal/policy"
	"github.com/opensource-finance/kite/internal/repository"
	"github.com/opensource-finance/kite/internal/scoring"
	"github.com/opensource-finance/kite/internal/worker"
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
	if os.Getenv("KITE_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting kite",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KITE_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"advisor", cfg.Advisor.Type,
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

	// Initialize pipeline stages
	extractor := feature.NewExtractor()

	docConfigs := domain.DefaultDocTypeConfigs()
	scorer := scoring.NewScorer(docConfigs, scoring.BuiltinArtifacts())
	slog.Info("scorer initialized", "artifacts", len(scoring.BuiltinArtifacts()))

	classifier, err := classify.NewEngine()
	if err != nil {
		slog.Error("failed to initialize classifier", "error", err)
		os.Exit(1)
	}

	// Load custom rules from database (no hardcoded defaults - configure via API)
	if err := loadCustomRules(ctx, repo, classifier); err != nil {
		slog.Error("failed to load custom rules", "error", err)
		os.Exit(1)
	}
	slog.Info("classifier initialized", "custom_rules", classifier.CustomRules().Count())

	// Initialize history store over the repository
	historyStore := history.NewSQLStore(repo)
	defer historyStore.Close()

	// Initialize Advisor
	advisorImpl, err := advisor.New(cfg.Advisor)
	if err != nil {
		slog.Error("failed to initialize advisor", "error", err)
		os.Exit(1)
	}
	slog.Info("advisor initialized", "type", cfg.Advisor.Type)

	// Initialize policy engine with dedupe store
	dedupeTTL := time.Duration(cfg.DedupeTTLDays) * 24 * time.Hour
	dedupe := policy.NewDedupeStore(cacheImpl, dedupeTTL)
	advisoryTimeout := time.Duration(cfg.AdvisoryTimeoutMs) * time.Millisecond
	policyEngine := policy.NewEngine(historyStore, advisorImpl, dedupe, advisoryTimeout, logger)

	// Initialize assessment service
	service := assess.New(extractor, scorer, classifier, policyEngine, docConfigs, repo, busImpl, logger)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KITE_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, service, logger)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, service, repo, cacheImpl, busImpl, historyStore, classifier, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kite is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kite shutdown complete")
}

// applyEnvOverrides maps a few deployment settings from the environment.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KITE_DB_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KITE_ADVISOR_ENDPOINT"); v != "" {
		cfg.Advisor.Type = "http"
		cfg.Advisor.Endpoint = v
		cfg.Advisor.AuthToken = os.Getenv("KITE_ADVISOR_TOKEN")
	}
	if v := os.Getenv("KITE_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KITE_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
}

// loadCustomRules loads operator-defined classification rules from the
// database. All custom rules are configured via POST /rules - no
// hardcoded defaults.
func loadCustomRules(ctx context.Context, repo domain.Repository, classifier *classify.Engine) error {
	dbRules, err := repo.ListCustomRules(ctx)
	if err != nil {
		slog.Warn("failed to list custom rules from database", "error", err)
		return nil // Start with empty rules - they can be added via API
	}

	if len(dbRules) > 0 {
		slog.Info("loading custom rules from database", "count", len(dbRules))
		return classifier.CustomRules().Reload(dbRules)
	}

	slog.Info("no custom rules in database - configure via POST /rules API")
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ==============================================")
	fmt.Println("                    KITE")
	fmt.Println("       Document Fraud Decision Engine")
	fmt.Println("       Every document, a clear answer.")
	fmt.Println("  ==============================================")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /assess                   - Assess a document")
	fmt.Println("    POST /submit                   - Queue a document for async assessment")
	fmt.Println("    GET  /decisions/{id}           - Get decision by ID")
	fmt.Println("    GET  /entities/{name}/history  - Get entity history")
	fmt.Println("    GET  /rules                    - List custom rules")
	fmt.Println("    POST /rules                    - Create a custom rule")
	fmt.Println("    POST /rules/reload             - Hot-reload rules from database")
	fmt.Println("    GET  /health                   - Health check")
	fmt.Println()
}
