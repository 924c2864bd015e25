// Kestrel - Classroom risk monitoring that deploys in 60 seconds.
// Copyright (c) 2025 opensource.edu
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

	"golang.org/x/text/language"

	"github.com/opensource-edu/kestrel/internal/aggregate"
	"github.com/opensource-edu/kestrel/internal/alerts"
	"github.com/opensource-edu/kestrel/internal/api"
	"github.com/opensource-edu/kestrel/internal/bus"
	"github.com/opensource-edu/kestrel/internal/cache"
	"github.com/opensource-edu/kestrel/internal/classify"
	"github.com/opensource-edu/kestrel/internal/domain"
	"github.com/opensource-edu/kestrel/internal/repository"
	"github.com/opensource-edu/kestrel/internal/rules"
	"github.com/opensource-edu/kestrel/internal/stats"
	"github.com/opensource-edu/kestrel/internal/worker"
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
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
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

	// Initialize Statistics Engine with configured scoring defaults
	statsEngine := stats.NewEngine(cfg.Risk)
	slog.Info("statistics engine initialized")

	// Initialize Aggregator for class-level views
	aggregator := aggregate.NewAggregator(classify.NewKeywordClassifier(), language.English)

	// Repository-backed absence counts for the absence_count rule variable
	absenceGetter := func(ctx context.Context, classID, studentID string, windowDays int) (int64, error) {
		since := time.Now().UTC().AddDate(0, 0, -windowDays)
		return repo.CountAbsences(ctx, classID, studentID, since)
	}

	// Initialize Rule Engine with absence getter
	engine, err := rules.NewEngine(absenceGetter, 100)
	if err != nil {
		slog.Error("failed to initialize rule engine", "error", err)
		os.Exit(1)
	}

	// Load rules from database, falling back to builtins
	if err := loadRulesFromDatabase(ctx, repo, engine); err != nil {
		slog.Error("failed to load rules", "error", err)
		os.Exit(1)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	// Initialize Pattern Engine
	patternEngine := rules.NewPatternEngine()

	// Load patterns from database, falling back to builtins
	if err := loadPatternsFromDatabase(ctx, repo, patternEngine); err != nil {
		slog.Error("failed to load patterns", "error", err)
		os.Exit(1)
	}
	slog.Info("pattern engine initialized", "patterns_count", patternEngine.PatternCount())

	// Initialize Decision Processor
	processor := alerts.NewProcessor()
	slog.Info("decision processor initialized", "threshold", processor.FlagThreshold)

	// Initialize async Worker (Pro tier)
	var asyncWorker *worker.Worker
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, repo, statsEngine, engine, patternEngine, processor)

		// Get class IDs to process (from environment or default)
		classIDs := []string{}
		if envClasses := os.Getenv("KESTREL_CLASSES"); envClasses != "" {
			// Could parse comma-separated list here
			classIDs = []string{envClasses}
		}

		workerCfg := worker.Config{
			ClassIDs:    classIDs,
			WorkerCount: 5,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "class_count", len(classIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, engine, patternEngine, processor, statsEngine, aggregator, Version)

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

	slog.Info("kestrel shutdown complete")
}

// GlobalClassID is used for rules that apply to all classes.
const GlobalClassID = "*"

// loadRulesFromDatabase loads rules from the database into the engine.
// When the database has none, the builtin starter rules are loaded so a
// fresh install flags something sensible out of the box.
func loadRulesFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListAlertRules(ctx, GlobalClassID)
	if err != nil {
		slog.Warn("failed to list rules from database", "error", err)
		dbRules = nil
	}

	if len(dbRules) > 0 {
		slog.Info("loading rules from database", "count", len(dbRules))
		return engine.LoadRules(dbRules)
	}

	slog.Info("no rules in database - loading builtin starter rules")
	return engine.LoadRules(rules.BuiltinRules())
}

// loadPatternsFromDatabase loads intervention patterns from the database
// into the engine, falling back to the builtin starter patterns.
func loadPatternsFromDatabase(ctx context.Context, repo domain.Repository, engine *rules.PatternEngine) error {
	dbPatterns, err := repo.ListAlertPatterns(ctx, GlobalClassID)
	if err != nil {
		slog.Warn("failed to list patterns from database", "error", err)
		dbPatterns = nil
	}

	if len(dbPatterns) > 0 {
		slog.Info("loading patterns from database", "count", len(dbPatterns))
		engine.LoadPatterns(dbPatterns)
		return nil
	}

	slog.Info("no patterns in database - loading builtin starter patterns")
	engine.LoadPatterns(rules.BuiltinPatterns())
	return nil
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═════════════════════════════════════════╗")
	fmt.Println("  ║               🦅 KESTREL                 ║")
	fmt.Println("  ║      Student Risk Monitoring Engine      ║")
	fmt.Println("  ║        Eyes on every classroom.          ║")
	fmt.Println("  ╚═════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate              - Derive a profile and flag it")
	fmt.Println("    POST /stats                 - Derive metrics from bare records")
	fmt.Println("    POST /records/grades        - Ingest a grade")
	fmt.Println("    POST /records/behavior      - Ingest a behavior event")
	fmt.Println("    GET  /students/{id}         - Get raw student records")
	fmt.Println("    GET  /students/{id}/profile - Get derived profile snapshot")
	fmt.Println("    GET  /flags/{id}            - Get flag decision by ID")
	fmt.Println("    GET  /aggregates/teachers   - Per-teacher summaries")
	fmt.Println("    GET  /aggregates/pairs      - Teacher/subject pairs")
	fmt.Println("    POST /aggregates/insights   - Period-over-period insights")
	fmt.Println("    GET  /rules                 - List all rules")
	fmt.Println("    POST /rules                 - Create a new rule")
	fmt.Println("    POST /rules/reload          - Hot-reload rules from database")
	fmt.Println("    GET  /patterns              - List intervention patterns")
	fmt.Println("    POST /patterns              - Create a pattern")
	fmt.Println("    PUT  /patterns/{id}         - Update a pattern")
	fmt.Println("    DELETE /patterns/{id}       - Delete a pattern")
	fmt.Println("    POST /patterns/reload       - Hot-reload patterns")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
