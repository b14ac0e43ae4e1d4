// FraudShield - Live fraud monitoring for scored transaction feeds.
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

	"github.com/opensource-finance/fraudshield/internal/analysis"
	"github.com/opensource-finance/fraudshield/internal/api"
	"github.com/opensource-finance/fraudshield/internal/bus"
	"github.com/opensource-finance/fraudshield/internal/cache"
	"github.com/opensource-finance/fraudshield/internal/client"
	"github.com/opensource-finance/fraudshield/internal/config"
	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/feed"
	"github.com/opensource-finance/fraudshield/internal/live"
	"github.com/opensource-finance/fraudshield/internal/logging"
	"github.com/opensource-finance/fraudshield/internal/metrics"
	"github.com/opensource-finance/fraudshield/internal/realtime"
	"github.com/opensource-finance/fraudshield/internal/repository"
	"github.com/opensource-finance/fraudshield/internal/risk"
	"github.com/opensource-finance/fraudshield/internal/session"
	"github.com/opensource-finance/fraudshield/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logger
	slog.SetDefault(logging.New(cfg.Logging.Level, cfg.Logging.Format))

	slog.Info("starting fraudshield",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"upstream", cfg.Upstream.BaseURL,
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
	metrics.StartDBStatsCollector(ctx, repo.DB(), 15*time.Second)

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

	// Risk assembly
	classifier, err := risk.NewClassifierFromFile(cfg.Risk.ImpactRulesPath)
	if err != nil {
		slog.Error("failed to load impact rules", "path", cfg.Risk.ImpactRulesPath, "error", err)
		os.Exit(1)
	}
	assembler := risk.NewAssembler(risk.NewExtractor(classifier))
	slog.Info("risk assembler initialized", "impact_rules", cfg.Risk.ImpactRulesPath != "")

	// Upstream scorer and sessions
	upstream := client.New(cfg.Upstream, nil)
	sessions := session.NewManager(upstream, repo)
	scoped := func(sessionID string) *client.Client {
		if sessionID == "" {
			return upstream
		}
		return upstream.WithCredentials(sessions.Provider(sessionID))
	}

	pipeline := analysis.NewPipeline(
		func(sessionID string) analysis.Analyzer { return scoped(sessionID) },
		assembler, repo, busImpl,
	)

	// Feed views
	views := live.NewManager(upstream, feed.NewPublisher(cacheImpl, busImpl, snapshotTTL(cfg.Views)), cfg.Views)
	views.Start(ctx)
	slog.Info("feed views started", "count", len(cfg.Views))

	// Initialize async Worker
	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, pipeline)
		if err := asyncWorker.Start(); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		} else {
			slog.Info("async worker started")
		}
	}

	// Realtime fan-out
	hub := realtime.NewHub()
	go hub.Run(ctx)
	if _, err := hub.Bridge(ctx, busImpl); err != nil {
		slog.Error("failed to bridge event bus to websocket hub", "error", err)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:       repo,
		Cache:      cacheImpl,
		Bus:        busImpl,
		Views:      views,
		Submitters: func(sessionID string) api.Submitter { return scoped(sessionID) },
		Analyzer:   pipeline,
		Sessions:   sessions,
		Version:    Version,
	}, hub)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("fraudshield is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop polling before the worker so no new snapshots are published
	views.DisposeAll()

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

	slog.Info("fraudshield shutdown complete")
}

// snapshotTTL keeps a published snapshot alive for a few poll intervals
// of the slowest view.
func snapshotTTL(views []domain.ViewConfig) time.Duration {
	longest := time.Second
	for _, v := range views {
		if v.Interval > longest {
			longest = v.Interval
		}
	}
	return 4 * longest
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               FRAUDSHIELD                 ║")
	fmt.Println("  ║        Live Fraud Monitoring Engine       ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("  Scorer:   %s\n", cfg.Upstream.BaseURL)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    GET  /feed/{view}                - Latest feed snapshot")
	fmt.Println("    GET  /stats                      - Feed statistics")
	fmt.Println("    GET  /views                      - View polling status")
	fmt.Println("    POST /views/{view}/pause|resume  - Control a view")
	fmt.Println("    POST /transactions               - Submit a transaction")
	fmt.Println("    POST /analyze                    - Analyze a transaction")
	fmt.Println("    GET  /assessments[/{txId}]       - Assessment history")
	fmt.Println("    GET  /notifications              - High-risk alerts")
	fmt.Println("    POST /auth/register|login|logout - Sessions")
	fmt.Println("    GET  /ws                         - Realtime events")
	fmt.Println("    GET  /health                     - Health check")
	fmt.Println()
}
