package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/platformbuilds/vigia/internal/analyzer"
	"github.com/platformbuilds/vigia/internal/api"
	"github.com/platformbuilds/vigia/internal/clients"
	"github.com/platformbuilds/vigia/internal/config"
	"github.com/platformbuilds/vigia/internal/rca"
	"github.com/platformbuilds/vigia/internal/scheduler"
	"github.com/platformbuilds/vigia/internal/search"
	"github.com/platformbuilds/vigia/internal/simulation"
	"github.com/platformbuilds/vigia/internal/storage"
	"github.com/platformbuilds/vigia/internal/tracing"
	"github.com/platformbuilds/vigia/pkg/logger"
)

const version = "v0.3.1"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger := logger.New(cfg.LogLevel)
	logger.Info("Starting VIGIA", "version", version, "environment", cfg.Environment)

	// Engine tunables, hot-reloadable from the config file
	runtime := config.NewRuntime(cfg.Engine)
	watcher, err := config.NewWatcher(cfg.ConfigFileUsed(), runtime, logger)
	if err != nil {
		logger.Fatal("Failed to start config watcher", "error", err)
	}
	defer watcher.Close()

	// Internal span export (noop unless tracing.enabled)
	tracerProvider, err := tracing.NewTracerProvider(cfg.Tracing, cfg.ServiceName, version)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer shutdown failed", "error", err)
		}
	}()

	// Telemetry store (memory or valkey per config)
	store := storage.New(cfg.Storage, logger)
	defer store.Close()
	logger.Info("Telemetry store initialized", "backend", store.Backend())

	// Analysis pipeline: detectors feed the RCA engine
	analyzerEngine := analyzer.NewEngine(store, runtime, logger)
	rcaEngine := rca.NewEngine(store, runtime, logger)

	// Incident full-text search
	var searchIndex *search.IncidentIndex
	if cfg.Search.Enabled {
		searchIndex, err = search.NewIncidentIndex(cfg.Search, logger)
		if err != nil {
			logger.Fatal("Failed to initialize incident search", "error", err)
		}
		defer searchIndex.Close()
		rcaEngine.SetIndexer(searchIndex)
	}

	// Background analysis loop
	cycleTracer := tracing.NewCycleTracer(cfg.ServiceName)
	sched := scheduler.New(analyzerEngine, rcaEngine, runtime, cycleTracer, logger)

	// Failure injection for the demo endpoints
	injector := simulation.NewInjector()

	// Self-call client so checkout produces multi-hop traces
	selfBaseURL := cfg.Demo.SelfBaseURL
	if selfBaseURL == "" {
		selfBaseURL = fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
	}
	selfClient := clients.NewSelfClient(selfBaseURL, 5*time.Second, logger)

	// Initialize API server
	apiServer := api.NewServer(cfg, runtime, logger, store, analyzerEngine, rcaEngine, sched, injector, searchIndex, selfClient)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received")
		cancel()
	}()

	sched.Start(ctx)

	// Start server
	if err := apiServer.Start(ctx); err != nil {
		logger.Fatal("Server failed to start", "error", err)
	}

	// Let the in-flight analysis cycle finish before tearing down the store.
	<-sched.Done()

	logger.Info("VIGIA shutdown complete")
}
