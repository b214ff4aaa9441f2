// Package main implements the entry point for the sync-storage server, a
// multi-tenant remote JSON item store served over HTTP with pluggable
// storage backends.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/wahidkadwaikar/sync-storage/config"
	"github.com/wahidkadwaikar/sync-storage/gateway/http"
	"github.com/wahidkadwaikar/sync-storage/health"
	"github.com/wahidkadwaikar/sync-storage/identity"
	"github.com/wahidkadwaikar/sync-storage/metric"
	"github.com/wahidkadwaikar/sync-storage/service"
	"github.com/wahidkadwaikar/sync-storage/storage"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sync-storage"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cfg, cliCfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting sync-storage",
		"version", Version,
		"build_time", BuildTime,
		"backend", cfg.Storage.Backend,
		"listen", cfg.Listen.Addr)
	slog.Debug("Effective configuration", "config", cfg.String())

	ctx := context.Background()
	return serve(ctx, cfg, logger)
}

// applyFlagOverrides lets explicit CLI flags win over the file and
// environment layers.
func applyFlagOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.ListenAddr != "" {
		cfg.Listen.Addr = cliCfg.ListenAddr
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Metrics registry and scrape endpoint. Created before the store so
	// the adapter can be instrumented.
	var coreMetrics *metric.Metrics
	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		registry := metric.NewMetricsRegistry()
		coreMetrics = registry.CoreMetrics()
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() {
			if err := metricsServer.Stop(); err != nil {
				slog.Error("Stopping metrics server failed", "error", err)
			}
		}()
		slog.Info("Metrics server started", "address", metricsServer.Address())
	}

	var opRecorder storage.OpRecorder
	if coreMetrics != nil {
		opRecorder = coreMetrics
	}
	store, err := openStore(ctx, cfg, opRecorder, logger)
	if err != nil {
		return fmt.Errorf("open %s backend: %w", cfg.Storage.Backend, err)
	}

	svc := service.New(store, service.Limits{
		MaxKeyLength:     cfg.Limits.MaxKeyLength,
		MaxValueBytes:    cfg.Limits.MaxValueBytes,
		MaxBatchSize:     cfg.Limits.MaxBatchSize,
		MaxListLimit:     cfg.Limits.MaxListLimit,
		DefaultListLimit: cfg.Limits.DefaultListLimit,
	}, logger)
	defer func() {
		if err := svc.Close(); err != nil {
			slog.Error("Closing storage failed", "error", err)
		}
	}()

	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	// Background backend probing feeds readiness and the up gauge.
	monitor := health.NewMonitor()
	var onReport func(bool)
	if coreMetrics != nil {
		backend := cfg.Storage.Backend
		onReport = func(up bool) { coreMetrics.RecordBackendUp(backend, up) }
	}
	checker := health.NewChecker(store, cfg.Storage.Backend,
		time.Duration(cfg.Health.IntervalSeconds)*time.Second, monitor, onReport, logger)
	go checker.Run(signalCtx)

	edge := http.NewServer(http.ServerConfig{
		Addr:        cfg.Listen.Addr,
		CORSOrigins: cfg.Listen.CORSOrigins,
		Service:     svc,
		Resolver:    identity.NewResolver(cfg.Auth.Token, cfg.Auth.DefaultTenant, cfg.Auth.DefaultNamespace),
		Monitor:     monitor,
		Backend:     cfg.Storage.Backend,
		Metrics:     coreMetrics,
		Logger:      logger,
	})

	serveErr := make(chan error, 1)
	go func() { serveErr <- edge.Start() }()

	select {
	case err := <-serveErr:
		return err
	case <-signalCtx.Done():
		slog.Info("Received shutdown signal")
	}

	if err := edge.Shutdown(context.Background()); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	slog.Info("sync-storage shutdown complete")
	return nil
}
