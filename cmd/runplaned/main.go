// Package main is the entry point for the runplane daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"runplane/internal/config"
	"runplane/internal/controller"
	"runplane/internal/logger"
	"runplane/internal/observability"
	"runplane/internal/registry"
	"runplane/internal/store"
	"runplane/internal/store/postgres"
	"runplane/internal/store/sqlite"
	"runplane/internal/supervisor"
	"runplane/internal/transport"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("runplaned exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownTracer, err := observability.InitTracer(ctx, "runplaned", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			log.Warn("failed to shutdown tracer", "error", err)
		}
	}()

	// Metrics
	metricsHandler, shutdownMetrics, err := observability.InitMetrics()
	if err != nil {
		return fmt.Errorf("failed to init metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			log.Warn("failed to shutdown metrics", "error", err)
		}
	}()

	runMetrics, err := observability.NewRunMetrics(nil)
	if err != nil {
		return err
	}

	history, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	if history != nil {
		defer history.Close()
		log.Info("run history enabled", "driver", cfg.HistoryDriver)
	}

	reg := registry.New(registry.WithMaxFinished(cfg.MaxFinishedRecords))

	shell := transport.DefaultShell()
	if cfg.ShellPath != "" {
		shell = transport.StaticShell(cfg.ShellPath, "-c")
	}

	supCfg := supervisor.Config{
		Logger:                 log,
		Metrics:                runMetrics,
		DefaultTimeout:         cfg.DefaultTimeout,
		DefaultNoOutputTimeout: cfg.DefaultNoOutputTimeout,
	}
	if history != nil {
		supCfg.History = history
	}
	sup := supervisor.New(reg, transport.Defaults(shell), supCfg)

	if err := sup.ReconcileOrphans(ctx); err != nil {
		log.Warn("failed to reconcile orphaned runs", "error", err)
	}

	// Use an Observable Gauge (Async) that reads the registry only when scraped.
	meter := otel.Meter("runplaned")
	_, err = meter.Int64ObservableGauge("runplane.registry.records",
		metric.WithDescription("Run records currently held in memory"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			obs.Observe(int64(len(sup.Records(registry.Filter{}))))
			return nil
		}),
	)
	if err != nil {
		log.Warn("failed to register registry size metric", "error", err)
	}

	srv := controller.New(controller.Options{
		Addr:           fmt.Sprintf(":%d", cfg.HTTPPort),
		Supervisor:     sup,
		History:        history,
		MetricsHandler: metricsHandler,
		Logger:         log,
		TokenHash:      cfg.APITokenHash,
		RateLimit:      cfg.RateLimit,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	log.Info("runplaned starting", "port", cfg.HTTPPort, "auth", cfg.APITokenHash != "")
	serverErr := srv.Run(ctx)

	log.Info("shutting down, cancelling active runs")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		log.Warn("supervisor shutdown incomplete", "error", err)
	}

	return serverErr
}

// openHistory returns the configured history store, or nil when disabled.
func openHistory(ctx context.Context, cfg *config.Config) (store.RunHistory, error) {
	switch cfg.HistoryDriver {
	case config.HistoryPostgres:
		s, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return s, nil
	case config.HistorySQLite:
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, nil
	}
}
