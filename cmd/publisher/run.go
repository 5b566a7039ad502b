package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ava-labs/event-publisher/internal/ingest"
	"github.com/ava-labs/event-publisher/internal/manager"
	"github.com/ava-labs/event-publisher/pkg/config"
	"github.com/ava-labs/event-publisher/pkg/dispatch"
	"github.com/ava-labs/event-publisher/pkg/metrics"
	"github.com/ava-labs/event-publisher/pkg/tracing"
	"github.com/ava-labs/event-publisher/pkg/utils"
)

func run(c *cli.Context) error {
	cfg, err := buildConfig(c)
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}

	sugar, err := utils.NewSugaredLogger(cfg.Verbose, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer sugar.Desugar().Sync() //nolint:errcheck // best-effort flush; ignore sync errors

	sugar.Infow("config",
		"verbose", cfg.Verbose,
		"logLevel", cfg.LogLevel,
		"configDir", cfg.ConfigDir,
		"ingestAddr", cfg.IngestAddr,
		"metricsHost", cfg.MetricsHost,
		"metricsPort", cfg.MetricsPort,
		"environment", cfg.Environment,
		"region", cfg.Region,
		"cloudProvider", cfg.CloudProvider,
	)

	sites, err := config.Load(cfg.ConfigDir, sugar)
	if err != nil {
		return fmt.Errorf("failed to load site configs: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracingCfg, err := tracing.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load tracing config: %w", err)
	}
	tracer, shutdownTracer, err := tracing.NewTracer(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			sugar.Warnw("tracer shutdown error", "error", err)
		}
	}()

	// Initialize Prometheus metrics with labels for multi-instance filtering
	registry := prometheus.NewRegistry()
	m, err := metrics.NewWithLabels(registry, metrics.Labels{
		Environment:   cfg.Environment,
		Region:        cfg.Region,
		CloudProvider: cfg.CloudProvider,
	})
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	mgr, err := manager.New(sugar, dispatch.UsernameResolver{},
		manager.WithMetrics(m),
		manager.WithTracer(tracer),
	)
	if err != nil {
		return fmt.Errorf("failed to create manager: %w", err)
	}
	if err := mgr.Start(ctx, sites); err != nil {
		return fmt.Errorf("failed to start publishers: %w", err)
	}
	// Close stops the publishers after the servers below are shut down.
	defer mgr.Close()

	metricsServer := metrics.NewServer(cfg.MetricsAddr(), registry, mgr.Ready)
	metricsErrCh := metricsServer.Start()
	if cfg.MetricsHost == "" {
		sugar.Infof("metrics server listening on http://0.0.0.0:%d/metrics", cfg.MetricsPort)
	} else {
		sugar.Infof("metrics server listening on http://%s/metrics", cfg.MetricsAddr())
	}

	ingestServer, err := ingest.NewServer(cfg.IngestAddr, mgr, sugar.Named("ingest"))
	if err != nil {
		return fmt.Errorf("failed to create ingest server: %w", err)
	}
	ingestErrCh := ingestServer.Start()
	sugar.Infow("ingest server listening", "addr", cfg.IngestAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return watchServer(gctx, "metrics", metricsErrCh)
	})
	g.Go(func() error {
		return watchServer(gctx, "ingest", ingestErrCh)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	sugar.Info("shutting down http servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if shutdownErr := ingestServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("ingest server shutdown error", "error", shutdownErr)
	}
	if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
		sugar.Warnw("metrics server shutdown error", "error", shutdownErr)
	}

	sugar.Info("shutdown complete")
	return err
}

// watchServer blocks until ctx is done or the server reports an error.
func watchServer(ctx context.Context, name string, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("%s server error: %w", name, err)
		}
		return nil
	}
}
