package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/bit2swaz/sfg-rotate/internal/api"
	"github.com/bit2swaz/sfg-rotate/internal/api/ratelimit"
	"github.com/bit2swaz/sfg-rotate/internal/config"
	"github.com/bit2swaz/sfg-rotate/internal/engine"
	"github.com/bit2swaz/sfg-rotate/pkg/observability"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to sfg.yml")
	dryRun := flag.Bool("dry-run", false, "classify on schedule without deleting")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	if err := run(*configPath, *dryRun); err != nil {
		slog.Error("sfgd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, dryRun bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	runner, err := engine.FromConfig(ctx, cfg, engine.Options{DryRun: dryRun, Metrics: metrics})
	if err != nil {
		return err
	}

	scheduler := engine.NewScheduler(runner, cfg.Schedule.Cron, loc, engine.WithHook(cfg.Hooks.PostPrune))
	if err := scheduler.Start(ctx); err != nil {
		return err
	}
	defer scheduler.Stop()

	var limiter *ratelimit.Limiter
	if cfg.Server.TriggerLimit > 0 {
		limiter = ratelimit.New(cfg.Server.TriggerLimit, time.Hour)
		janitorStop := make(chan struct{})
		defer close(janitorStop)
		go api.StartLimiterJanitor(limiter, 5*time.Minute, janitorStop)
	}
	if cfg.Server.Token == "" {
		slog.Warn("server.token is empty, /v1 is unauthenticated")
	}

	apiServer := api.NewServer(scheduler, api.Options{
		Token:    cfg.Server.Token,
		Limiter:  limiter,
		Gatherer: registry,
		Metrics:  metrics,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("sfgd listening", "address", cfg.Server.Address, "schedule", cfg.Schedule.Cron, "dry_run", dryRun)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}

	slog.Info("sfgd stopped")
	return nil
}
