package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"safety-analytics/internal/analytics"
	api "safety-analytics/internal/api"
	"safety-analytics/internal/bootstrap"
	"safety-analytics/internal/config"
	"safety-analytics/internal/jobs"
	"safety-analytics/internal/logging"
	"safety-analytics/internal/ratelimit"
	"safety-analytics/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Env, cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting up", "project", cfg.ProjectName, "env", cfg.Env)

	ing, err := bootstrap.NewIngestion(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer ing.Close()

	var limiter *ratelimit.TokenBucket
	if cfg.RateLimitEnabled() {
		client, err := bootstrap.ConnectRedis(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		limiter = ratelimit.NewTokenBucket(client, cfg.RateLimitCapacity, cfg.RateLimitRefill, cfg.RateLimitTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, rate limiting disabled")
	}

	registry := jobs.NewRegistry(jobs.WithMaxRetained(cfg.MaxRetainedJobs))
	runner := worker.NewRunner(registry, worker.Options{
		Concurrency: cfg.WorkerConcurrency,
		QueueSize:   cfg.JobQueueSize,
		Logger:      logger,
	})
	runner.Start(ctx)

	rnd := analytics.NewRandom(0)
	server := api.New(cfg, api.Deps{
		Runner:    runner,
		Scorer:    analytics.NewScorer(cfg.RiskCenterLat, cfg.RiskCenterLon, rnd),
		Analyzer:  analytics.NewAnalyzer(rnd),
		Hotspots:  analytics.NewHotspotGenerator(rnd),
		Ingestion: ing.Pipeline,
		Limiter:   limiter,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening", "addr", cfg.Addr(), "prefix", cfg.APIPrefix)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			_ = runner.Stop(context.Background())
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Error("runner shutdown", "error", err)
	}
	logger.Info("shutdown complete")
	return nil
}
