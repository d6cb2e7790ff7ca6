package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"safety-analytics/internal/bootstrap"
	"safety-analytics/internal/config"
	"safety-analytics/internal/jobs"
	"safety-analytics/internal/models"
	"safety-analytics/internal/worker"
)

// errJobFailed signals a pipeline that ran to a failed state; the record has already been printed.
var errJobFailed = errors.New("ingestion job failed")

func newRootCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Run the crime and geospatial data ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(cfg, logger))
	return root
}

func newRunCmd(cfg config.Config, logger *slog.Logger) *cobra.Command {
	var (
		pollInterval time.Duration
		timeout      time.Duration
		latency      float64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and print the final job record as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("latency-scale") {
				cfg.Ingest.LatencyScale = latency
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			job, err := runOnce(ctx, cfg, logger, pollInterval)
			if job.ID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(job); encErr != nil {
					return encErr
				}
			}
			if err != nil {
				logger.Error("ingestion run did not finish", "job_id", job.ID, "error", err)
				return err
			}
			if job.Status == models.StatusFailed {
				logger.Error("ingestion run failed", "job_id", job.ID, "stage", job.FailedStage, "error", job.Error)
				return errJobFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", time.Second, "how often to poll the job status")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "give up after this long (0 waits indefinitely)")
	cmd.Flags().Float64Var(&latency, "latency-scale", 1, "override INGEST_LATENCY_SCALE")
	return cmd
}

func runOnce(ctx context.Context, cfg config.Config, logger *slog.Logger, pollInterval time.Duration) (models.Job, error) {
	ing, err := bootstrap.NewIngestion(ctx, cfg, logger)
	if err != nil {
		return models.Job{}, err
	}
	defer ing.Close()

	runner := worker.NewRunner(jobs.NewRegistry(), worker.Options{Concurrency: 1, QueueSize: 1, Logger: logger})
	runner.Start(ctx)

	id, err := runner.RunPipeline(models.KindIngestionPipeline, ing.Pipeline.Stages(), nil)
	if err != nil {
		_ = runner.Stop(context.Background())
		return models.Job{}, err
	}
	logger.Info("ingestion job submitted", "job_id", id)

	job, waitErr := worker.Await(ctx, runner, id, pollInterval)

	// A cancelled wait also cancels the run; give it a moment to record where it stopped.
	stopCtx := context.Background()
	if waitErr != nil {
		var cancel context.CancelFunc
		stopCtx, cancel = context.WithTimeout(stopCtx, time.Second)
		defer cancel()
	}
	if err := runner.Stop(stopCtx); err != nil {
		logger.Warn("runner stop", "error", err)
	}
	if waitErr != nil {
		if latest, err := runner.Poll(id); err == nil {
			job = latest
		}
		return job, waitErr
	}
	return job, nil
}
