// Package worker executes jobs off the request path and records their lifecycle in a jobs.Registry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"safety-analytics/internal/jobs"
	"safety-analytics/internal/models"
	"safety-analytics/internal/telemetry"
)

const (
	defaultConcurrency = 4
	defaultQueueSize   = 256
)

// Options configures a Runner.
type Options struct {
	Concurrency int // worker goroutines; defaults to 4
	QueueSize   int // jobs waiting for a worker; defaults to 256
	Logger      *slog.Logger
}

type runFunc func(ctx context.Context, id string) (any, error)

type submission struct {
	id   string
	kind models.Kind
	run  runFunc
}

// Runner owns a pool of goroutines that execute submitted jobs.
type Runner struct {
	registry *jobs.Registry
	logger   *slog.Logger
	workers  int
	queue    chan submission

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner constructs a runner. Jobs may be submitted before Start; they wait in the queue.
func NewRunner(reg *jobs.Registry, opts Options) *Runner {
	workers := opts.Concurrency
	if workers <= 0 {
		workers = defaultConcurrency
	}
	size := opts.QueueSize
	if size <= 0 {
		size = defaultQueueSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry: reg,
		logger:   logger,
		workers:  workers,
		queue:    make(chan submission, size),
	}
}

// Start launches the worker goroutines. Tasks receive a context derived from ctx that is
// not cancelled with it; only Stop cancels running tasks, and only after its deadline.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.stopped {
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(context.WithoutCancel(ctx))

	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.loop()
	}
	r.logger.InfoContext(ctx, "job runner started", "workers", r.workers, "queue_size", cap(r.queue))
}

// Stop rejects new submissions, lets queued and running jobs finish, and returns once the
// pool is idle. If ctx expires first, running tasks are cancelled and ctx's error returned.
func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.queue)
	started := r.started
	r.mu.Unlock()

	if !started {
		for sub := range r.queue {
			telemetry.QueueDepth.Dec()
			r.reject(sub.id, sub.kind, ErrRunnerStopped)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		r.logger.InfoContext(ctx, "job runner stopped")
		return nil
	case <-ctx.Done():
		r.cancel()
		r.logger.WarnContext(ctx, "job runner stop deadline exceeded, cancelled running tasks")
		return fmt.Errorf("stop runner: %w", ctx.Err())
	}
}

// Submit records a new job and hands task to the pool without waiting for it to run.
// When the job cannot be accepted it is marked failed, and its id is returned with the error.
func (r *Runner) Submit(kind models.Kind, task jobs.Task, input any) (string, error) {
	if task == nil {
		return "", ErrNilTask
	}
	return r.enqueue(kind, func(ctx context.Context, _ string) (any, error) {
		return jobs.Invoke(ctx, task, input)
	})
}

// Poll returns the current snapshot of a job. It never waits for the job to progress.
func (r *Runner) Poll(id string) (models.Job, error) {
	return r.registry.Get(id)
}

// List returns snapshots of retained jobs matching f.
func (r *Runner) List(f jobs.Filter) []models.Job {
	return r.registry.List(f)
}

// Counts returns the number of retained jobs per status.
func (r *Runner) Counts() map[models.Status]int {
	return r.registry.Counts()
}

func (r *Runner) enqueue(kind models.Kind, run runFunc) (string, error) {
	id := r.registry.Create(kind)

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped {
		r.reject(id, kind, ErrRunnerStopped)
		return id, ErrRunnerStopped
	}
	select {
	case r.queue <- submission{id: id, kind: kind, run: run}:
		telemetry.JobsSubmitted.WithLabelValues(string(kind)).Inc()
		telemetry.QueueDepth.Inc()
		r.logger.Debug("job queued", "job_id", id, "kind", kind)
		return id, nil
	default:
		r.reject(id, kind, ErrQueueFull)
		return id, ErrQueueFull
	}
}

func (r *Runner) reject(id string, kind models.Kind, cause error) {
	reason := "stopped"
	if errors.Is(cause, ErrQueueFull) {
		reason = "queue_full"
	}
	telemetry.JobsRejected.WithLabelValues(string(kind), reason).Inc()
	if err := r.registry.Update(id, jobs.Update{Status: models.StatusFailed, Err: cause}); err != nil {
		r.logger.Error("record rejected job", "job_id", id, "kind", kind, "error", err)
		return
	}
	r.logger.Warn("job rejected", "job_id", id, "kind", kind, "reason", reason)
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for sub := range r.queue {
		telemetry.QueueDepth.Dec()
		r.execute(sub)
	}
}

func (r *Runner) execute(sub submission) {
	log := r.logger.With("job_id", sub.id, "kind", sub.kind)
	if err := r.registry.Update(sub.id, jobs.Update{Status: models.StatusRunning}); err != nil {
		log.Error("mark job running", "error", err)
		return
	}
	telemetry.InFlightGauge.Inc()
	defer telemetry.InFlightGauge.Dec()

	log.Info("job started")
	start := time.Now()
	result, err := jobs.Invoke(r.ctx, func(ctx context.Context, _ any) (any, error) {
		return sub.run(ctx, sub.id)
	}, nil)

	if err != nil {
		update := jobs.Update{Status: models.StatusFailed, Err: err}
		var stageErr *StageError
		if errors.As(err, &stageErr) {
			update.FailedStage = stageErr.Stage
		}
		attrs := []any{"error", err, "duration", time.Since(start)}
		var taskErr *jobs.TaskError
		if errors.As(err, &taskErr) && taskErr.Panic {
			attrs = append(attrs, "stack", string(taskErr.Stack))
		}
		log.Error("job failed", attrs...)
		if uerr := r.registry.Update(sub.id, update); uerr != nil {
			log.Error("record job failure", "error", uerr)
			return
		}
		telemetry.JobsFailed.WithLabelValues(string(sub.kind)).Inc()
		return
	}

	if uerr := r.registry.Update(sub.id, jobs.Update{Status: models.StatusCompleted, Result: result}); uerr != nil {
		log.Error("record job completion", "error", uerr)
		return
	}
	telemetry.JobsCompleted.WithLabelValues(string(sub.kind)).Inc()
	log.Info("job completed", "duration", time.Since(start))
}

// Await polls id every interval until the job reaches a terminal state or ctx ends.
func Await(ctx context.Context, r *Runner, id string, interval time.Duration) (models.Job, error) {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		job, err := r.Poll(id)
		if err != nil {
			return models.Job{}, err
		}
		if job.Status.IsTerminal() {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}
