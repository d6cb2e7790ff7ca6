package worker

import (
	"context"
	"fmt"
	"time"

	"safety-analytics/internal/jobs"
	"safety-analytics/internal/models"
	"safety-analytics/internal/telemetry"
)

// Stage is one named step of a pipeline. It receives the previous stage's output.
type Stage struct {
	Name string
	Run  jobs.Task
}

// RunPipeline submits stages as a single job. Stages run strictly in order; the first
// failure stops the run and is recorded against the failing stage.
func (r *Runner) RunPipeline(kind models.Kind, stages []Stage, input any) (string, error) {
	if len(stages) == 0 {
		return "", ErrNoStages
	}
	for i, st := range stages {
		if st.Name == "" || st.Run == nil {
			return "", fmt.Errorf("%w: stage %d needs a name and a function", ErrInvalidStage, i+1)
		}
	}
	plan := append([]Stage(nil), stages...)
	return r.enqueue(kind, func(ctx context.Context, id string) (any, error) {
		return r.runStages(ctx, id, plan, input)
	})
}

func (r *Runner) runStages(ctx context.Context, id string, stages []Stage, input any) (any, error) {
	out := input
	for i, st := range stages {
		// The failed stage is always the one last recorded as current.
		err := r.registry.Update(id, jobs.Update{
			Status:     models.StatusRunning,
			Stage:      st.Name,
			StageIndex: i + 1,
			StageCount: len(stages),
		})
		if err != nil {
			return nil, fmt.Errorf("record stage %q: %w", st.Name, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: st.Name, Index: i + 1, Cause: err}
		}
		r.logger.InfoContext(ctx, "pipeline stage started", "job_id", id, "stage", st.Name, "index", i+1, "of", len(stages))

		start := time.Now()
		next, err := jobs.Invoke(ctx, st.Run, out)
		elapsed := time.Since(start)
		if err != nil {
			telemetry.StageDuration.WithLabelValues(st.Name, "failed").Observe(elapsed.Seconds())
			return nil, &StageError{Stage: st.Name, Index: i + 1, Cause: err}
		}
		telemetry.StageDuration.WithLabelValues(st.Name, "completed").Observe(elapsed.Seconds())
		r.logger.InfoContext(ctx, "pipeline stage finished", "job_id", id, "stage", st.Name, "duration", elapsed)
		out = next
	}
	return out, nil
}
