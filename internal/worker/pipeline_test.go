package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safety-analytics/internal/jobs"
	"safety-analytics/internal/models"
)

func intStage(name string, fn func(int) int) Stage {
	return Stage{Name: name, Run: jobs.TaskOf(func(_ context.Context, n int) (int, error) {
		return fn(n), nil
	})}
}

func TestRunPipeline_ComposesStages(t *testing.T) {
	r, _ := newTestRunner(t, Options{})
	stages := []Stage{
		intStage("A", func(n int) int { return n + 1 }),
		intStage("B", func(n int) int { return n * 2 }),
		intStage("C", func(n int) int { return n - 3 }),
	}

	id, err := r.RunPipeline(models.KindIngestionPipeline, stages, 5)
	require.NoError(t, err)

	job := waitTerminal(t, r, id)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, ((5+1)*2)-3, job.Result)
	assert.Equal(t, "C", job.CurrentStage)
	assert.Equal(t, 3, job.StageIndex)
	assert.Equal(t, 3, job.StageCount)
	assert.Empty(t, job.FailedStage)
}

func TestRunPipeline_StopsAtFailingStage(t *testing.T) {
	r, _ := newTestRunner(t, Options{})
	var cCalls atomic.Int32

	stages := []Stage{
		intStage("A", func(n int) int { return n + 100 }),
		{Name: "B", Run: func(context.Context, any) (any, error) {
			return nil, errors.New("geocoder unavailable")
		}},
		{Name: "C", Run: func(_ context.Context, in any) (any, error) {
			cCalls.Add(1)
			return in, nil
		}},
	}

	id, err := r.RunPipeline(models.KindIngestionPipeline, stages, 1)
	require.NoError(t, err)

	job := waitTerminal(t, r, id)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, "B", job.FailedStage)
	assert.Equal(t, "B", job.CurrentStage)
	assert.Contains(t, job.Error, `stage "B" failed`)
	assert.Contains(t, job.Error, "geocoder unavailable")
	assert.Nil(t, job.Result)
	assert.Zero(t, cCalls.Load())
}

func TestRunPipeline_StagePanic(t *testing.T) {
	r, _ := newTestRunner(t, Options{})
	stages := []Stage{
		intStage("parse", func(n int) int { return n }),
		{Name: "explode", Run: func(context.Context, any) (any, error) {
			var m map[string]int
			m["x"] = 1
			return m, nil
		}},
	}

	id, err := r.RunPipeline("test", stages, 0)
	require.NoError(t, err)

	job := waitTerminal(t, r, id)
	assert.Equal(t, models.StatusFailed, job.Status)
	assert.Equal(t, "explode", job.FailedStage)
	assert.Contains(t, job.Error, "panicked")
}

func TestRunPipeline_ReportsCurrentStage(t *testing.T) {
	r, _ := newTestRunner(t, Options{})
	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	entered := make(chan string, 2)

	gated := func(name string, gate chan struct{}) Stage {
		return Stage{Name: name, Run: func(_ context.Context, in any) (any, error) {
			entered <- name
			<-gate
			return in, nil
		}}
	}
	id, err := r.RunPipeline("test", []Stage{gated("first", gates[0]), gated("second", gates[1])}, nil)
	require.NoError(t, err)

	require.Equal(t, "first", <-entered)
	job, _ := r.Poll(id)
	assert.Equal(t, models.StatusRunning, job.Status)
	assert.Equal(t, "first", job.CurrentStage)
	assert.Equal(t, 1, job.StageIndex)

	close(gates[0])
	require.Equal(t, "second", <-entered)
	job, _ = r.Poll(id)
	assert.Equal(t, "second", job.CurrentStage)
	assert.Equal(t, 2, job.StageIndex)

	close(gates[1])
	job = waitTerminal(t, r, id)
	assert.Equal(t, models.StatusCompleted, job.Status)
	assert.Equal(t, models.CompletionMarker{Completed: true}, job.Result)
}

func TestRunPipeline_Validation(t *testing.T) {
	r, reg := newTestRunner(t, Options{})

	_, err := r.RunPipeline("test", nil, nil)
	require.ErrorIs(t, err, ErrNoStages)

	_, err = r.RunPipeline("test", []Stage{{Name: "", Run: func(context.Context, any) (any, error) { return nil, nil }}}, nil)
	require.ErrorIs(t, err, ErrInvalidStage)

	_, err = r.RunPipeline("test", []Stage{{Name: "nothing"}}, nil)
	require.ErrorIs(t, err, ErrInvalidStage)

	assert.Empty(t, reg.List(jobs.Filter{}))
}

func TestRunStages_CancelledBeforeFirstStage(t *testing.T) {
	reg := jobs.NewRegistry()
	r := NewRunner(reg, Options{Logger: quietLogger()})
	id := reg.Create(models.KindIngestionPipeline)
	require.NoError(t, reg.Update(id, jobs.Update{Status: models.StatusRunning}))

	var calls atomic.Int32
	stages := []Stage{
		{Name: "A", Run: func(_ context.Context, in any) (any, error) {
			calls.Add(1)
			return in, nil
		}},
		intStage("B", func(n int) int { return n }),
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.runStages(ctx, id, stages, 1)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "A", stageErr.Stage)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.Load())

	job, err := reg.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "A", job.CurrentStage)
	assert.Equal(t, 1, job.StageIndex)
	assert.Equal(t, 2, job.StageCount)
}
