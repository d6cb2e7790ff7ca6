package worker

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the backlog is at capacity.
	ErrQueueFull = errors.New("job queue is full")
	// ErrRunnerStopped is returned by Submit after Stop has been called.
	ErrRunnerStopped = errors.New("job runner is stopped")
	// ErrNilTask is returned when Submit is given no task.
	ErrNilTask = errors.New("nil task")
	// ErrNoStages is returned when a pipeline has nothing to run.
	ErrNoStages = errors.New("pipeline has no stages")
	// ErrInvalidStage is returned for stages without a name or function.
	ErrInvalidStage = errors.New("invalid pipeline stage")
)

// StageError identifies the pipeline stage that stopped a run.
type StageError struct {
	Stage string
	Index int // 1-based
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q failed: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}
