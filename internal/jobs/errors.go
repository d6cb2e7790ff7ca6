package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a job id is unknown to the registry (never created or evicted).
	ErrNotFound = errors.New("job not found")
	// ErrInvalidTransition is returned when an update would leave a terminal state or move a job backwards.
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// TaskError records why a task unit failed. Panics are captured here rather than propagated.
type TaskError struct {
	Cause error
	Panic bool
	Stack []byte
}

func (e *TaskError) Error() string {
	if e.Panic {
		return fmt.Sprintf("task panicked: %v", e.Cause)
	}
	if e.Cause == nil {
		return "task failed"
	}
	return e.Cause.Error()
}

func (e *TaskError) Unwrap() error {
	return e.Cause
}
