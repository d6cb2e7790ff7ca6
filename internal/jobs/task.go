package jobs

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
)

// Task is a schedulable unit of work. The result is opaque to the registry and stored unchanged.
type Task func(ctx context.Context, input any) (any, error)

// TaskOf adapts a typed function into a Task. A nil input is passed as the zero value of In;
// an input of the wrong type fails the task instead of panicking.
func TaskOf[In, Out any](fn func(context.Context, In) (Out, error)) Task {
	return func(ctx context.Context, input any) (any, error) {
		var in In
		if input != nil {
			v, ok := input.(In)
			if !ok {
				return nil, fmt.Errorf("task input: got %T, want %T", input, in)
			}
			in = v
		}
		return fn(ctx, in)
	}
}

// Invoke runs task and converts a panic into a *TaskError. Ordinary errors are returned as-is.
func Invoke(ctx context.Context, task Task, input any) (result any, err error) {
	if task == nil {
		return nil, &TaskError{Cause: errors.New("nil task")}
	}
	defer func() {
		if r := recover(); r != nil {
			cause, ok := r.(error)
			if !ok {
				cause = fmt.Errorf("%v", r)
			}
			result = nil
			err = &TaskError{Cause: cause, Panic: true, Stack: debug.Stack()}
		}
	}()
	return task(ctx, input)
}
