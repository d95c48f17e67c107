// Package executor defines the contract between the scheduling layer and the
// handlers that perform the actual work of an action.
package executor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrUnknownExecutor is returned when no executor is registered for a type.
	ErrUnknownExecutor = errors.New("unknown executor")
	// ErrExecutorFailure matches every failure reported or raised by an executor.
	ErrExecutorFailure = errors.New("executor failure")
	// ErrDuplicateExecutor is returned when a type is registered twice.
	ErrDuplicateExecutor = errors.New("executor already registered")
)

// Action is the input handed to an executor.
type Action struct {
	Type       string
	Parameters map[string]any
	OwnerID    string
	PlaybookID *uuid.UUID
	JobID      *uuid.UUID
}

// Result is what an executor reports back.
type Result struct {
	Success bool
	Result  map[string]any
	Logs    []string
	Errors  []string
}

// Executor runs one kind of action.
// Implementations should return promptly once ctx is cancelled.
type Executor interface {
	Execute(ctx context.Context, action Action) (Result, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, action Action) (Result, error)

func (f Func) Execute(ctx context.Context, action Action) (Result, error) {
	return f(ctx, action)
}

// FailureError carries an executor's own error message unchanged.
type FailureError struct {
	Type    string
	Message string
}

func (e *FailureError) Error() string {
	return e.Message
}

func (e *FailureError) Is(target error) bool {
	return target == ErrExecutorFailure
}
