package executor

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
)

// Registry maps action types to executors.
// It is filled once at startup and only read afterwards.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{executors: make(map[string]Executor)}
}

// Register adds an executor under the given type.
func (r *Registry) Register(typ string, e Executor) error {
	if typ == "" {
		return fmt.Errorf("executor type is required")
	}
	if e == nil {
		return fmt.Errorf("executor for %q is nil", typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.executors[typ]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateExecutor, typ)
	}
	r.executors[typ] = e
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(typ string, e Executor) {
	if err := r.Register(typ, e); err != nil {
		panic(err)
	}
}

// Lookup returns the executor registered for typ.
func (r *Registry) Lookup(typ string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[typ]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExecutor, typ)
	}
	return e, nil
}

// Names returns the registered types in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return slices.Sorted(maps.Keys(r.executors))
}

// Run resolves and invokes the executor for action.Type.
//
// The returned error is nil only when the executor reported success. Errors
// returned by the executor, panics and success=false are all reported as
// *FailureError, which matches ErrExecutorFailure. An unregistered type
// returns ErrUnknownExecutor. The Result is returned in every case so the
// caller can record logs and partial output.
func (r *Registry) Run(ctx context.Context, action Action) (res Result, err error) {
	e, err := r.Lookup(action.Type)
	if err != nil {
		return Result{Errors: []string{err.Error()}}, err
	}

	defer func() {
		if p := recover(); p != nil {
			msg := fmt.Sprintf("executor %q panicked: %v", action.Type, p)
			res = Result{Logs: res.Logs, Errors: append(res.Errors, msg)}
			err = &FailureError{Type: action.Type, Message: msg}
		}
	}()

	res, err = e.Execute(ctx, action)
	if err != nil {
		res.Success = false
		res.Errors = append(res.Errors, err.Error())
		return res, &FailureError{Type: action.Type, Message: err.Error()}
	}
	if !res.Success {
		msg := "executor reported failure"
		if len(res.Errors) > 0 {
			msg = strings.Join(res.Errors, "; ")
		}
		return res, &FailureError{Type: action.Type, Message: msg}
	}
	return res, nil
}
