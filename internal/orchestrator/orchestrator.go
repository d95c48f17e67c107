// Package orchestrator runs playbooks: ordered action lists executed one
// action at a time, tolerating the failure of individual actions.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"actionplane/internal/executor"
	"actionplane/internal/observability"
	"actionplane/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "actionplane/orchestrator"

// ErrInvalidPlaybook is returned when a playbook definition is malformed.
var ErrInvalidPlaybook = errors.New("invalid playbook")

// Runner executes an action through the executor registry.
type Runner interface {
	Run(ctx context.Context, action executor.Action) (executor.Result, error)
}

// Orchestrator owns the lifecycle of playbooks, their actions and executions.
type Orchestrator struct {
	store   store.PlaybookStore
	runner  Runner
	logger  *slog.Logger
	metrics *observability.PlaybookMetrics
	now     func() time.Time
	wg      sync.WaitGroup
}

// New creates an orchestrator.
func New(s store.PlaybookStore, runner Runner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "orchestrator")

	metrics, err := observability.NewPlaybookMetrics(otel.Meter(instrumentationName))
	if err != nil {
		logger.Warn("playbook metrics disabled", "error", err)
		metrics = observability.NoopPlaybookMetrics()
	}

	return &Orchestrator{
		store:   s,
		runner:  runner,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// ActionSpec is one step of a playbook definition.
type ActionSpec struct {
	ActionID   string
	Type       string
	Parameters map[string]any
}

// CreateRequest defines a new playbook.
type CreateRequest struct {
	OwnerID string
	Title   string
	Actions []ActionSpec
}

// CreatePlaybook stores a draft playbook. Action ids must be unique within it.
func (o *Orchestrator) CreatePlaybook(ctx context.Context, req CreateRequest) (*store.Playbook, error) {
	if req.OwnerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", ErrInvalidPlaybook)
	}

	seen := make(map[string]bool, len(req.Actions))
	actions := make([]store.PlaybookAction, 0, len(req.Actions))
	for i, a := range req.Actions {
		if a.ActionID == "" || a.Type == "" {
			return nil, fmt.Errorf("%w: action %d needs action_id and type", ErrInvalidPlaybook, i)
		}
		if seen[a.ActionID] {
			return nil, fmt.Errorf("%w: duplicate action_id %q", ErrInvalidPlaybook, a.ActionID)
		}
		seen[a.ActionID] = true

		actions = append(actions, store.PlaybookAction{
			ActionID:   a.ActionID,
			Position:   i,
			Type:       a.Type,
			Parameters: a.Parameters,
			Status:     store.ActionStatusPending,
		})
	}

	pb := &store.Playbook{
		ID:        uuid.New(),
		OwnerID:   req.OwnerID,
		Title:     req.Title,
		Status:    store.PlaybookStatusDraft,
		Actions:   actions,
		CreatedAt: o.now(),
	}
	if err := o.store.CreatePlaybook(ctx, pb); err != nil {
		return nil, err
	}

	o.logger.Info("playbook created", "playbook_id", pb.ID, "owner_id", pb.OwnerID, "actions", len(actions))
	return pb, nil
}

// GetPlaybook returns the stored playbook.
func (o *Orchestrator) GetPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	return o.store.GetPlaybook(ctx, id)
}

// ListExecutions returns every execution record of a playbook, oldest first.
func (o *Orchestrator) ListExecutions(ctx context.Context, id uuid.UUID) ([]*store.Execution, error) {
	return o.store.ListExecutions(ctx, id)
}

// CancelPlaybook stops a draft or active playbook. A run in progress stops
// before its next action; the remaining actions stay pending.
func (o *Orchestrator) CancelPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	from := []store.PlaybookStatus{store.PlaybookStatusDraft, store.PlaybookStatusActive}
	if err := o.store.TransitionPlaybook(ctx, id, from, store.PlaybookStatusCancelled, o.now()); err != nil {
		return nil, err
	}
	o.logger.Info("playbook cancelled", "playbook_id", id)
	return o.store.GetPlaybook(ctx, id)
}

// RunPlaybook executes a playbook synchronously and returns its final state.
//
// Draft playbooks run every action. Partial or failed playbooks resume:
// completed actions are skipped, every other action runs again with a new
// execution record. Active, completed and cancelled playbooks are rejected
// with store.ErrInvalidTransition.
func (o *Orchestrator) RunPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	pb, err := o.start(ctx, id)
	if err != nil {
		return nil, err
	}
	return o.execute(ctx, pb)
}

// StartPlaybook activates a playbook and runs it in the background.
// Errors that prevent the start (not found, wrong status) are returned directly.
func (o *Orchestrator) StartPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	pb, err := o.start(ctx, id)
	if err != nil {
		return nil, err
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		if _, err := o.execute(context.WithoutCancel(ctx), pb); err != nil {
			o.logger.Error("background playbook run failed", "playbook_id", id, "error", err)
		}
	}()
	return pb, nil
}

// Wait blocks until every background run started with StartPlaybook returned.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) start(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	pb, err := o.store.GetPlaybook(ctx, id)
	if err != nil {
		return nil, err
	}

	from := []store.PlaybookStatus{store.PlaybookStatusDraft, store.PlaybookStatusPartial, store.PlaybookStatusFailed}
	if err := o.store.TransitionPlaybook(ctx, id, from, store.PlaybookStatusActive, o.now()); err != nil {
		if errors.Is(err, store.ErrInvalidTransition) {
			return nil, fmt.Errorf("%w: playbook %s is %s", err, id, pb.Status)
		}
		return nil, err
	}
	pb.Status = store.PlaybookStatusActive
	return pb, nil
}

func (o *Orchestrator) execute(ctx context.Context, pb *store.Playbook) (*store.Playbook, error) {
	logger := o.logger.With("playbook_id", pb.ID, "owner_id", pb.OwnerID)
	storeCtx := context.WithoutCancel(ctx)

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "run_playbook",
		trace.WithAttributes(
			attribute.String("playbook.id", pb.ID.String()),
			attribute.String("owner.id", pb.OwnerID),
			attribute.Int("playbook.actions", len(pb.Actions)),
		),
	)
	defer span.End()

	logger.Info("playbook started", "actions", len(pb.Actions))

	for i := range pb.Actions {
		action := &pb.Actions[i]
		if action.Status == store.ActionStatusCompleted {
			continue
		}

		if stop, reason := o.shouldStop(ctx, storeCtx, pb.ID); stop {
			logger.Info("playbook stopped before action", "action_id", action.ActionID, "reason", reason)
			if ctx.Err() != nil {
				o.finish(storeCtx, logger, pb.ID, store.PlaybookStatusCancelled)
			} else {
				o.metrics.RecordFinished(storeCtx, string(store.PlaybookStatusCancelled))
			}
			span.SetStatus(codes.Error, reason)
			return o.store.GetPlaybook(storeCtx, pb.ID)
		}

		o.runAction(ctx, storeCtx, logger, pb, action)
	}

	status := AggregateStatus(pb.Actions)
	o.finish(storeCtx, logger, pb.ID, status)
	if status != store.PlaybookStatusCompleted {
		span.SetStatus(codes.Error, string(status))
	}

	return o.store.GetPlaybook(storeCtx, pb.ID)
}

// shouldStop reports whether the run must end before the next action.
func (o *Orchestrator) shouldStop(ctx, storeCtx context.Context, id uuid.UUID) (bool, string) {
	if ctx.Err() != nil {
		return true, "context cancelled"
	}
	current, err := o.store.GetPlaybook(storeCtx, id)
	if err != nil {
		o.logger.Warn("could not re-read playbook status", "playbook_id", id, "error", err)
		return false, ""
	}
	if current.Status == store.PlaybookStatusCancelled {
		return true, "playbook cancelled"
	}
	return false, ""
}

func (o *Orchestrator) finish(ctx context.Context, logger *slog.Logger, id uuid.UUID, status store.PlaybookStatus) {
	err := o.store.TransitionPlaybook(ctx, id, []store.PlaybookStatus{store.PlaybookStatusActive}, status, o.now())
	if err != nil {
		// Cancelled while the last action was running.
		logger.Warn("final playbook status not recorded", "status", status, "error", err)
		return
	}
	logger.Info("playbook finished", "status", status)
	o.metrics.RecordFinished(ctx, string(status))
}

// runAction runs one action and records an execution for it. Executor failures
// and store errors are recorded or logged; they never stop the playbook.
func (o *Orchestrator) runAction(ctx, storeCtx context.Context, logger *slog.Logger, pb *store.Playbook, action *store.PlaybookAction) {
	logger = logger.With("action_id", action.ActionID, "type", action.Type)

	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "run_action",
		trace.WithAttributes(
			attribute.String("action.id", action.ActionID),
			attribute.String("action.type", action.Type),
		),
	)
	defer span.End()

	now := o.now()
	exec := &store.Execution{
		ID:              uuid.New(),
		PlaybookID:      pb.ID,
		ActionID:        action.ActionID,
		ExecutorName:    action.Type,
		Status:          store.ExecutionStatusQueued,
		InputParameters: action.Parameters,
		CreatedAt:       now,
	}
	recorded := true
	if err := o.store.CreateExecution(storeCtx, exec); err != nil {
		logger.Error("failed to create execution", "error", err)
		recorded = false
	}

	started := o.now()
	exec.Status = store.ExecutionStatusRunning
	exec.StartedAt = &started
	if recorded {
		if err := o.store.UpdateExecution(storeCtx, exec); err != nil {
			logger.Error("failed to mark execution running", "error", err)
		}
	}

	action.Status = store.ActionStatusRunning
	action.Result = nil
	action.Error = nil
	if recorded {
		action.ExecutionID = &exec.ID
	}
	if err := o.store.UpdatePlaybookAction(storeCtx, pb.ID, *action); err != nil {
		logger.Error("failed to mark action running", "error", err)
	}

	res, err := o.runner.Run(ctx, executor.Action{
		Type:       action.Type,
		Parameters: action.Parameters,
		OwnerID:    pb.OwnerID,
		PlaybookID: &pb.ID,
	})

	completed := o.now()
	exec.CompletedAt = &completed
	exec.Duration = completed.Sub(started)
	exec.OutputResult = res.Result
	exec.Logs = res.Logs
	exec.Errors = res.Errors

	if err == nil {
		exec.Status = store.ExecutionStatusCompleted
		action.Status = store.ActionStatusCompleted
		action.Result = res.Result
		logger.Info("action completed", "duration", exec.Duration)
	} else {
		msg := err.Error()
		exec.Status = store.ExecutionStatusFailed
		if len(exec.Errors) == 0 {
			exec.Errors = []string{msg}
		}
		action.Status = store.ActionStatusFailed
		action.Error = &msg
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		logger.Warn("action failed", "error", msg, "duration", exec.Duration)
	}

	if recorded {
		if err := o.store.UpdateExecution(storeCtx, exec); err != nil {
			logger.Error("failed to record execution outcome", "error", err)
		}
	}
	if err := o.store.UpdatePlaybookAction(storeCtx, pb.ID, *action); err != nil {
		logger.Error("failed to record action outcome", "error", err)
	}
}

// AggregateStatus derives a finished playbook's status from its actions.
func AggregateStatus(actions []store.PlaybookAction) store.PlaybookStatus {
	var succeeded, failed int
	for _, a := range actions {
		switch a.Status {
		case store.ActionStatusCompleted:
			succeeded++
		case store.ActionStatusFailed:
			failed++
		}
	}

	switch {
	case failed == 0:
		return store.PlaybookStatusCompleted
	case succeeded > 0:
		return store.PlaybookStatusPartial
	default:
		return store.PlaybookStatusFailed
	}
}
