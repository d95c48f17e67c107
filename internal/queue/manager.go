// Package queue decides which job runs next and owns every job status change.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

const (
	MinPriority     = 0
	MaxPriority     = 100
	DefaultPriority = 50

	defaultPageSize = 100
)

var (
	// ErrInvalidJob is returned when an enqueue or priority request is malformed.
	ErrInvalidJob = errors.New("invalid job")
	// ErrCyclicDependency is returned when a job would transitively depend on itself.
	ErrCyclicDependency = errors.New("cyclic dependency")
)

// RetryPolicy bounds in-place re-execution of a failing job.
type RetryPolicy struct {
	MaxRetries int
}

// EnqueueRequest describes a new job. Zero values select the defaults.
type EnqueueRequest struct {
	ID          uuid.UUID
	OwnerID     string
	Type        string
	Payload     map[string]any
	Priority    *int
	NotBefore   time.Time
	DependsOn   []uuid.UUID
	RetryPolicy RetryPolicy
	ICE         *store.ICE
}

// Stats is a per-status job count.
type Stats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// Options tune a Manager.
type Options struct {
	// PageSize is the number of candidates examined per store round trip in ClaimNext.
	PageSize int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager is the only component allowed to change a job's status.
type Manager struct {
	store    store.JobStore
	logger   *slog.Logger
	pageSize int
	now      func() time.Time
}

// New creates a queue manager on top of a job store.
func New(s store.JobStore, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		store:    s,
		logger:   logger.With("component", "queue"),
		pageSize: opts.PageSize,
		now:      opts.Now,
	}
}

// Enqueue validates and stores a new PENDING job and returns its id.
func (m *Manager) Enqueue(ctx context.Context, req EnqueueRequest) (uuid.UUID, error) {
	if req.OwnerID == "" {
		return uuid.Nil, fmt.Errorf("%w: owner_id is required", ErrInvalidJob)
	}
	if req.Type == "" {
		return uuid.Nil, fmt.Errorf("%w: type is required", ErrInvalidJob)
	}
	if req.RetryPolicy.MaxRetries < 0 {
		return uuid.Nil, fmt.Errorf("%w: max_retries must not be negative", ErrInvalidJob)
	}

	manual := DefaultPriority
	if req.Priority != nil {
		manual = *req.Priority
	}
	if manual < MinPriority || manual > MaxPriority {
		return uuid.Nil, fmt.Errorf("%w: priority %d out of range %d..%d", ErrInvalidJob, manual, MinPriority, MaxPriority)
	}

	// ICE factors are stored as given; Reprioritize folds them into the priority.
	var ice *store.ICE
	if req.ICE != nil {
		c := *req.ICE
		ice = &c
	}

	id := req.ID
	callerChosenID := id != uuid.Nil
	if !callerChosenID {
		id = uuid.New()
	}

	if callerChosenID {
		_, err := m.store.GetJob(ctx, id)
		if err == nil {
			return uuid.Nil, fmt.Errorf("job %s: %w", id, store.ErrAlreadyExists)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("failed to look up job %s: %w", id, err)
		}
	}

	deps := dedupe(req.DependsOn)
	for _, dep := range deps {
		if dep == id {
			return uuid.Nil, fmt.Errorf("%w: job %s depends on itself", ErrCyclicDependency, id)
		}
	}

	if len(deps) > 0 {
		statuses, err := m.store.GetJobStatuses(ctx, deps)
		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to look up dependencies: %w", err)
		}
		for _, dep := range deps {
			if _, ok := statuses[dep]; !ok {
				return uuid.Nil, fmt.Errorf("%w: dependency %s does not exist", ErrInvalidJob, dep)
			}
		}
		// Jobs written outside Enqueue (imports, direct SQL) may already point at a
		// caller-chosen id. A generated id cannot be referenced by any stored job.
		if callerChosenID {
			if err := m.checkCycle(ctx, id, deps); err != nil {
				return uuid.Nil, err
			}
		}
	}

	now := m.now()
	notBefore := req.NotBefore
	if notBefore.IsZero() {
		notBefore = now
	}

	job := &store.Job{
		ID:             id,
		OwnerID:        req.OwnerID,
		Type:           req.Type,
		Payload:        req.Payload,
		Priority:       manual,
		ManualPriority: manual,
		ICE:            ice,
		Status:         store.JobStatusPending,
		DependsOn:      deps,
		NotBefore:      notBefore,
		CreatedAt:      now,
		MaxRetries:     req.RetryPolicy.MaxRetries,
	}

	if err := m.store.InsertJob(ctx, job); err != nil {
		return uuid.Nil, err
	}

	m.logger.Info("job enqueued",
		"job_id", id,
		"owner_id", job.OwnerID,
		"type", job.Type,
		"priority", job.Priority,
		"depends_on", len(deps),
	)
	return id, nil
}

// checkCycle walks the dependency graph below deps and fails if it reaches id.
func (m *Manager) checkCycle(ctx context.Context, id uuid.UUID, deps []uuid.UUID) error {
	visited := make(map[uuid.UUID]bool)
	stack := append([]uuid.UUID(nil), deps...)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == id {
			return fmt.Errorf("%w: job %s is reachable from its own dependencies", ErrCyclicDependency, id)
		}
		if visited[cur] {
			continue
		}
		visited[cur] = true

		job, err := m.store.GetJob(ctx, cur)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to walk dependencies: %w", err)
		}
		stack = append(stack, job.DependsOn...)
	}
	return nil
}

// ClaimNext atomically claims the highest-priority ready job, optionally for one owner.
// It returns nil, nil when no job is ready.
func (m *Manager) ClaimNext(ctx context.Context, ownerID string) (*store.Job, error) {
	now := m.now()

	// Claims by other workers can shift later pages; anything skipped is seen on the next poll.
	for offset := 0; ; {
		candidates, err := m.store.ListClaimCandidates(ctx, store.CandidateFilter{
			OwnerID: ownerID,
			Now:     now,
			Limit:   m.pageSize,
			Offset:  offset,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list candidates: %w", err)
		}
		if len(candidates) == 0 {
			return nil, nil
		}

		ready, err := m.readyJobs(ctx, candidates)
		if err != nil {
			return nil, err
		}

		for _, c := range ready {
			job, ok, err := m.store.ClaimJob(ctx, c.ID, now)
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to claim job %s: %w", c.ID, err)
			}
			if !ok {
				m.logger.Debug("lost claim race", "job_id", c.ID)
				continue
			}
			m.logger.Info("job claimed", "job_id", job.ID, "type", job.Type, "priority", job.Priority)
			return job, nil
		}

		if len(candidates) < m.pageSize {
			return nil, nil
		}
		offset += len(candidates)
	}
}

// readyJobs keeps the candidates whose dependencies are all COMPLETED, preserving order.
func (m *Manager) readyJobs(ctx context.Context, candidates []*store.Job) ([]*store.Job, error) {
	var deps []uuid.UUID
	for _, c := range candidates {
		deps = append(deps, c.DependsOn...)
	}
	if len(deps) == 0 {
		return candidates, nil
	}

	statuses, err := m.store.GetJobStatuses(ctx, dedupe(deps))
	if err != nil {
		return nil, fmt.Errorf("failed to check dependencies: %w", err)
	}

	ready := candidates[:0:0]
	for _, c := range candidates {
		if dependenciesMet(c, statuses) {
			ready = append(ready, c)
		}
	}
	return ready, nil
}

func dependenciesMet(job *store.Job, statuses map[uuid.UUID]store.JobStatus) bool {
	for _, dep := range job.DependsOn {
		if statuses[dep] != store.JobStatusCompleted {
			return false
		}
	}
	return true
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[uuid.UUID]bool, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
