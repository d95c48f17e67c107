package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// DBTransaction defines the methods shared by *sql.DB and *sql.Tx
// This allows us to pass either a connection pool or an active transaction to the repository methods.
type DBTransaction interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// JobStore handles the persistence of queued jobs.
// Every status change is a conditional update: the store is the only lock between workers.
type JobStore interface {
	// InsertJob persists a new job.
	InsertJob(ctx context.Context, job *Job) error

	// GetJob returns a job by its ID, or ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// GetJobStatuses returns the status of every existing job among ids.
	// Unknown ids are absent from the map.
	GetJobStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]JobStatus, error)

	// ListClaimCandidates returns PENDING jobs whose not_before has passed,
	// ordered by priority descending, then created_at and id ascending.
	ListClaimCandidates(ctx context.Context, filter CandidateFilter) ([]*Job, error)

	// ClaimJob moves a job from PENDING to QUEUED and stamps started_at in a single
	// conditional update. It returns false when another caller claimed it first.
	ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*Job, bool, error)

	// UpdateJobStatus applies update only if the stored status still equals from.
	// It returns ErrNotFound for unknown jobs and ErrInvalidTransition on a status mismatch.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, from JobStatus, update JobUpdate) (*Job, error)

	// IncrementRetry bumps retry_count of a RUNNING job that has retries left.
	IncrementRetry(ctx context.Context, id uuid.UUID) (int, error)

	// UpdateJobPriority rewrites the priority of a PENDING job.
	UpdateJobPriority(ctx context.Context, id uuid.UUID, priority, manualPriority int) error

	// ListJobs returns jobs matching filter, oldest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*Job, error)

	// CountJobsByStatus counts jobs per status; an empty ownerID counts every owner.
	CountJobsByStatus(ctx context.Context, ownerID string) (map[JobStatus]int64, error)

	// ListOwners returns the distinct owners having at least one job in status.
	ListOwners(ctx context.Context, status JobStatus) ([]string, error)
}

// PlaybookStore handles playbooks, their ordered actions and the execution history.
type PlaybookStore interface {
	// CreatePlaybook inserts a playbook together with its actions.
	CreatePlaybook(ctx context.Context, playbook *Playbook) error

	// GetPlaybook returns a playbook with its actions in list order, or ErrNotFound.
	GetPlaybook(ctx context.Context, id uuid.UUID) (*Playbook, error)

	// TransitionPlaybook moves a playbook to status if its current status is one of from.
	// Moving to active stamps started_at and clears completed_at; any finished status stamps completed_at.
	TransitionPlaybook(ctx context.Context, id uuid.UUID, from []PlaybookStatus, to PlaybookStatus, at time.Time) error

	// UpdatePlaybookAction stores the status, result, error and execution of one action.
	UpdatePlaybookAction(ctx context.Context, playbookID uuid.UUID, action PlaybookAction) error

	// CreateExecution appends an execution record.
	CreateExecution(ctx context.Context, execution *Execution) error

	// UpdateExecution rewrites the mutable fields of an execution record.
	UpdateExecution(ctx context.Context, execution *Execution) error

	// GetExecution returns an execution by its ID, or ErrNotFound.
	GetExecution(ctx context.Context, id uuid.UUID) (*Execution, error)

	// ListExecutions returns every execution of a playbook in creation order.
	ListExecutions(ctx context.Context, playbookID uuid.UUID) ([]*Execution, error)
}
