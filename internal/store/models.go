// Package store contains the database layer for actionplane.
package store

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusQueued    JobStatus = "QUEUED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// JobStatuses lists every job status in state machine order.
var JobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusQueued,
	JobStatusRunning,
	JobStatusCompleted,
	JobStatusFailed,
	JobStatusCancelled,
}

// IsTerminal reports whether no further transition may leave s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	for _, st := range JobStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// ICE holds the Impact, Confidence and Ease factors of a job, each on a 0-10 scale.
type ICE struct {
	Impact     float64 `json:"impact"`
	Confidence float64 `json:"confidence"`
	Ease       float64 `json:"ease"`
}

// Job is an independently schedulable unit of work owned by one agent.
// Its status is only ever changed through the queue manager.
type Job struct {
	ID             uuid.UUID
	OwnerID        string
	Type           string
	Payload        map[string]any
	Priority       int
	ManualPriority int
	ICE            *ICE
	Status         JobStatus
	DependsOn      []uuid.UUID
	NotBefore      time.Time
	CreatedAt      time.Time
	StartedAt      *time.Time
	CompletedAt    *time.Time
	RetryCount     int
	MaxRetries     int
	Result         map[string]any
	Error          *string
}

// JobUpdate carries the fields written together with a status change.
// StartedAt and CompletedAt are only applied when the stored value is unset.
type JobUpdate struct {
	Status      JobStatus
	StartedAt   *time.Time
	CompletedAt *time.Time
	Result      map[string]any
	Error       *string
}

// CandidateFilter selects claimable jobs.
type CandidateFilter struct {
	OwnerID string // empty matches every owner
	Now     time.Time
	Limit   int
	Offset  int
}

// JobFilter selects jobs for listing.
type JobFilter struct {
	OwnerID  string
	Statuses []JobStatus
	Limit    int
}

// PlaybookStatus represents the lifecycle state of a playbook.
type PlaybookStatus string

const (
	PlaybookStatusDraft     PlaybookStatus = "draft"
	PlaybookStatusActive    PlaybookStatus = "active"
	PlaybookStatusCompleted PlaybookStatus = "completed"
	PlaybookStatusPartial   PlaybookStatus = "partial"
	PlaybookStatusFailed    PlaybookStatus = "failed"
	PlaybookStatusCancelled PlaybookStatus = "cancelled"
)

// IsFinished reports whether the playbook reached an end status of a run.
func (s PlaybookStatus) IsFinished() bool {
	switch s {
	case PlaybookStatusCompleted, PlaybookStatusPartial, PlaybookStatusFailed, PlaybookStatusCancelled:
		return true
	}
	return false
}

// ActionStatus mirrors the status of the latest execution of a playbook action.
type ActionStatus string

const (
	ActionStatusPending   ActionStatus = "pending"
	ActionStatusRunning   ActionStatus = "running"
	ActionStatusCompleted ActionStatus = "completed"
	ActionStatusFailed    ActionStatus = "failed"
)

// PlaybookAction is one step of a playbook. ActionID is unique within its playbook only.
type PlaybookAction struct {
	ActionID    string
	Position    int
	Type        string
	Parameters  map[string]any
	Status      ActionStatus
	Result      map[string]any
	Error       *string
	ExecutionID *uuid.UUID
}

// Playbook is an ordered, named workflow for one owning agent.
type Playbook struct {
	ID          uuid.UUID
	OwnerID     string
	Title       string
	Status      PlaybookStatus
	Actions     []PlaybookAction
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// PlaybookProgress is derived from the action list; it is never stored.
type PlaybookProgress struct {
	Total              int
	Completed          int
	Failed             int
	InProgress         int
	Pending            int
	ProgressPercentage float64
}

// Progress counts the playbook's actions by status.
func (p *Playbook) Progress() PlaybookProgress {
	var pr PlaybookProgress
	pr.Total = len(p.Actions)
	for _, a := range p.Actions {
		switch a.Status {
		case ActionStatusCompleted:
			pr.Completed++
		case ActionStatusFailed:
			pr.Failed++
		case ActionStatusRunning:
			pr.InProgress++
		default:
			pr.Pending++
		}
	}
	if pr.Total > 0 {
		pr.ProgressPercentage = float64(pr.Completed) / float64(pr.Total) * 100
	}
	return pr
}

// ExecutionStatus represents the state of one attempt of a playbook action.
type ExecutionStatus string

const (
	ExecutionStatusQueued    ExecutionStatus = "queued"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
)

// Execution is the append-only audit record of one attempt of a playbook action.
type Execution struct {
	ID              uuid.UUID
	PlaybookID      uuid.UUID
	ActionID        string
	ExecutorName    string
	Status          ExecutionStatus
	InputParameters map[string]any
	OutputResult    map[string]any
	Logs            []string
	Errors          []string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	Duration        time.Duration
	CreatedAt       time.Time
}
