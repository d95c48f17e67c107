// Package api contains shared JSON request/response structs.
// This package is shared between the CLI and Controller.
package api

import "time"

// ICE carries the Impact, Confidence and Ease factors (0-10 each).
type ICE struct {
	Impact     float64 `json:"impact" validate:"gte=0,lte=10"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=10"`
	Ease       float64 `json:"ease" validate:"gte=0,lte=10"`
}

// EnqueueRequest is the request body for submitting a new job.
// The owner comes from the X-Owner-ID header.
type EnqueueRequest struct {
	ID      string         `json:"id,omitempty" validate:"omitempty,uuid"`
	Type    string         `json:"type" validate:"required"`
	Payload map[string]any `json:"payload,omitempty"`
	// Priority must be between 0 and 100, defaults to 50
	Priority   *int       `json:"priority,omitempty" validate:"omitempty,gte=0,lte=100"`
	NotBefore  *time.Time `json:"not_before,omitempty"`
	DependsOn  []string   `json:"depends_on,omitempty" validate:"omitempty,dive,uuid"`
	MaxRetries int        `json:"max_retries,omitempty" validate:"gte=0"`
	ICE        *ICE       `json:"ice,omitempty"`
}

// EnqueueResponse is the response body after submitting a job.
type EnqueueResponse struct {
	JobID string `json:"job_id"`
}

// JobResponse is the response body for job status queries.
type JobResponse struct {
	ID          string         `json:"id"`
	OwnerID     string         `json:"owner_id"`
	Type        string         `json:"type"`
	Status      string         `json:"status"`
	Priority    int            `json:"priority"`
	Payload     map[string]any `json:"payload,omitempty"`
	DependsOn   []string       `json:"depends_on,omitempty"`
	ICE         *ICE           `json:"ice,omitempty"`
	RetryCount  int            `json:"retry_count"`
	MaxRetries  int            `json:"max_retries"`
	NotBefore   time.Time      `json:"not_before"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
}

// SetPriorityRequest is the request body for PUT /jobs/{id}/priority.
type SetPriorityRequest struct {
	Priority *int `json:"priority" validate:"required,gte=0,lte=100"`
}

// CancelRequest is the optional request body for cancelling a job.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

// StatsResponse holds per-status job counts.
type StatsResponse struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
}

// ReprioritizeResponse reports how many jobs changed priority.
type ReprioritizeResponse struct {
	Updated int `json:"updated"`
}

// ActionSpec is one step of a playbook to create.
type ActionSpec struct {
	ActionID   string         `json:"action_id" validate:"required"`
	Type       string         `json:"type" validate:"required"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CreatePlaybookRequest is the request body for POST /playbooks.
type CreatePlaybookRequest struct {
	Title   string       `json:"title" validate:"required"`
	Actions []ActionSpec `json:"actions" validate:"omitempty,dive"`
}

// PlaybookAction is one step of a stored playbook.
type PlaybookAction struct {
	ActionID    string         `json:"action_id"`
	Type        string         `json:"type"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Status      string         `json:"status"`
	Result      map[string]any `json:"result,omitempty"`
	Error       *string        `json:"error,omitempty"`
	ExecutionID *string        `json:"execution_id,omitempty"`
}

// PlaybookResponse is the response body for playbook queries.
type PlaybookResponse struct {
	ID          string           `json:"id"`
	OwnerID     string           `json:"owner_id"`
	Title       string           `json:"title"`
	Status      string           `json:"status"`
	Actions     []PlaybookAction `json:"actions"`
	CreatedAt   time.Time        `json:"created_at"`
	StartedAt   *time.Time       `json:"started_at,omitempty"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// Progress summarises a playbook's actions.
type Progress struct {
	Total              int     `json:"total_actions"`
	Completed          int     `json:"completed_actions"`
	Failed             int     `json:"failed_actions"`
	InProgress         int     `json:"in_progress_actions"`
	Pending            int     `json:"pending_actions"`
	ProgressPercentage float64 `json:"progress_percentage"`
}

// ActionStatus is the per-action detail of a playbook status.
type ActionStatus struct {
	ActionID    string  `json:"action_id"`
	Type        string  `json:"type"`
	Status      string  `json:"status"`
	Error       *string `json:"error,omitempty"`
	ExecutionID *string `json:"execution_id,omitempty"`
}

// PlaybookStatusResponse is the response body for GET /playbooks/{id}/status.
type PlaybookStatusResponse struct {
	PlaybookID  string         `json:"playbook_id"`
	OwnerID     string         `json:"owner_id"`
	Title       string         `json:"title"`
	Status      string         `json:"status"`
	Progress    Progress       `json:"progress"`
	Actions     []ActionStatus `json:"actions"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// RunPlaybookResponse is returned when a playbook run was accepted.
type RunPlaybookResponse struct {
	PlaybookID string `json:"playbook_id"`
	Status     string `json:"status"`
}

// ExecutionResponse represents an execution in API responses.
type ExecutionResponse struct {
	ID              string         `json:"id"`
	PlaybookID      string         `json:"playbook_id"`
	ActionID        string         `json:"action_id"`
	ExecutorName    string         `json:"executor_name"`
	Status          string         `json:"status"`
	InputParameters map[string]any `json:"input_parameters,omitempty"`
	OutputResult    map[string]any `json:"output_result,omitempty"`
	Logs            []string       `json:"logs,omitempty"`
	Errors          []string       `json:"errors,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMS      int64          `json:"duration_ms"`
	CreatedAt       time.Time      `json:"created_at"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
