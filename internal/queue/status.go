package queue

import (
	"context"
	"errors"
	"fmt"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

// allowed lists the transitions UpdateStatus accepts.
// PENDING -> QUEUED is not here: only ClaimNext may perform it.
var allowed = map[store.JobStatus][]store.JobStatus{
	store.JobStatusPending: {store.JobStatusCancelled},
	store.JobStatusQueued:  {store.JobStatusRunning, store.JobStatusCancelled},
	store.JobStatusRunning: {store.JobStatusCompleted, store.JobStatusFailed, store.JobStatusCancelled},
}

func canTransition(from, to store.JobStatus) bool {
	for _, s := range allowed[from] {
		if s == to {
			return true
		}
	}
	return false
}

// UpdateStatus moves a job to status.
//
// RUNNING stamps started_at if it is unset. A terminal status stamps
// completed_at and stores exactly one of result (COMPLETED) or errMsg
// (FAILED, CANCELLED). Updates on terminal jobs fail with
// store.ErrInvalidTransition and leave the job untouched.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, status store.JobStatus, result map[string]any, errMsg string) (*store.Job, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidJob, status)
	}

	current, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canTransition(current.Status, status) {
		m.logger.Warn("rejected status change", "job_id", id, "from", current.Status, "to", status)
		return nil, fmt.Errorf("%w: %s -> %s", store.ErrInvalidTransition, current.Status, status)
	}

	now := m.now()
	update := store.JobUpdate{Status: status}
	switch status {
	case store.JobStatusRunning:
		update.StartedAt = &now
	case store.JobStatusCompleted:
		if result == nil {
			result = map[string]any{}
		}
		update.CompletedAt = &now
		update.Result = result
	case store.JobStatusFailed:
		if errMsg == "" {
			errMsg = "job failed"
		}
		update.CompletedAt = &now
		update.Error = &errMsg
	case store.JobStatusCancelled:
		if errMsg == "" {
			errMsg = "cancelled"
		}
		update.CompletedAt = &now
		update.Error = &errMsg
	}

	job, err := m.store.UpdateJobStatus(ctx, id, current.Status, update)
	if errors.Is(err, store.ErrInvalidTransition) {
		// Someone else moved the job between our read and the conditional write.
		m.logger.Warn("status changed concurrently", "job_id", id, "expected", current.Status, "to", status)
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if status.IsTerminal() {
		m.logger.Info("job finished", "job_id", id, "status", status)
	}
	return job, nil
}

// MarkRunning moves a claimed job to RUNNING.
func (m *Manager) MarkRunning(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.UpdateStatus(ctx, id, store.JobStatusRunning, nil, "")
}

// Complete records a successful outcome.
func (m *Manager) Complete(ctx context.Context, id uuid.UUID, result map[string]any) (*store.Job, error) {
	return m.UpdateStatus(ctx, id, store.JobStatusCompleted, result, "")
}

// Fail records a failed outcome with its error message.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*store.Job, error) {
	return m.UpdateStatus(ctx, id, store.JobStatusFailed, nil, errMsg)
}

// Cancel moves a non-terminal job to CANCELLED, recording reason as its error.
// A running executor is not interrupted here; workers notice the change on their own.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID, reason string) (*store.Job, error) {
	return m.UpdateStatus(ctx, id, store.JobStatusCancelled, nil, reason)
}

// RecordRetry counts one more attempt of a RUNNING job and returns the new retry count.
// It fails with store.ErrInvalidTransition once max_retries is reached.
func (m *Manager) RecordRetry(ctx context.Context, id uuid.UUID) (int, error) {
	n, err := m.store.IncrementRetry(ctx, id)
	if err != nil {
		return 0, err
	}
	m.logger.Info("retrying job", "job_id", id, "retry_count", n)
	return n, nil
}

// GetJobStatus returns the stored job.
func (m *Manager) GetJobStatus(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	return m.store.GetJob(ctx, id)
}

// GetQueueStats counts jobs per status. An empty ownerID counts every owner.
func (m *Manager) GetQueueStats(ctx context.Context, ownerID string) (Stats, error) {
	counts, err := m.store.CountJobsByStatus(ctx, ownerID)
	if err != nil {
		return Stats{}, err
	}

	s := Stats{
		Pending:   counts[store.JobStatusPending],
		Queued:    counts[store.JobStatusQueued],
		Running:   counts[store.JobStatusRunning],
		Completed: counts[store.JobStatusCompleted],
		Failed:    counts[store.JobStatusFailed],
		Cancelled: counts[store.JobStatusCancelled],
	}
	s.Total = s.Pending + s.Queued + s.Running + s.Completed + s.Failed + s.Cancelled
	return s, nil
}
