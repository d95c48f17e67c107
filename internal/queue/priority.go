package queue

import (
	"context"
	"errors"
	"fmt"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

// SetPriority changes the manual priority of a PENDING job. The ICE blend, if any,
// is applied again by the next Reprioritize.
func (m *Manager) SetPriority(ctx context.Context, id uuid.UUID, manual int) (*store.Job, error) {
	if manual < MinPriority || manual > MaxPriority {
		return nil, fmt.Errorf("%w: priority %d out of range %d..%d", ErrInvalidJob, manual, MinPriority, MaxPriority)
	}

	job, err := m.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := m.store.UpdateJobPriority(ctx, id, manual, manual); err != nil {
		return nil, err
	}

	job.Priority = manual
	job.ManualPriority = manual
	m.logger.Info("job priority set", "job_id", id, "priority", manual)
	return job, nil
}

// Reprioritize blends the ICE score into the priority of every PENDING job of an owner
// and returns how many jobs changed. Jobs without ICE factors keep their priority.
func (m *Manager) Reprioritize(ctx context.Context, ownerID string) (int, error) {
	if ownerID == "" {
		return 0, fmt.Errorf("%w: owner_id is required", ErrInvalidJob)
	}

	jobs, err := m.store.ListJobs(ctx, store.JobFilter{
		OwnerID:  ownerID,
		Statuses: []store.JobStatus{store.JobStatusPending},
	})
	if err != nil {
		return 0, err
	}

	changed := 0
	for _, job := range jobs {
		if job.ICE == nil {
			continue
		}
		priority := ICEPriority(*job.ICE, job.ManualPriority)
		if priority == job.Priority {
			continue
		}

		err := m.store.UpdateJobPriority(ctx, job.ID, priority, job.ManualPriority)
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			// Claimed or removed since the listing.
			continue
		}
		if err != nil {
			return changed, err
		}
		changed++
	}

	m.logger.Info("reprioritized owner", "owner_id", ownerID, "pending", len(jobs), "changed", changed)
	return changed, nil
}

// PendingOwners lists owners that currently have PENDING jobs.
func (m *Manager) PendingOwners(ctx context.Context) ([]string, error) {
	return m.store.ListOwners(ctx, store.JobStatusPending)
}
