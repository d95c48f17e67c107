// Package memory implements the store interfaces in process memory.
// It is used by tests and by the single-process development mode.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

// Store keeps jobs, playbooks and executions in maps guarded by one mutex.
// Every read returns a copy so callers can never mutate stored state.
type Store struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*store.Job
	playbooks  map[uuid.UUID]*store.Playbook
	executions map[uuid.UUID]*store.Execution
	execOrder  []uuid.UUID
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		jobs:       make(map[uuid.UUID]*store.Job),
		playbooks:  make(map[uuid.UUID]*store.Playbook),
		executions: make(map[uuid.UUID]*store.Execution),
	}
}

// Driver names the backend in health responses.
func (s *Store) Driver() string {
	return "memory"
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) InsertJob(ctx context.Context, job *store.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneJob(job), nil
}

func (s *Store) GetJobStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]store.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make(map[uuid.UUID]store.JobStatus, len(ids))
	for _, id := range ids {
		if job, ok := s.jobs[id]; ok {
			statuses[id] = job.Status
		}
	}
	return statuses, nil
}

func (s *Store) ListClaimCandidates(ctx context.Context, filter store.CandidateFilter) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []*store.Job
	for _, job := range s.jobs {
		if job.Status != store.JobStatusPending {
			continue
		}
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if job.NotBefore.After(filter.Now) {
			continue
		}
		candidates = append(candidates, job)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return claimOrderLess(candidates[i], candidates[j])
	})

	if filter.Offset >= len(candidates) {
		return nil, nil
	}
	candidates = candidates[filter.Offset:]
	if filter.Limit > 0 && len(candidates) > filter.Limit {
		candidates = candidates[:filter.Limit]
	}

	out := make([]*store.Job, len(candidates))
	for i, job := range candidates {
		out[i] = cloneJob(job)
	}
	return out, nil
}

// claimOrderLess orders by priority descending, then oldest first, then by id so ties are stable.
func claimOrderLess(a, b *store.Job) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}

func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*store.Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, false, store.ErrNotFound
	}
	if job.Status != store.JobStatusPending {
		return nil, false, nil
	}

	job.Status = store.JobStatusQueued
	if job.StartedAt == nil {
		t := now
		job.StartedAt = &t
	}
	return cloneJob(job), true, nil
}

func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, from store.JobStatus, update store.JobUpdate) (*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != from || job.Status.IsTerminal() {
		return nil, store.ErrInvalidTransition
	}

	job.Status = update.Status
	if job.StartedAt == nil && update.StartedAt != nil {
		t := *update.StartedAt
		job.StartedAt = &t
	}
	if job.CompletedAt == nil && update.CompletedAt != nil {
		t := *update.CompletedAt
		job.CompletedAt = &t
	}
	job.Result = maps.Clone(update.Result)
	if update.Error != nil {
		e := *update.Error
		job.Error = &e
	} else {
		job.Error = nil
	}
	return cloneJob(job), nil
}

func (s *Store) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	if job.Status != store.JobStatusRunning || job.RetryCount >= job.MaxRetries {
		return job.RetryCount, store.ErrInvalidTransition
	}
	job.RetryCount++
	return job.RetryCount, nil
}

func (s *Store) UpdateJobPriority(ctx context.Context, id uuid.UUID, priority, manualPriority int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != store.JobStatusPending {
		return store.ErrInvalidTransition
	}
	job.Priority = priority
	job.ManualPriority = manualPriority
	return nil
}

func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]*store.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*store.Job
	for _, job := range s.jobs {
		if filter.OwnerID != "" && job.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, job.Status) {
			continue
		}
		out = append(out, cloneJob(job))
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *Store) CountJobsByStatus(ctx context.Context, ownerID string) (map[store.JobStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[store.JobStatus]int64)
	for _, job := range s.jobs {
		if ownerID != "" && job.OwnerID != ownerID {
			continue
		}
		counts[job.Status]++
	}
	return counts, nil
}

func (s *Store) ListOwners(ctx context.Context, status store.JobStatus) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, job := range s.jobs {
		if job.Status == status {
			seen[job.OwnerID] = struct{}{}
		}
	}
	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

func cloneJob(job *store.Job) *store.Job {
	c := *job
	c.Payload = maps.Clone(job.Payload)
	c.Result = maps.Clone(job.Result)
	c.DependsOn = slices.Clone(job.DependsOn)
	if job.ICE != nil {
		ice := *job.ICE
		c.ICE = &ice
	}
	c.StartedAt = cloneTime(job.StartedAt)
	c.CompletedAt = cloneTime(job.CompletedAt)
	if job.Error != nil {
		e := *job.Error
		c.Error = &e
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
