package memory

import (
	"context"
	"maps"
	"slices"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

func (s *Store) CreatePlaybook(ctx context.Context, playbook *store.Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playbooks[playbook.ID]; ok {
		return store.ErrInvalidTransition
	}
	s.playbooks[playbook.ID] = clonePlaybook(playbook)
	return nil
}

func (s *Store) GetPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, ok := s.playbooks[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return clonePlaybook(pb), nil
}

func (s *Store) TransitionPlaybook(ctx context.Context, id uuid.UUID, from []store.PlaybookStatus, to store.PlaybookStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, ok := s.playbooks[id]
	if !ok {
		return store.ErrNotFound
	}
	if !slices.Contains(from, pb.Status) {
		return store.ErrInvalidTransition
	}

	pb.Status = to
	t := at
	switch {
	case to == store.PlaybookStatusActive:
		pb.StartedAt = &t
		pb.CompletedAt = nil
	case to.IsFinished():
		pb.CompletedAt = &t
	}
	return nil
}

func (s *Store) UpdatePlaybookAction(ctx context.Context, playbookID uuid.UUID, action store.PlaybookAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pb, ok := s.playbooks[playbookID]
	if !ok {
		return store.ErrNotFound
	}
	for i := range pb.Actions {
		if pb.Actions[i].ActionID != action.ActionID {
			continue
		}
		a := &pb.Actions[i]
		a.Status = action.Status
		a.Result = maps.Clone(action.Result)
		a.Error = cloneString(action.Error)
		a.ExecutionID = cloneUUID(action.ExecutionID)
		return nil
	}
	return store.ErrNotFound
}

func (s *Store) CreateExecution(ctx context.Context, execution *store.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playbooks[execution.PlaybookID]; !ok {
		return store.ErrNotFound
	}
	s.executions[execution.ID] = cloneExecution(execution)
	s.execOrder = append(s.execOrder, execution.ID)
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, execution *store.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.executions[execution.ID]
	if !ok {
		return store.ErrNotFound
	}
	c := cloneExecution(execution)
	c.PlaybookID = stored.PlaybookID
	c.ActionID = stored.ActionID
	c.CreatedAt = stored.CreatedAt
	s.executions[execution.ID] = c
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.executions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cloneExecution(e), nil
}

func (s *Store) ListExecutions(ctx context.Context, playbookID uuid.UUID) ([]*store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.playbooks[playbookID]; !ok {
		return nil, store.ErrNotFound
	}
	var out []*store.Execution
	for _, id := range s.execOrder {
		if e := s.executions[id]; e.PlaybookID == playbookID {
			out = append(out, cloneExecution(e))
		}
	}
	return out, nil
}

func clonePlaybook(pb *store.Playbook) *store.Playbook {
	c := *pb
	c.StartedAt = cloneTime(pb.StartedAt)
	c.CompletedAt = cloneTime(pb.CompletedAt)
	c.Actions = make([]store.PlaybookAction, len(pb.Actions))
	for i, a := range pb.Actions {
		a.Parameters = maps.Clone(a.Parameters)
		a.Result = maps.Clone(a.Result)
		a.Error = cloneString(a.Error)
		a.ExecutionID = cloneUUID(a.ExecutionID)
		c.Actions[i] = a
	}
	return &c
}

func cloneExecution(e *store.Execution) *store.Execution {
	c := *e
	c.InputParameters = maps.Clone(e.InputParameters)
	c.OutputResult = maps.Clone(e.OutputResult)
	c.Logs = slices.Clone(e.Logs)
	c.Errors = slices.Clone(e.Errors)
	c.StartedAt = cloneTime(e.StartedAt)
	c.CompletedAt = cloneTime(e.CompletedAt)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

func cloneUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
