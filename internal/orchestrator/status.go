package orchestrator

import (
	"context"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

// ActionDetail is the per-action part of a status report.
type ActionDetail struct {
	ActionID    string
	Type        string
	Status      store.ActionStatus
	Error       *string
	ExecutionID *uuid.UUID
}

// Status is a read-only snapshot of a playbook's progress.
type Status struct {
	PlaybookID  uuid.UUID
	OwnerID     string
	Title       string
	Status      store.PlaybookStatus
	Progress    store.PlaybookProgress
	Actions     []ActionDetail
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// GetPlaybookStatus recomputes the playbook's counters from its action list.
// It has no side effects.
func (o *Orchestrator) GetPlaybookStatus(ctx context.Context, id uuid.UUID) (*Status, error) {
	pb, err := o.store.GetPlaybook(ctx, id)
	if err != nil {
		return nil, err
	}

	st := &Status{
		PlaybookID:  pb.ID,
		OwnerID:     pb.OwnerID,
		Title:       pb.Title,
		Status:      pb.Status,
		Progress:    pb.Progress(),
		StartedAt:   pb.StartedAt,
		CompletedAt: pb.CompletedAt,
		Actions:     make([]ActionDetail, len(pb.Actions)),
	}
	for i, a := range pb.Actions {
		st.Actions[i] = ActionDetail{
			ActionID:    a.ActionID,
			Type:        a.Type,
			Status:      a.Status,
			Error:       a.Error,
			ExecutionID: a.ExecutionID,
		}
	}
	return st, nil
}
