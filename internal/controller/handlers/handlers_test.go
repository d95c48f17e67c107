package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	"actionplane/internal/controller/middleware"
	"actionplane/internal/orchestrator"
	"actionplane/internal/queue"
	"actionplane/internal/store"

	"github.com/google/uuid"
)

// mockQueue implements JobQueue for testing
type mockQueue struct {
	EnqueueFunc       func(ctx context.Context, req queue.EnqueueRequest) (uuid.UUID, error)
	GetJobStatusFunc  func(ctx context.Context, id uuid.UUID) (*store.Job, error)
	CancelFunc        func(ctx context.Context, id uuid.UUID, reason string) (*store.Job, error)
	SetPriorityFunc   func(ctx context.Context, id uuid.UUID, manual int) (*store.Job, error)
	GetQueueStatsFunc func(ctx context.Context, ownerID string) (queue.Stats, error)
	ReprioritizeFunc  func(ctx context.Context, ownerID string) (int, error)
	PendingOwnersFunc func(ctx context.Context) ([]string, error)
}

func (m *mockQueue) Enqueue(ctx context.Context, req queue.EnqueueRequest) (uuid.UUID, error) {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, req)
	}
	return uuid.New(), nil
}

func (m *mockQueue) GetJobStatus(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	if m.GetJobStatusFunc != nil {
		return m.GetJobStatusFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockQueue) Cancel(ctx context.Context, id uuid.UUID, reason string) (*store.Job, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, id, reason)
	}
	return &store.Job{ID: id, Status: store.JobStatusCancelled}, nil
}

func (m *mockQueue) SetPriority(ctx context.Context, id uuid.UUID, manual int) (*store.Job, error) {
	if m.SetPriorityFunc != nil {
		return m.SetPriorityFunc(ctx, id, manual)
	}
	return &store.Job{ID: id, Priority: manual, Status: store.JobStatusPending}, nil
}

func (m *mockQueue) GetQueueStats(ctx context.Context, ownerID string) (queue.Stats, error) {
	if m.GetQueueStatsFunc != nil {
		return m.GetQueueStatsFunc(ctx, ownerID)
	}
	return queue.Stats{}, nil
}

func (m *mockQueue) Reprioritize(ctx context.Context, ownerID string) (int, error) {
	if m.ReprioritizeFunc != nil {
		return m.ReprioritizeFunc(ctx, ownerID)
	}
	return 0, nil
}

func (m *mockQueue) PendingOwners(ctx context.Context) ([]string, error) {
	if m.PendingOwnersFunc != nil {
		return m.PendingOwnersFunc(ctx)
	}
	return nil, nil
}

// mockPlaybooks implements Playbooks for testing
type mockPlaybooks struct {
	CreatePlaybookFunc    func(ctx context.Context, req orchestrator.CreateRequest) (*store.Playbook, error)
	GetPlaybookFunc       func(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	StartPlaybookFunc     func(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	CancelPlaybookFunc    func(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	GetPlaybookStatusFunc func(ctx context.Context, id uuid.UUID) (*orchestrator.Status, error)
	ListExecutionsFunc    func(ctx context.Context, id uuid.UUID) ([]*store.Execution, error)
}

func (m *mockPlaybooks) CreatePlaybook(ctx context.Context, req orchestrator.CreateRequest) (*store.Playbook, error) {
	if m.CreatePlaybookFunc != nil {
		return m.CreatePlaybookFunc(ctx, req)
	}
	return &store.Playbook{ID: uuid.New(), OwnerID: req.OwnerID, Title: req.Title, Status: store.PlaybookStatusDraft}, nil
}

func (m *mockPlaybooks) GetPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	if m.GetPlaybookFunc != nil {
		return m.GetPlaybookFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockPlaybooks) StartPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	if m.StartPlaybookFunc != nil {
		return m.StartPlaybookFunc(ctx, id)
	}
	return &store.Playbook{ID: id, Status: store.PlaybookStatusActive}, nil
}

func (m *mockPlaybooks) CancelPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	if m.CancelPlaybookFunc != nil {
		return m.CancelPlaybookFunc(ctx, id)
	}
	return &store.Playbook{ID: id, Status: store.PlaybookStatusCancelled}, nil
}

func (m *mockPlaybooks) GetPlaybookStatus(ctx context.Context, id uuid.UUID) (*orchestrator.Status, error) {
	if m.GetPlaybookStatusFunc != nil {
		return m.GetPlaybookStatusFunc(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockPlaybooks) ListExecutions(ctx context.Context, id uuid.UUID) ([]*store.Execution, error) {
	if m.ListExecutionsFunc != nil {
		return m.ListExecutionsFunc(ctx, id)
	}
	return nil, nil
}

// mockPinger implements Pinger for testing
type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

// namedPinger also reports a driver name.
type namedPinger struct {
	mockPinger
	driver string
}

func (m *namedPinger) Driver() string { return m.driver }

func newTestHandlers(q *mockQueue, p *mockPlaybooks) *Handlers {
	if q == nil {
		q = &mockQueue{}
	}
	if p == nil {
		p = &mockPlaybooks{}
	}
	return New(q, p, &mockPinger{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newRequest builds a request as it looks after the Owner middleware and the mux ran.
func newRequest(method, target string, body []byte, owner, id string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if owner != "" {
		req = req.WithContext(middleware.NewContextWithOwnerID(req.Context(), owner))
	}
	if id != "" {
		req.SetPathValue("id", id)
	}
	return req
}
