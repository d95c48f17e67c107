package orchestrator

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"actionplane/internal/executor"
	"actionplane/internal/store"
	"actionplane/internal/store/memory"

	"github.com/google/uuid"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestOrchestrator(t *testing.T, rec *recorder) (*Orchestrator, *executor.Registry) {
	t.Helper()
	reg := executor.NewRegistry()
	reg.MustRegister("ok", executor.Func(func(ctx context.Context, a executor.Action) (executor.Result, error) {
		rec.add(a.Parameters["step"].(string))
		return executor.Result{Success: true, Result: map[string]any{"step": a.Parameters["step"]}, Logs: []string{"done"}}, nil
	}))
	reg.MustRegister("fail", executor.Func(func(ctx context.Context, a executor.Action) (executor.Result, error) {
		rec.add(a.Parameters["step"].(string))
		return executor.Result{Errors: []string{"boom"}}, nil
	}))
	return New(memory.New(), reg, nil), reg
}

func actions(types ...string) []ActionSpec {
	specs := make([]ActionSpec, len(types))
	for i, typ := range types {
		id := string(rune('a' + i))
		specs[i] = ActionSpec{ActionID: id, Type: typ, Parameters: map[string]any{"step": id}}
	}
	return specs
}

func mustCreate(t *testing.T, o *Orchestrator, specs []ActionSpec) *store.Playbook {
	t.Helper()
	pb, err := o.CreatePlaybook(context.Background(), CreateRequest{OwnerID: "agent-1", Title: "On-page fixes", Actions: specs})
	if err != nil {
		t.Fatalf("CreatePlaybook failed: %v", err)
	}
	return pb
}

func TestCreatePlaybook_Validation(t *testing.T) {
	o, _ := newTestOrchestrator(t, &recorder{})

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing owner", CreateRequest{Actions: actions("ok")}},
		{"missing type", CreateRequest{OwnerID: "a", Actions: []ActionSpec{{ActionID: "x"}}}},
		{"missing action id", CreateRequest{OwnerID: "a", Actions: []ActionSpec{{Type: "ok"}}}},
		{"duplicate action id", CreateRequest{OwnerID: "a", Actions: []ActionSpec{{ActionID: "x", Type: "ok"}, {ActionID: "x", Type: "ok"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.CreatePlaybook(context.Background(), tt.req); !errors.Is(err, ErrInvalidPlaybook) {
				t.Errorf("expected ErrInvalidPlaybook, got %v", err)
			}
		})
	}
}

func TestRunPlaybook_PartialFailure(t *testing.T) {
	rec := &recorder{}
	o, _ := newTestOrchestrator(t, rec)
	ctx := context.Background()

	pb := mustCreate(t, o, actions("ok", "ok", "fail", "ok", "ok"))

	final, err := o.RunPlaybook(ctx, pb.ID)
	if err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}

	if final.Status != store.PlaybookStatusPartial {
		t.Errorf("expected partial, got %s", final.Status)
	}
	if final.CompletedAt == nil || final.StartedAt == nil {
		t.Error("expected start and completion timestamps")
	}
	if got, want := rec.list(), []string{"a", "b", "c", "d", "e"}; !reflect.DeepEqual(got, want) {
		t.Errorf("actions ran in order %v, want %v", got, want)
	}

	st, err := o.GetPlaybookStatus(ctx, pb.ID)
	if err != nil {
		t.Fatalf("GetPlaybookStatus failed: %v", err)
	}
	if st.Progress.Total != 5 || st.Progress.Completed != 4 || st.Progress.Failed != 1 {
		t.Errorf("unexpected progress: %+v", st.Progress)
	}
	if st.Progress.ProgressPercentage != 80 {
		t.Errorf("expected 80%%, got %v", st.Progress.ProgressPercentage)
	}
	failed := st.Actions[2]
	if failed.Status != store.ActionStatusFailed || failed.Error == nil || *failed.Error != "boom" || failed.ExecutionID == nil {
		t.Errorf("expected failure detail on action c, got %+v", failed)
	}

	execs, err := o.ListExecutions(ctx, pb.ID)
	if err != nil {
		t.Fatalf("ListExecutions failed: %v", err)
	}
	if len(execs) != 5 {
		t.Fatalf("expected 5 executions, got %d", len(execs))
	}
	for i, e := range execs {
		wantStatus := store.ExecutionStatusCompleted
		if i == 2 {
			wantStatus = store.ExecutionStatusFailed
		}
		if e.Status != wantStatus || e.CompletedAt == nil || e.StartedAt == nil {
			t.Errorf("execution %d: unexpected record %+v", i, e)
		}
	}
	if execs[2].Errors[0] != "boom" {
		t.Errorf("expected executor error preserved, got %v", execs[2].Errors)
	}
}

func TestRunPlaybook_AggregateOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		types []string
		want  store.PlaybookStatus
	}{
		{"all succeed", []string{"ok", "ok"}, store.PlaybookStatusCompleted},
		{"all fail", []string{"fail", "fail", "fail"}, store.PlaybookStatusFailed},
		{"empty", nil, store.PlaybookStatusCompleted},
		{"unknown executor counts as failure", []string{"ok", "missing"}, store.PlaybookStatusPartial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(t, &recorder{})
			pb := mustCreate(t, o, actions(tt.types...))

			final, err := o.RunPlaybook(context.Background(), pb.ID)
			if err != nil {
				t.Fatalf("RunPlaybook failed: %v", err)
			}
			if final.Status != tt.want {
				t.Errorf("got %s, want %s", final.Status, tt.want)
			}
		})
	}
}

func TestRunPlaybook_PanickingExecutorDoesNotStopPlaybook(t *testing.T) {
	rec := &recorder{}
	o, reg := newTestOrchestrator(t, rec)
	reg.MustRegister("panic", executor.Func(func(ctx context.Context, a executor.Action) (executor.Result, error) {
		panic("unexpected nil")
	}))

	pb := mustCreate(t, o, actions("panic", "ok"))
	final, err := o.RunPlaybook(context.Background(), pb.ID)
	if err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}
	if final.Status != store.PlaybookStatusPartial {
		t.Errorf("expected partial, got %s", final.Status)
	}
	if got := rec.list(); len(got) != 1 || got[0] != "b" {
		t.Errorf("expected action b to run after the panic, got %v", got)
	}
}

func TestRunPlaybook_NotFound(t *testing.T) {
	o, _ := newTestOrchestrator(t, &recorder{})

	if _, err := o.RunPlaybook(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunPlaybook_RejectsFinishedPlaybook(t *testing.T) {
	o, _ := newTestOrchestrator(t, &recorder{})
	pb := mustCreate(t, o, actions("ok"))

	if _, err := o.RunPlaybook(context.Background(), pb.ID); err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}
	if _, err := o.RunPlaybook(context.Background(), pb.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for a completed playbook, got %v", err)
	}
}

func TestRunPlaybook_ResumeRetriesOnlyUnfinishedActions(t *testing.T) {
	rec := &recorder{}
	o, reg := newTestOrchestrator(t, rec)

	var flaky int32
	reg.MustRegister("flaky", executor.Func(func(ctx context.Context, a executor.Action) (executor.Result, error) {
		rec.add(a.Parameters["step"].(string))
		if atomic.AddInt32(&flaky, 1) == 1 {
			return executor.Result{}, errors.New("temporary outage")
		}
		return executor.Result{Success: true}, nil
	}))

	pb := mustCreate(t, o, actions("ok", "flaky", "ok"))
	ctx := context.Background()

	first, err := o.RunPlaybook(ctx, pb.ID)
	if err != nil || first.Status != store.PlaybookStatusPartial {
		t.Fatalf("expected partial first run, got %v (%v)", first, err)
	}

	second, err := o.RunPlaybook(ctx, pb.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if second.Status != store.PlaybookStatusCompleted {
		t.Errorf("expected completed after resume, got %s", second.Status)
	}
	if got, want := rec.list(), []string{"a", "b", "c", "b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got calls %v, want %v", got, want)
	}

	execs, _ := o.ListExecutions(ctx, pb.ID)
	if len(execs) != 4 {
		t.Errorf("expected 4 executions in the append-only history, got %d", len(execs))
	}
	if execs[1].Status != store.ExecutionStatusFailed || execs[3].Status != store.ExecutionStatusCompleted {
		t.Errorf("history must keep the failed attempt: %v / %v", execs[1].Status, execs[3].Status)
	}
}

func TestCancelPlaybook_StopsBeforeNextAction(t *testing.T) {
	rec := &recorder{}
	o, reg := newTestOrchestrator(t, rec)

	var pbID uuid.UUID
	reg.MustRegister("cancel", executor.Func(func(ctx context.Context, a executor.Action) (executor.Result, error) {
		rec.add(a.Parameters["step"].(string))
		if _, err := o.CancelPlaybook(ctx, pbID); err != nil {
			t.Errorf("CancelPlaybook failed: %v", err)
		}
		return executor.Result{Success: true}, nil
	}))

	pb := mustCreate(t, o, actions("ok", "cancel", "ok", "ok"))
	pbID = pb.ID

	final, err := o.RunPlaybook(context.Background(), pb.ID)
	if err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}
	if final.Status != store.PlaybookStatusCancelled {
		t.Errorf("expected cancelled, got %s", final.Status)
	}
	if got := rec.list(); len(got) != 2 {
		t.Errorf("expected 2 actions to run, got %v", got)
	}
	if final.Actions[2].Status != store.ActionStatusPending || final.Actions[3].Status != store.ActionStatusPending {
		t.Errorf("remaining actions must stay pending: %+v", final.Actions)
	}

	if _, err := o.CancelPlaybook(context.Background(), pb.ID); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition on second cancel, got %v", err)
	}
}

func TestRunPlaybook_ContextCancellation(t *testing.T) {
	rec := &recorder{}
	o, reg := newTestOrchestrator(t, rec)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg.MustRegister("stop", executor.Func(func(c context.Context, a executor.Action) (executor.Result, error) {
		rec.add(a.Parameters["step"].(string))
		cancel()
		return executor.Result{Success: true}, nil
	}))

	pb := mustCreate(t, o, actions("stop", "ok"))
	final, err := o.RunPlaybook(ctx, pb.ID)
	if err != nil {
		t.Fatalf("RunPlaybook failed: %v", err)
	}
	if final.Status != store.PlaybookStatusCancelled {
		t.Errorf("expected cancelled, got %s", final.Status)
	}
	if final.Actions[0].Status != store.ActionStatusCompleted || final.Actions[1].Status != store.ActionStatusPending {
		t.Errorf("unexpected action states: %+v", final.Actions)
	}
}

func TestGetPlaybookStatus_IsIdempotent(t *testing.T) {
	o, _ := newTestOrchestrator(t, &recorder{})
	ctx := context.Background()
	pb := mustCreate(t, o, actions("ok", "fail"))
	o.RunPlaybook(ctx, pb.ID)

	first, err := o.GetPlaybookStatus(ctx, pb.ID)
	if err != nil {
		t.Fatalf("GetPlaybookStatus failed: %v", err)
	}
	second, _ := o.GetPlaybookStatus(ctx, pb.ID)

	if !reflect.DeepEqual(first, second) {
		t.Errorf("status changed between reads:\n%+v\n%+v", first, second)
	}

	if _, err := o.GetPlaybookStatus(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetPlaybookStatus_EmptyPlaybook(t *testing.T) {
	o, _ := newTestOrchestrator(t, &recorder{})
	pb := mustCreate(t, o, nil)

	st, err := o.GetPlaybookStatus(context.Background(), pb.ID)
	if err != nil {
		t.Fatalf("GetPlaybookStatus failed: %v", err)
	}
	if st.Progress.Total != 0 || st.Progress.ProgressPercentage != 0 {
		t.Errorf("unexpected progress for empty playbook: %+v", st.Progress)
	}
}

func TestStartPlaybook_RunsInBackground(t *testing.T) {
	rec := &recorder{}
	o, _ := newTestOrchestrator(t, rec)
	ctx := context.Background()
	pb := mustCreate(t, o, actions("ok", "ok"))

	started, err := o.StartPlaybook(ctx, pb.ID)
	if err != nil {
		t.Fatalf("StartPlaybook failed: %v", err)
	}
	if started.Status != store.PlaybookStatusActive {
		t.Errorf("expected active, got %s", started.Status)
	}

	o.Wait()

	final, _ := o.GetPlaybook(ctx, pb.ID)
	if final.Status != store.PlaybookStatusCompleted || len(rec.list()) != 2 {
		t.Errorf("background run did not complete: %+v", final)
	}

	if _, err := o.StartPlaybook(ctx, uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestAggregateStatus(t *testing.T) {
	a := func(statuses ...store.ActionStatus) []store.PlaybookAction {
		out := make([]store.PlaybookAction, len(statuses))
		for i, s := range statuses {
			out[i].Status = s
		}
		return out
	}

	tests := []struct {
		name    string
		actions []store.PlaybookAction
		want    store.PlaybookStatus
	}{
		{"no failures", a(store.ActionStatusCompleted, store.ActionStatusCompleted), store.PlaybookStatusCompleted},
		{"mixed", a(store.ActionStatusCompleted, store.ActionStatusFailed), store.PlaybookStatusPartial},
		{"only failures", a(store.ActionStatusFailed), store.PlaybookStatusFailed},
		{"empty", nil, store.PlaybookStatusCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AggregateStatus(tt.actions); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}
