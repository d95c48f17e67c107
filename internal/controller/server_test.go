package controller

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"actionplane/internal/controller/handlers"
	"actionplane/internal/controller/middleware"
	"actionplane/internal/executor"
	"actionplane/internal/orchestrator"
	"actionplane/internal/queue"
	"actionplane/internal/store/memory"
	"actionplane/pkg/api"
)

type testEnv struct {
	server *httptest.Server
	orch   *orchestrator.Orchestrator
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()

	reg := executor.NewRegistry()
	reg.MustRegister(executor.EchoType, executor.Echo())

	q := queue.New(st, log, queue.Options{})
	orch := orchestrator.New(st, reg, log)
	h := handlers.New(q, orch, st, log)

	srv := httptest.NewServer(NewHandler(h, opts))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, orch: orch}
}

func (e *testEnv) do(t *testing.T, method, path, owner string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if owner != "" {
		req.Header.Set(middleware.OwnerHeader, owner)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestServer_JobLifecycle(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp := env.do(t, http.MethodPost, "/jobs", "agent-1", api.EnqueueRequest{Type: "echo"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("enqueue: got status %d", resp.StatusCode)
	}
	jobID := decode[api.EnqueueResponse](t, resp).JobID

	resp = env.do(t, http.MethodGet, "/jobs/"+jobID, "agent-1", nil)
	job := decode[api.JobResponse](t, resp)
	if job.Status != "PENDING" || job.Priority != queue.DefaultPriority {
		t.Errorf("unexpected job: %+v", job)
	}

	resp = env.do(t, http.MethodGet, "/jobs/"+jobID, "agent-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("other owner: got status %d, want 404", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPut, "/jobs/"+jobID+"/priority", "agent-1", api.SetPriorityRequest{Priority: intPtr(90)})
	if job := decode[api.JobResponse](t, resp); job.Priority != 90 {
		t.Errorf("expected priority 90, got %d", job.Priority)
	}

	resp = env.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", "agent-1", api.CancelRequest{Reason: "superseded"})
	job = decode[api.JobResponse](t, resp)
	if job.Status != "CANCELLED" || job.Error == nil || *job.Error != "superseded" {
		t.Errorf("unexpected cancelled job: %+v", job)
	}

	resp = env.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", "agent-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("second cancel: got status %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodGet, "/queue/stats", "agent-1", nil)
	stats := decode[api.StatsResponse](t, resp)
	if stats.Total != 1 || stats.Cancelled != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestServer_PlaybookRun(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp := env.do(t, http.MethodPost, "/playbooks", "agent-1", api.CreatePlaybookRequest{
		Title: "Launch",
		Actions: []api.ActionSpec{
			{ActionID: "a1", Type: "echo", Parameters: map[string]any{"slug": "home"}},
			{ActionID: "a2", Type: "missing"},
		},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: got status %d", resp.StatusCode)
	}
	pb := decode[api.PlaybookResponse](t, resp)

	resp = env.do(t, http.MethodPost, "/playbooks/"+pb.ID+"/run", "agent-1", nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("run: got status %d", resp.StatusCode)
	}
	env.orch.Wait()

	resp = env.do(t, http.MethodGet, "/playbooks/"+pb.ID+"/status", "agent-1", nil)
	st := decode[api.PlaybookStatusResponse](t, resp)
	if st.Status != "partial" || st.Progress.Completed != 1 || st.Progress.Failed != 1 {
		t.Errorf("unexpected status: %+v", st)
	}

	resp = env.do(t, http.MethodGet, "/playbooks/"+pb.ID+"/executions", "agent-1", nil)
	execs := decode[[]api.ExecutionResponse](t, resp)
	if len(execs) != 2 || execs[0].OutputResult["slug"] != "home" {
		t.Errorf("unexpected executions: %+v", execs)
	}

	resp = env.do(t, http.MethodPost, "/playbooks/"+pb.ID+"/cancel", "agent-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("cancel finished playbook: got status %d, want 409", resp.StatusCode)
	}
}

func TestServer_RequiresOwner(t *testing.T) {
	env := newTestEnv(t, Options{})

	for _, route := range []struct{ method, path string }{
		{http.MethodPost, "/jobs"},
		{http.MethodGet, "/queue/stats"},
		{http.MethodPost, "/playbooks"},
	} {
		resp := env.do(t, route.method, route.path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: got status %d, want 401", route.method, route.path, resp.StatusCode)
		}
	}

	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz: got status %d", resp.StatusCode)
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("expected a request id on every response")
	}
}

func TestServer_OptionalRoutes(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "actionplane_jobs_claimed_total 0\n")
	})
	env := newTestEnv(t, Options{
		MetricsHandler: metrics,
		RateLimiter:    middleware.NewRateLimiter(middleware.WithLimit(1, 1)),
		AdminToken:     "s3cret",
	})

	resp := env.do(t, http.MethodGet, "/metrics", "", nil)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "actionplane_jobs_claimed_total") {
		t.Errorf("unexpected metrics body: %s", body)
	}

	env.do(t, http.MethodPost, "/jobs", "agent-1", api.EnqueueRequest{Type: "echo"})
	resp = env.do(t, http.MethodPost, "/jobs", "agent-1", api.EnqueueRequest{Type: "echo"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("second enqueue: got status %d, want 429", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/queue/reprioritize", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reprioritize without token: got status %d, want 401", resp.StatusCode)
	}
}

func intPtr(v int) *int { return &v }
