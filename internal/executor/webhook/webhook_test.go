package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"actionplane/internal/executor"

	"github.com/google/uuid"
)

func TestExecute_Success(t *testing.T) {
	playbookID := uuid.New()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}

		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}
		if req.Type != "schema.generate" || req.OwnerID != "agent-1" || req.PlaybookID != playbookID.String() {
			t.Errorf("unexpected request: %+v", req)
		}
		if req.Parameters["page"] != "/pricing" {
			t.Errorf("unexpected parameters: %v", req.Parameters)
		}

		json.NewEncoder(w).Encode(response{
			Success: true,
			Result:  map[string]any{"schema": "Product"},
			Logs:    []string{"generated"},
		})
	}))
	defer server.Close()

	e := New(Config{Name: "schema.generate", URL: server.URL})
	res, err := e.Execute(context.Background(), executor.Action{
		Type:       "schema.generate",
		OwnerID:    "agent-1",
		PlaybookID: &playbookID,
		Parameters: map[string]any{"page": "/pricing"},
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !res.Success || res.Result["schema"] != "Product" || len(res.Logs) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestExecute_HandlerReportsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(response{Success: false, Errors: []string{"page not reachable"}})
	}))
	defer server.Close()

	reg := executor.NewRegistry()
	if err := RegisterAll(reg, []Config{{Name: "crawl", URL: server.URL}}); err != nil {
		t.Fatalf("RegisterAll failed: %v", err)
	}

	_, err := reg.Run(context.Background(), executor.Action{Type: "crawl"})
	if !errors.Is(err, executor.ErrExecutorFailure) {
		t.Fatalf("expected ErrExecutorFailure, got %v", err)
	}
	if err.Error() != "page not reachable" {
		t.Errorf("expected handler message verbatim, got %q", err.Error())
	}
}

func TestExecute_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	e := New(Config{Name: "crawl", URL: server.URL})
	_, err := e.Execute(context.Background(), executor.Action{Type: "crawl"})
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
}

func TestExecute_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	e := New(Config{Name: "slow", URL: server.URL, Timeout: 50 * time.Millisecond})
	if _, err := e.Execute(context.Background(), executor.Action{Type: "slow"}); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestRegisterAll_Validation(t *testing.T) {
	reg := executor.NewRegistry()

	if err := RegisterAll(reg, []Config{{Name: "missing-url"}}); err == nil {
		t.Error("expected error for missing url")
	}

	cfgs := []Config{{Name: "a", URL: "http://localhost"}, {Name: "a", URL: "http://localhost"}}
	if err := RegisterAll(reg, cfgs); !errors.Is(err, executor.ErrDuplicateExecutor) {
		t.Errorf("expected ErrDuplicateExecutor, got %v", err)
	}
}
