package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"actionplane/pkg/api"

	"github.com/spf13/viper"
)

func TestStatusCommand_Success(t *testing.T) {
	resetViper()

	startTime := time.Now().Add(-10 * time.Minute)
	endTime := startTime.Add(time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET method, got %s", r.Method)
		}
		if r.URL.Path != "/jobs/job-123" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("X-Owner-ID") != "agent-1" {
			t.Errorf("expected X-Owner-ID agent-1, got: %s", r.Header.Get("X-Owner-ID"))
		}

		resp := api.JobResponse{
			ID:          "job-123",
			Type:        "publish_post",
			Status:      "COMPLETED",
			Priority:    70,
			ICE:         &api.ICE{Impact: 8, Confidence: 6, Ease: 5},
			RetryCount:  1,
			MaxRetries:  3,
			StartedAt:   &startTime,
			CompletedAt: &endTime,
			Result:      map[string]any{"url": "https://example.com/pricing"},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("owner", "agent-1")

	output, err := execute(t, "status", "job-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"job-123", "publish_post", "COMPLETED", "Retries:", "1/3", "ICE:", "example.com/pricing", "1m 0s"} {
		if !strings.Contains(output, want) {
			t.Errorf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestStatusCommand_Failed(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		msg := "webhook returned 502"
		json.NewEncoder(w).Encode(api.JobResponse{ID: "job-9", Status: "FAILED", Error: &msg})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("owner", "agent-1")

	output, err := execute(t, "status", "job-9")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(output, "webhook returned 502") {
		t.Errorf("expected error message in output, got: %s", output)
	}
	if strings.Contains(output, "Result:") {
		t.Errorf("expected no Result line when result is empty, got: %s", output)
	}
}

func TestStatusCommand_NotFound(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(api.ErrorResponse{Error: "Job not found"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("owner", "agent-1")

	_, err := execute(t, "status", "missing")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "(404) Job not found") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m 30s"},
		{2*time.Hour + 5*time.Minute, "2h 5m"},
	}

	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatTimeWithRelative_Nil(t *testing.T) {
	if got := formatTimeWithRelative(nil); got != "-" {
		t.Errorf("expected -, got %q", got)
	}
}
