// Package webhook implements an executor that forwards actions to an external
// HTTP handler service.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"actionplane/internal/executor"
)

const defaultTimeout = 30 * time.Second

// maxErrorBody bounds how much of a failed response body is kept in the error.
const maxErrorBody = 1024

// Config describes one webhook executor.
type Config struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Method  string        `mapstructure:"method"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type request struct {
	Type       string         `json:"type"`
	OwnerID    string         `json:"owner_id"`
	PlaybookID string         `json:"playbook_id,omitempty"`
	JobID      string         `json:"job_id,omitempty"`
	Parameters map[string]any `json:"parameters"`
}

type response struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result"`
	Logs    []string       `json:"logs"`
	Errors  []string       `json:"errors"`
}

// Executor calls a remote handler over HTTP.
type Executor struct {
	config Config
	client *http.Client
}

// New creates a webhook executor.
func New(cfg Config) *Executor {
	if cfg.Method == "" {
		cfg.Method = http.MethodPost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Executor{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Execute sends the action as JSON and decodes the handler's verdict.
// Transport errors and 4xx/5xx responses are returned as errors.
func (e *Executor) Execute(ctx context.Context, action executor.Action) (executor.Result, error) {
	body := request{
		Type:       action.Type,
		OwnerID:    action.OwnerID,
		Parameters: action.Parameters,
	}
	if action.PlaybookID != nil {
		body.PlaybookID = action.PlaybookID.String()
	}
	if action.JobID != nil {
		body.JobID = action.JobID.String()
	}
	if body.Parameters == nil {
		body.Parameters = map[string]any{}
	}

	reqBody, err := json.Marshal(body)
	if err != nil {
		return executor.Result{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, e.config.Method, e.config.URL, bytes.NewReader(reqBody))
	if err != nil {
		return executor.Result{}, fmt.Errorf("failed to create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return executor.Result{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(bodyBytes))
		if resp.StatusCode >= 500 {
			return executor.Result{}, fmt.Errorf("handler %s returned server error %s: %s", e.config.Name, resp.Status, msg)
		}
		return executor.Result{}, fmt.Errorf("handler %s returned client error %s: %s", e.config.Name, resp.Status, msg)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return executor.Result{}, fmt.Errorf("failed to decode handler response: %w", err)
	}

	return executor.Result{
		Success: out.Success,
		Result:  out.Result,
		Logs:    out.Logs,
		Errors:  out.Errors,
	}, nil
}

// RegisterAll registers one webhook executor per config entry.
func RegisterAll(reg *executor.Registry, configs []Config) error {
	for _, cfg := range configs {
		if cfg.Name == "" || cfg.URL == "" {
			return fmt.Errorf("webhook executor requires name and url")
		}
		if err := reg.Register(cfg.Name, New(cfg)); err != nil {
			return err
		}
	}
	return nil
}
