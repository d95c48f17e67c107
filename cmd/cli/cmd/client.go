package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"actionplane/pkg/api"
)

// ActionClient handles API calls to the actionplane controller.
type ActionClient struct {
	BaseURL    string
	OwnerID    string
	HTTPClient *http.Client
}

// NewActionClient creates a new client acting for ownerID.
func NewActionClient(baseURL, ownerID string) *ActionClient {
	return &ActionClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		OwnerID: ownerID,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *ActionClient) do(method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Add("X-Owner-ID", c.OwnerID)
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// errorMessage prefers the error field of an api.ErrorResponse body.
func errorMessage(body []byte) string {
	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		if errResp.Details != "" {
			return errResp.Error + ": " + errResp.Details
		}
		return errResp.Error
	}
	return strings.TrimSpace(string(body))
}

// Enqueue sends POST /jobs.
func (c *ActionClient) Enqueue(req api.EnqueueRequest) (*api.EnqueueResponse, error) {
	var result api.EnqueueResponse
	if err := c.do(http.MethodPost, "/jobs", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetJob sends GET /jobs/{id}.
func (c *ActionClient) GetJob(jobID string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.do(http.MethodGet, "/jobs/"+jobID, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelJob sends POST /jobs/{id}/cancel.
func (c *ActionClient) CancelJob(jobID, reason string) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.do(http.MethodPost, "/jobs/"+jobID+"/cancel", api.CancelRequest{Reason: reason}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SetPriority sends PUT /jobs/{id}/priority.
func (c *ActionClient) SetPriority(jobID string, priority int) (*api.JobResponse, error) {
	var result api.JobResponse
	if err := c.do(http.MethodPut, "/jobs/"+jobID+"/priority", api.SetPriorityRequest{Priority: &priority}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Stats sends GET /queue/stats.
func (c *ActionClient) Stats() (*api.StatsResponse, error) {
	var result api.StatsResponse
	if err := c.do(http.MethodGet, "/queue/stats", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunPlaybook sends POST /playbooks/{id}/run.
func (c *ActionClient) RunPlaybook(playbookID string) (*api.RunPlaybookResponse, error) {
	var result api.RunPlaybookResponse
	if err := c.do(http.MethodPost, "/playbooks/"+playbookID+"/run", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPlaybookStatus sends GET /playbooks/{id}/status.
func (c *ActionClient) GetPlaybookStatus(playbookID string) (*api.PlaybookStatusResponse, error) {
	var result api.PlaybookStatusResponse
	if err := c.do(http.MethodGet, "/playbooks/"+playbookID+"/status", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelPlaybook sends POST /playbooks/{id}/cancel.
func (c *ActionClient) CancelPlaybook(playbookID string) (*api.PlaybookResponse, error) {
	var result api.PlaybookResponse
	if err := c.do(http.MethodPost, "/playbooks/"+playbookID+"/cancel", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// describe renders err for terminal output.
func describe(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fmt.Sprintf("(%d) %s", apiErr.StatusCode, apiErr.Message)
	}
	return err.Error()
}
