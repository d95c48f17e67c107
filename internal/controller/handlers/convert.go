package handlers

import (
	"actionplane/internal/orchestrator"
	"actionplane/internal/store"
	"actionplane/pkg/api"

	"github.com/google/uuid"
)

func toJobResponse(job *store.Job) api.JobResponse {
	resp := api.JobResponse{
		ID:          job.ID.String(),
		OwnerID:     job.OwnerID,
		Type:        job.Type,
		Status:      string(job.Status),
		Priority:    job.Priority,
		Payload:     job.Payload,
		RetryCount:  job.RetryCount,
		MaxRetries:  job.MaxRetries,
		NotBefore:   job.NotBefore,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
		Result:      job.Result,
		Error:       job.Error,
	}
	for _, dep := range job.DependsOn {
		resp.DependsOn = append(resp.DependsOn, dep.String())
	}
	if job.ICE != nil {
		resp.ICE = &api.ICE{Impact: job.ICE.Impact, Confidence: job.ICE.Confidence, Ease: job.ICE.Ease}
	}
	return resp
}

func toPlaybookResponse(pb *store.Playbook) api.PlaybookResponse {
	resp := api.PlaybookResponse{
		ID:          pb.ID.String(),
		OwnerID:     pb.OwnerID,
		Title:       pb.Title,
		Status:      string(pb.Status),
		Actions:     make([]api.PlaybookAction, len(pb.Actions)),
		CreatedAt:   pb.CreatedAt,
		StartedAt:   pb.StartedAt,
		CompletedAt: pb.CompletedAt,
	}
	for i, a := range pb.Actions {
		resp.Actions[i] = api.PlaybookAction{
			ActionID:    a.ActionID,
			Type:        a.Type,
			Parameters:  a.Parameters,
			Status:      string(a.Status),
			Result:      a.Result,
			Error:       a.Error,
			ExecutionID: uuidString(a.ExecutionID),
		}
	}
	return resp
}

func toStatusResponse(st *orchestrator.Status) api.PlaybookStatusResponse {
	resp := api.PlaybookStatusResponse{
		PlaybookID:  st.PlaybookID.String(),
		OwnerID:     st.OwnerID,
		Title:       st.Title,
		Status:      string(st.Status),
		Progress:    api.Progress(st.Progress),
		Actions:     make([]api.ActionStatus, len(st.Actions)),
		StartedAt:   st.StartedAt,
		CompletedAt: st.CompletedAt,
	}
	for i, a := range st.Actions {
		resp.Actions[i] = api.ActionStatus{
			ActionID:    a.ActionID,
			Type:        a.Type,
			Status:      string(a.Status),
			Error:       a.Error,
			ExecutionID: uuidString(a.ExecutionID),
		}
	}
	return resp
}

func toExecutionResponse(e *store.Execution) api.ExecutionResponse {
	return api.ExecutionResponse{
		ID:              e.ID.String(),
		PlaybookID:      e.PlaybookID.String(),
		ActionID:        e.ActionID,
		ExecutorName:    e.ExecutorName,
		Status:          string(e.Status),
		InputParameters: e.InputParameters,
		OutputResult:    e.OutputResult,
		Logs:            e.Logs,
		Errors:          e.Errors,
		StartedAt:       e.StartedAt,
		CompletedAt:     e.CompletedAt,
		DurationMS:      e.Duration.Milliseconds(),
		CreatedAt:       e.CreatedAt,
	}
}

func uuidString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
