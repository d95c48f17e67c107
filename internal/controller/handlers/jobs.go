package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"actionplane/internal/queue"
	"actionplane/internal/store"
	"actionplane/pkg/api"

	"github.com/google/uuid"
)

// EnqueueJob handles POST /jobs.
// The job is stored PENDING for the owner named by X-Owner-ID.
func (h *Handlers) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req api.EnqueueRequest
	if !h.decode(w, r, &req) {
		return
	}

	enq := queue.EnqueueRequest{
		OwnerID:     ownerID,
		Type:        req.Type,
		Payload:     req.Payload,
		Priority:    req.Priority,
		RetryPolicy: queue.RetryPolicy{MaxRetries: req.MaxRetries},
	}
	if req.ID != "" {
		id, err := uuid.Parse(req.ID)
		if err != nil {
			h.httpError(w, "Invalid job id", http.StatusBadRequest)
			return
		}
		enq.ID = id
	}
	if req.NotBefore != nil {
		enq.NotBefore = *req.NotBefore
	}
	for _, dep := range req.DependsOn {
		id, err := uuid.Parse(dep)
		if err != nil {
			h.httpError(w, "Invalid dependency id", http.StatusBadRequest)
			return
		}
		enq.DependsOn = append(enq.DependsOn, id)
	}
	if req.ICE != nil {
		enq.ICE = &store.ICE{Impact: req.ICE.Impact, Confidence: req.ICE.Confidence, Ease: req.ICE.Ease}
	}

	jobID, err := h.queue.Enqueue(ctx, enq)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	h.respondJson(w, http.StatusCreated, api.EnqueueResponse{JobID: jobID.String()})
}

// GetJob handles GET /jobs/{id}.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(job))
}

// CancelJob handles POST /jobs/{id}/cancel.
// The body is optional and may carry a reason.
func (h *Handlers) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	var req api.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updated, err := h.queue.Cancel(r.Context(), job.ID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(updated))
}

// SetJobPriority handles PUT /jobs/{id}/priority.
func (h *Handlers) SetJobPriority(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	var req api.SetPriorityRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, err := h.queue.SetPriority(r.Context(), job.ID, *req.Priority)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toJobResponse(updated))
}

// ownedJob loads the job named in the path. Jobs of other owners are reported as not found.
func (h *Handlers) ownedJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.pathID(w, r, "job")
	if !ok {
		return nil, false
	}

	job, err := h.queue.GetJobStatus(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}
	if job.OwnerID != ownerID {
		h.httpError(w, "Not found", http.StatusNotFound)
		return nil, false
	}
	return job, true
}
