package handlers

import (
	"net/http"

	"actionplane/internal/orchestrator"
	"actionplane/internal/store"
	"actionplane/pkg/api"
)

// CreatePlaybook handles POST /playbooks.
// The playbook is stored as a draft; POST /playbooks/{id}/run starts it.
func (h *Handlers) CreatePlaybook(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var req api.CreatePlaybookRequest
	if !h.decode(w, r, &req) {
		return
	}

	create := orchestrator.CreateRequest{
		OwnerID: ownerID,
		Title:   req.Title,
		Actions: make([]orchestrator.ActionSpec, len(req.Actions)),
	}
	for i, a := range req.Actions {
		create.Actions[i] = orchestrator.ActionSpec{ActionID: a.ActionID, Type: a.Type, Parameters: a.Parameters}
	}

	pb, err := h.playbooks.CreatePlaybook(r.Context(), create)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusCreated, toPlaybookResponse(pb))
}

// GetPlaybook handles GET /playbooks/{id}.
func (h *Handlers) GetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, ok := h.ownedPlaybook(w, r)
	if !ok {
		return
	}
	h.respondJson(w, http.StatusOK, toPlaybookResponse(pb))
}

// RunPlaybook handles POST /playbooks/{id}/run.
// The run continues in the background; progress is read from the status endpoint.
func (h *Handlers) RunPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, ok := h.ownedPlaybook(w, r)
	if !ok {
		return
	}

	started, err := h.playbooks.StartPlaybook(r.Context(), pb.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusAccepted, api.RunPlaybookResponse{
		PlaybookID: started.ID.String(),
		Status:     string(started.Status),
	})
}

// CancelPlaybook handles POST /playbooks/{id}/cancel.
func (h *Handlers) CancelPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, ok := h.ownedPlaybook(w, r)
	if !ok {
		return
	}

	cancelled, err := h.playbooks.CancelPlaybook(r.Context(), pb.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toPlaybookResponse(cancelled))
}

// GetPlaybookStatus handles GET /playbooks/{id}/status.
func (h *Handlers) GetPlaybookStatus(w http.ResponseWriter, r *http.Request) {
	pb, ok := h.ownedPlaybook(w, r)
	if !ok {
		return
	}

	st, err := h.playbooks.GetPlaybookStatus(r.Context(), pb.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, toStatusResponse(st))
}

// ListExecutions handles GET /playbooks/{id}/executions.
func (h *Handlers) ListExecutions(w http.ResponseWriter, r *http.Request) {
	pb, ok := h.ownedPlaybook(w, r)
	if !ok {
		return
	}

	executions, err := h.playbooks.ListExecutions(r.Context(), pb.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	resp := make([]api.ExecutionResponse, len(executions))
	for i, e := range executions {
		resp[i] = toExecutionResponse(e)
	}
	h.respondJson(w, http.StatusOK, resp)
}

// ownedPlaybook loads the playbook named in the path. Playbooks of other owners are reported as not found.
func (h *Handlers) ownedPlaybook(w http.ResponseWriter, r *http.Request) (*store.Playbook, bool) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return nil, false
	}
	id, ok := h.pathID(w, r, "playbook")
	if !ok {
		return nil, false
	}

	pb, err := h.playbooks.GetPlaybook(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}
	if pb.OwnerID != ownerID {
		h.httpError(w, "Not found", http.StatusNotFound)
		return nil, false
	}
	return pb, true
}
