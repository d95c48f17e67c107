// Package handlers contains HTTP handlers for the controller API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"actionplane/internal/controller/middleware"
	"actionplane/internal/logger"
	"actionplane/internal/orchestrator"
	"actionplane/internal/queue"
	"actionplane/internal/store"
	"actionplane/pkg/api"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// JobQueue is the part of the queue manager exposed over HTTP.
type JobQueue interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (uuid.UUID, error)
	GetJobStatus(ctx context.Context, id uuid.UUID) (*store.Job, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string) (*store.Job, error)
	SetPriority(ctx context.Context, id uuid.UUID, manual int) (*store.Job, error)
	GetQueueStats(ctx context.Context, ownerID string) (queue.Stats, error)
	Reprioritize(ctx context.Context, ownerID string) (int, error)
	PendingOwners(ctx context.Context) ([]string, error)
}

// Playbooks is the part of the orchestrator exposed over HTTP.
type Playbooks interface {
	CreatePlaybook(ctx context.Context, req orchestrator.CreateRequest) (*store.Playbook, error)
	GetPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	StartPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	CancelPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error)
	GetPlaybookStatus(ctx context.Context, id uuid.UUID) (*orchestrator.Status, error)
	ListExecutions(ctx context.Context, id uuid.UUID) ([]*store.Execution, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds all HTTP handlers and their dependencies.
type Handlers struct {
	queue     JobQueue
	playbooks Playbooks
	store     Pinger
	validate  *validator.Validate
	logger    *slog.Logger
}

// New creates a new Handlers instance.
func New(q JobQueue, p Playbooks, s Pinger, log *slog.Logger) *Handlers {
	if log == nil {
		log = slog.Default()
	}
	return &Handlers{
		queue:     q,
		playbooks: p,
		store:     s,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    log.With("component", "http"),
	}
}

// A helper function to write standard JSON responses.
func (h *Handlers) respondJson(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

// A helper function to return consistent error messages.
func (h *Handlers) httpError(w http.ResponseWriter, message string, code int) {
	h.respondJson(w, code, api.ErrorResponse{
		Error: message,
		Code:  strconv.Itoa(code),
	})
}

// respondError maps domain errors onto status codes.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		h.httpError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrAlreadyExists):
		h.httpError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, queue.ErrInvalidJob),
		errors.Is(err, queue.ErrCyclicDependency),
		errors.Is(err, orchestrator.ErrInvalidPlaybook):
		h.httpError(w, err.Error(), http.StatusBadRequest)
	default:
		logger.FromContext(r.Context(), h.logger).Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
		h.httpError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// decode reads a JSON body into dst and runs struct validation.
// It writes the 400 response itself and reports false on failure.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.httpError(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.respondJson(w, http.StatusBadRequest, api.ErrorResponse{
			Error:   "Validation failed",
			Code:    strconv.Itoa(http.StatusBadRequest),
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *Handlers) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		h.httpError(w, "Unauthorized", http.StatusUnauthorized)
	}
	return ownerID, ok
}

func (h *Handlers) pathID(w http.ResponseWriter, r *http.Request, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.httpError(w, "Invalid "+what+" id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
