package handlers

import (
	"net/http"
	"strings"

	"actionplane/internal/controller/middleware"
	"actionplane/pkg/api"
)

// QueueStats handles GET /queue/stats for the calling owner.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	stats, err := h.queue.GetQueueStats(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.respondJson(w, http.StatusOK, api.StatsResponse(stats))
}

// Reprioritize handles POST /queue/reprioritize.
// With X-Owner-ID only that owner's pending jobs are recomputed, otherwise every owner's.
func (h *Handlers) Reprioritize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	owners := []string{strings.TrimSpace(r.Header.Get(middleware.OwnerHeader))}
	if owners[0] == "" {
		var err error
		if owners, err = h.queue.PendingOwners(ctx); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	total := 0
	for _, ownerID := range owners {
		n, err := h.queue.Reprioritize(ctx, ownerID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		total += n
	}
	h.respondJson(w, http.StatusOK, api.ReprioritizeResponse{Updated: total})
}
