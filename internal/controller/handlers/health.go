package handlers

import "net/http"

// driverNamer is implemented by stores that can name their backend.
type driverNamer interface {
	Driver() string
}

type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

func (h *Handlers) storeDriver() string {
	if d, ok := h.store.(driverNamer); ok {
		return d.Driver()
	}
	return "unknown"
}

// Healthz reports liveness. It never touches the store.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	h.respondJson(w, http.StatusOK, healthResponse{Status: "healthy", Store: h.storeDriver()})
}

// Readyz reports whether the job store answers a ping.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	driver := h.storeDriver()
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", "store", driver, "error", err)
		h.respondJson(w, http.StatusServiceUnavailable, healthResponse{
			Status: "unavailable",
			Store:  driver,
			Error:  "store unreachable",
		})
		return
	}
	h.respondJson(w, http.StatusOK, healthResponse{Status: "ready", Store: driver})
}
