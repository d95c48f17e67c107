// Package controller contains the controller-specific logic for the HTTP API.
package controller

import (
	"context"
	"net/http"
	"time"

	"actionplane/internal/controller/handlers"
	"actionplane/internal/controller/middleware"
)

// Options wires optional pieces of the HTTP surface.
type Options struct {
	// MetricsHandler serves GET /metrics when set.
	MetricsHandler http.Handler
	// RateLimiter throttles POST /jobs per owner when set.
	RateLimiter *middleware.RateLimiter
	// AdminToken guards operator endpoints when non-empty.
	AdminToken string
}

// Server is the HTTP server for the controller API.
type Server struct {
	httpServer *http.Server
}

// New creates a new controller server.
func New(addr string, h *handlers.Handlers, opts Options) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      NewHandler(h, opts),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}
}

// NewHandler builds the routed handler tree.
func NewHandler(h *handlers.Handlers, opts Options) http.Handler {
	owned := func(fn http.HandlerFunc) http.Handler {
		return middleware.Owner(fn)
	}
	var enqueue http.Handler = http.HandlerFunc(h.EnqueueJob)
	if opts.RateLimiter != nil {
		enqueue = opts.RateLimiter.Middleware()(enqueue)
	}
	enqueue = middleware.Owner(enqueue)
	admin := middleware.RequireAdminToken(opts.AdminToken)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
	if opts.MetricsHandler != nil {
		mux.Handle("GET /metrics", opts.MetricsHandler)
	}

	// Jobs
	mux.Handle("POST /jobs", enqueue)
	mux.Handle("GET /jobs/{id}", owned(h.GetJob))
	mux.Handle("POST /jobs/{id}/cancel", owned(h.CancelJob))
	mux.Handle("PUT /jobs/{id}/priority", owned(h.SetJobPriority))

	// Queue
	mux.Handle("GET /queue/stats", owned(h.QueueStats))
	mux.Handle("POST /queue/reprioritize", admin(http.HandlerFunc(h.Reprioritize)))

	// Playbooks
	mux.Handle("POST /playbooks", owned(h.CreatePlaybook))
	mux.Handle("GET /playbooks/{id}", owned(h.GetPlaybook))
	mux.Handle("POST /playbooks/{id}/run", owned(h.RunPlaybook))
	mux.Handle("POST /playbooks/{id}/cancel", owned(h.CancelPlaybook))
	mux.Handle("GET /playbooks/{id}/status", owned(h.GetPlaybookStatus))
	mux.Handle("GET /playbooks/{id}/executions", owned(h.ListExecutions))

	return middleware.RequestID(mux)
}

// Run starts the HTTP server. It blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutDownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return s.Shutdown(shutDownCtx)
	}
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
