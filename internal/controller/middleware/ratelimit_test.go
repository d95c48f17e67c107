package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"actionplane/internal/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func requestAs(owner string) *http.Request {
	ctx := NewContextWithOwnerID(context.Background(), owner)
	return httptest.NewRequest(http.MethodPost, "/jobs", nil).WithContext(ctx)
}

func TestRateLimitMiddleware_NoOwnerInContext(t *testing.T) {
	handler := NewRateLimiter(WithLimit(1, 1)).Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called when no owner in context")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestRateLimitMiddleware_UnlimitedByDefault(t *testing.T) {
	handler := NewRateLimiter().Middleware()(okHandler())

	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, requestAs("agent-1"))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: got status %d, want %d", i, rr.Code, http.StatusOK)
		}
	}
}

func TestRateLimitMiddleware_RejectsRequestOverLimit(t *testing.T) {
	handler := NewRateLimiter(WithLimit(1, 1), WithTTL(5*time.Minute)).Middleware()(okHandler())

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs("agent-1"))
	if rr.Code != http.StatusOK {
		t.Fatalf("first request: got status %d, want %d", rr.Code, http.StatusOK)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs("agent-1"))
	if rr.Code != http.StatusTooManyRequests {
		t.Errorf("second request: got status %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After header, got %q", rr.Header().Get("Retry-After"))
	}

	// Buckets are per owner
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, requestAs("agent-2"))
	if rr.Code != http.StatusOK {
		t.Errorf("other owner: got status %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRateLimiter_ExpiredLimiterIsReplaced(t *testing.T) {
	rl := NewRateLimiter(WithLimit(1, 1), WithTTL(time.Minute))
	now := time.Now()
	rl.now = func() time.Time { return now }

	first := rl.limiterFor("agent-1")
	if rl.limiterFor("agent-1") != first {
		t.Error("expected cached limiter within ttl")
	}

	now = now.Add(2 * time.Minute)
	if rl.limiterFor("agent-1") == first {
		t.Error("expected a new limiter after ttl")
	}
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if seen != "req-1" || rr.Header().Get(RequestIDHeader) != "req-1" {
		t.Errorf("expected propagated request id, got ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || seen == "req-1" || rr.Header().Get(RequestIDHeader) != seen {
		t.Errorf("expected a fresh request id, got ctx=%q header=%q", seen, rr.Header().Get(RequestIDHeader))
	}
}
