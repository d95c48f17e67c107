package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOwner_MissingHeader(t *testing.T) {
	handler := Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called")
	}))

	for _, header := range []string{"", "   "} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(OwnerHeader, header)
		}
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("header %q: got status %d, want %d", header, rr.Code, http.StatusUnauthorized)
		}
	}
}

func TestOwner_InjectsOwnerID(t *testing.T) {
	var got string
	handler := Owner(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = OwnerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(OwnerHeader, "agent-42")
	rr := httptest.NewRecorder()

	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Errorf("got status %d, want %d", rr.Code, http.StatusOK)
	}
	if got != "agent-42" {
		t.Errorf("got owner %q, want agent-42", got)
	}
}

func TestOwnerIDFromContext_Empty(t *testing.T) {
	if _, ok := OwnerIDFromContext(context.Background()); ok {
		t.Error("expected no owner in empty context")
	}
	if _, ok := OwnerIDFromContext(NewContextWithOwnerID(context.Background(), "")); ok {
		t.Error("expected empty owner to be rejected")
	}
}

func TestRequireAdminToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"disabled", "", "", http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"no bearer prefix", "s3cret", "s3cret", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "s3cret", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RequireAdminToken(tt.token)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodPost, "/queue/reprioritize", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rr.Code, tt.wantStatus)
			}
		})
	}
}
