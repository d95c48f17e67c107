// Package middleware contains HTTP middleware for the controller.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"actionplane/pkg/api"
)

// OwnerHeader carries the id of the agent a request acts for.
const OwnerHeader = "X-Owner-ID"

// ownerIDKey is the context key for the owner ID.
type ownerIDKey struct{}

// Owner is middleware that extracts the owning agent from the request.
// Every job and playbook operation is scoped by owner_id.
func Owner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ownerID := strings.TrimSpace(r.Header.Get(OwnerHeader))
		if ownerID == "" {
			writeError(w, http.StatusUnauthorized, "Missing "+OwnerHeader+" header")
			return
		}

		ctx := NewContextWithOwnerID(r.Context(), ownerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// NewContextWithOwnerID returns a context carrying ownerID.
func NewContextWithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerIDKey{}, ownerID)
}

// OwnerIDFromContext extracts the owner ID from the context.
func OwnerIDFromContext(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(ownerIDKey{}).(string)
	return ownerID, ok && ownerID != ""
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(api.ErrorResponse{
		Error: message,
		Code:  http.StatusText(status),
	})
}
