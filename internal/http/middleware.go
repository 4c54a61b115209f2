package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

type contextKey string

const (
	buyerIDKey   contextKey = "buyer_id"
	requestIDKey contextKey = "request_id"
)

// AuthMiddleware resolves the calling buyer. Real deployments validate a JWT
// here; the identity source is the X-Buyer-ID header until the auth
// collaborator is wired in.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buyerID := r.Header.Get("X-Buyer-ID")
		ctx := context.WithValue(r.Context(), buyerIDKey, buyerID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware adds a unique request ID to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = fmt.Sprintf("req-%d", time.Now().UnixNano())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func buyerIDFromContext(ctx context.Context) string {
	if buyerID, ok := ctx.Value(buyerIDKey).(string); ok {
		return buyerID
	}
	return ""
}
