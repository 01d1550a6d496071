// Package middleware contains HTTP middleware for the run API.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"runplane/internal/auth"
)

// clientKey is the context key for the authenticated client identity.
type clientKey struct{}

// NewContextWithClient returns a context carrying the client identity.
func NewContextWithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey{}, client)
}

// ClientFromContext extracts the client identity from the context.
func ClientFromContext(ctx context.Context) (string, bool) {
	client, ok := ctx.Value(clientKey{}).(string)
	return client, ok && client != ""
}

// RequireToken ensures the request carries a bearer token whose SHA-256
// digest equals tokenHash. An empty tokenHash disables the check.
// Authenticated requests are tagged with a client identity derived from the digest.
func RequireToken(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if tokenHash == "" {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Missing authorization header", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
				return
			}

			if !auth.VerifyToken(parts[1], tokenHash) {
				http.Error(w, "Invalid authorization token", http.StatusUnauthorized)
				return
			}

			ctx := NewContextWithClient(r.Context(), "token:"+auth.HashKey(parts[1])[:12])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
