// ABOUTME: HTTP middleware for bearer authentication on API endpoints
// ABOUTME: Extracts the Authorization header and rejects with 401 JSON errors

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithClient returns a context carrying the authenticated client ID.
func WithClient(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, contextKey{}, clientID)
}

// ClientFromContext returns the authenticated client ID, or "" if none.
func ClientFromContext(ctx context.Context) string {
	clientID, _ := ctx.Value(contextKey{}).(string)
	return clientID
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware creates an HTTP middleware that validates bearer tokens and adds
// the client ID to the request context. Rejections are 401 with a JSON body
// so protocol clients get a parseable error.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				unauthorized(w, errMsg)
				return
			}

			clientID, err := verifier.Verify(token)
			if err != nil {
				unauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), clientID)))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
