package auth

import (
	"context"
	"net/http"
	"strings"

	"chatbot-server/internal/api"
)

type contextKey int

const claimsKey contextKey = iota

// ClaimsFromContext extracts the verified access-token claims from the
// request context. Returns nil outside RequireAuth.
func ClaimsFromContext(ctx context.Context) *Claims {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok {
		return c
	}
	return nil
}

// RequireAuth verifies the Authorization bearer token before any business
// logic runs. A missing or malformed header is 401; a token that fails
// signature or expiry checks is 403.
func RequireAuth(svc *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				api.Error(w, http.StatusUnauthorized, "missing or invalid token")
				return
			}

			claims, err := svc.VerifyAccess(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				api.Error(w, http.StatusForbidden, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
