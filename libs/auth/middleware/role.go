package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/leadpulse/backend/libs/auth/service"
)

type contextKey string

const operatorIDKey contextKey = "operatorID"

// RoleAdmin is the minimum role allowed to read queue internals
const RoleAdmin = 3

// AccessTokenValidator validates access tokens and returns the subject id and role
type AccessTokenValidator interface {
	ValidateAccessToken(token string) (int, int, error)
}

var _ AccessTokenValidator = (*service.TokenGenerator)(nil)

// RoleMiddleware validates a bearer access token and requires role >= requiredRole
func RoleMiddleware(validator AccessTokenValidator, requiredRole int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			operatorID, role, err := validator.ValidateAccessToken(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if role < requiredRole {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), operatorIDKey, operatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperatorID returns the authenticated operator id, or 0
func GetOperatorID(ctx context.Context) int {
	id, _ := ctx.Value(operatorIDKey).(int)
	return id
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}
