package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"dealerdesk/internal/jwttoken"
	"dealerdesk/pkg/domain"
)

// TokenValidator defines the interface for validating access tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*jwttoken.AccessTokenClaims, error)
}

type contextKeyUserID struct{}
type contextKeyTenantID struct{}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyUserID{}).(string); ok {
		return id
	}
	return ""
}

// GetTenantID retrieves the authenticated tenant from the context. A nil ID
// means the caller is a platform administrator on shared data only.
func GetTenantID(ctx context.Context) domain.TenantID {
	if id, ok := ctx.Value(contextKeyTenantID{}).(domain.TenantID); ok {
		return id
	}
	return domain.TenantID{}
}

// RequireAuth validates the bearer token and binds the caller's identity and
// tenant to the request context. The tenant claim set here is the only source
// of tenant identity for data access further down the pipeline.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			tenantID, err := claims.Tenant()
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - malformed tenant claim",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "malformed tenant claim")
				return
			}

			ctx = context.WithValue(ctx, contextKeyUserID{}, claims.UserID)
			ctx = context.WithValue(ctx, contextKeyTenantID{}, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + description + `"}`))
}
