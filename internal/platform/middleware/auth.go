package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// JWTValidator defines the interface for validating organiser JWTs.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
type JWTClaims struct {
	OrganiserID string
	Email       string
}

// Context keys for storing authenticated organiser information.
type contextKeyOrganiserID struct{}
type contextKeyOrganiserEmail struct{}

// Exported for use in handlers and tests.
var (
	ContextKeyOrganiserID    = contextKeyOrganiserID{}
	ContextKeyOrganiserEmail = contextKeyOrganiserEmail{}
)

// GetOrganiserID retrieves the authenticated organiser ID from the context.
func GetOrganiserID(ctx context.Context) string {
	id, ok := ctx.Value(ContextKeyOrganiserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetOrganiserEmail retrieves the authenticated organiser email from the context.
func GetOrganiserEmail(ctx context.Context) string {
	email, ok := ctx.Value(ContextKeyOrganiserEmail).(string)
	if !ok {
		return ""
	}
	return email
}

// RequireOrganiser validates the Bearer token and stores organiser identity in
// the request context. Election management endpoints sit behind this; voter
// endpoints never do, since voters authenticate with identity tokens instead.
func RequireOrganiser(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				logger.WarnContext(r.Context(), "organiser token rejected",
					"request_id", GetRequestID(r.Context()),
					"error", err.Error(),
				)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyOrganiserID, claims.OrganiserID)
			ctx = context.WithValue(ctx, ContextKeyOrganiserEmail, claims.Email)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
