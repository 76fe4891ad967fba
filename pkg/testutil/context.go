package testutil

import (
	"context"
	"net/http"

	"ballotbox/internal/platform/middleware"
)

// WithOrganiser adds an authenticated organiser to the request context,
// simulating what the JWT middleware does for valid tokens.
func WithOrganiser(req *http.Request, organiserID, email string) *http.Request {
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOrganiserID, organiserID)
	ctx = context.WithValue(ctx, middleware.ContextKeyOrganiserEmail, email)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
