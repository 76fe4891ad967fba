package lockout

import (
	"context"
	"time"
)

// Store counts authentication failures per key within a rolling window.
type Store interface {
	// RecordFailure increments the failure count for key and returns the new
	// count. The first failure starts the window; the count expires after it.
	RecordFailure(ctx context.Context, key string, window time.Duration) (int, error)
	// Failures returns the current count for key, zero if none.
	Failures(ctx context.Context, key string) (int, error)
	// Clear resets the count for key.
	Clear(ctx context.Context, key string) error
}
