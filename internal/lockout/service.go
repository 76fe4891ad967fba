package lockout

import (
	"context"
	"log/slog"
	"time"

	dErrors "ballotbox/pkg/domain-errors"
)

// Service applies a failure lockout to authentication attempts: after the
// configured number of failures within the window, further attempts for the
// same key are refused until the window expires.
type Service struct {
	store    Store
	logger   *slog.Logger
	attempts int
	window   time.Duration
}

func New(store Store, logger *slog.Logger, attempts int, window time.Duration) *Service {
	return &Service{
		store:    store,
		logger:   logger,
		attempts: attempts,
		window:   window,
	}
}

// Check refuses the attempt when the key is locked out.
func (s *Service) Check(ctx context.Context, key string) error {
	count, err := s.store.Failures(ctx, key)
	if err != nil {
		// A broken counter must not block voting.
		s.logger.WarnContext(ctx, "lockout check unavailable", "error", err)
		return nil
	}
	if count >= s.attempts {
		return dErrors.New(dErrors.CodeRateLimited, "too many failed attempts, try again later")
	}
	return nil
}

// RecordFailure counts a failed attempt and reports whether this failure
// tripped the lockout.
func (s *Service) RecordFailure(ctx context.Context, key string) (bool, error) {
	count, err := s.store.RecordFailure(ctx, key, s.window)
	if err != nil {
		s.logger.WarnContext(ctx, "lockout record unavailable", "error", err)
		return false, nil
	}
	if count == s.attempts {
		s.logger.InfoContext(ctx, "lockout triggered", "failures", count)
		return true, nil
	}
	return false, nil
}

// Clear resets the failure count after a successful attempt.
func (s *Service) Clear(ctx context.Context, key string) error {
	return s.store.Clear(ctx, key)
}
