package election

import "context"

// Store persists elections.
//
// Error contract: FindByID returns sentinel.ErrNotFound (wrapped) for unknown
// ids; Execute applies validate-then-mutate atomically against the stored
// record so concurrent lifecycle transitions cannot interleave.
type Store interface {
	Create(ctx context.Context, e *Election) error
	FindByID(ctx context.Context, id string) (*Election, error)
	Execute(ctx context.Context, id string,
		validate func(*Election) error,
		mutate func(*Election)) (*Election, error)
}
