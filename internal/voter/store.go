package voter

import "context"

// Store persists voter records.
//
// Error contract: lookups return sentinel.ErrNotFound (wrapped) for unknown
// voters; Create returns sentinel.ErrConflict (wrapped) for a duplicate
// (election_id, email) pair.
//
// Execute is the winner-selection point for exactly-once voting: it applies
// validate-then-mutate atomically against the stored record (row lock or
// store mutex), so of N concurrent authentication attempts with the same
// identity token exactly one observes a validatable record and flips it.
type Store interface {
	Create(ctx context.Context, record *Record) error
	FindByID(ctx context.Context, id string) (*Record, error)
	FindByTokenHash(ctx context.Context, electionID, tokenHash string) (*Record, error)
	ListByElection(ctx context.Context, electionID string) ([]*Record, error)
	Update(ctx context.Context, record *Record) error
	Execute(ctx context.Context, electionID, tokenHash string,
		validate func(*Record) error,
		mutate func(*Record)) (*Record, error)
}
