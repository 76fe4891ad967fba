package ballot

import "context"

// Store persists encrypted ballots.
//
// Error contract: FindByReceiptHash returns sentinel.ErrNotFound (wrapped)
// for unknown digests; Create returns sentinel.ErrConflict (wrapped) on a
// duplicate ballot or receipt digest.
//
// Delete removes a ballot outright. It exists for unwinding a cast whose
// unit of work failed after the write, never for discarding accepted
// ballots.
type Store interface {
	Create(ctx context.Context, b *EncryptedBallot) error
	FindByReceiptHash(ctx context.Context, receiptHash string) (*EncryptedBallot, error)
	// ListByElection returns ballots with an id after afterID, ordered by id,
	// so a tally can resume from a cursor position deterministically. afterID
	// must be a UUID; pass the zero UUID for the first page.
	ListByElection(ctx context.Context, electionID string, afterID string, limit int) ([]*EncryptedBallot, error)
	CountByElection(ctx context.Context, electionID string) (int, error)
	Delete(ctx context.Context, id string) error
}
