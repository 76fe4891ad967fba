package vault

import "context"

// Store persists ballot tokens.
//
// Error contract: FindByTokenHash returns sentinel.ErrNotFound (wrapped) for
// unknown digests; Create returns sentinel.ErrConflict (wrapped) on a
// duplicate digest.
//
// Execute applies validate-then-mutate atomically against the stored token,
// making it the single-use redemption point: of N concurrent redemptions of
// the same token exactly one validates before the mutation marks it used.
//
// Delete removes a token outright. It exists for unwinding a failed issuance
// before the raw token was ever handed out, never for revoking a live one.
type Store interface {
	Create(ctx context.Context, token *BallotToken) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*BallotToken, error)
	Update(ctx context.Context, token *BallotToken) error
	Delete(ctx context.Context, tokenHash string) error
	Execute(ctx context.Context, tokenHash string,
		validate func(*BallotToken) error,
		mutate func(*BallotToken)) (*BallotToken, error)
}
