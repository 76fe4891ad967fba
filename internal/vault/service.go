package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ballotbox/internal/election"
	"ballotbox/internal/ledger"
	"ballotbox/internal/vault/token"
	"ballotbox/internal/voter"
	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/platform/sentinel"
)

const actorRef = "token-vault"

// Ledger is the slice of the audit ledger this service appends to.
type Ledger interface {
	Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*ledger.Event, error)
}

// Elections provides read access to election state for gating issuance.
type Elections interface {
	Get(ctx context.Context, id string) (*election.Election, error)
}

// IssuedBallotToken carries the raw anonymous token back to the caller. The
// raw value is never stored; the vault keeps only the digest.
type IssuedBallotToken struct {
	Token     string
	ExpiresAt time.Time
}

// Service is the one component allowed to see both sides of the identity and
// ballot split. AuthenticateAndIssue is the only code path that touches a
// voter record and a ballot token together, and the link between them exists
// only on the stack for the duration of that call.
type Service struct {
	voters    voter.Store
	tokens    Store
	elections Elections
	ledger    Ledger
	uow       UnitOfWork
	logger    *slog.Logger
	now       func() time.Time
	tokenTTL  time.Duration
}

func NewService(voters voter.Store, tokens Store, elections Elections,
	auditLedger Ledger, uow UnitOfWork, logger *slog.Logger, tokenTTL time.Duration) *Service {
	return &Service{
		voters:    voters,
		tokens:    tokens,
		elections: elections,
		ledger:    auditLedger,
		uow:       uow,
		logger:    logger,
		now:       time.Now,
		tokenTTL:  tokenTTL,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ValidateIdentity checks an identity token without consuming it. It exists
// so a voting client can confirm a token before the irreversible exchange.
func (s *Service) ValidateIdentity(ctx context.Context, electionID, rawToken string) error {
	record, err := s.voters.FindByTokenHash(ctx, electionID, token.Hash(rawToken))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeUnauthorized, "unknown identity token")
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "look up identity token")
	}
	if !token.Verify(rawToken, record.IdentityTokenHash) {
		return dErrors.New(dErrors.CodeUnauthorized, "unknown identity token")
	}
	if err := record.ValidateForAuthentication(s.now().UTC()); err != nil {
		return translateVoterErr(err)
	}
	return nil
}

// AuthenticateAndIssue exchanges a valid identity token for a fresh anonymous
// ballot token. The whole exchange runs in one unit of work: the voter's
// has_voted flag flips, the ballot token is minted with only the election as
// context, and both audit events land, or none of it does. A failure partway
// is unwound, so the voter is never left advanced to Voted without a
// delivered token.
//
// The voter store's Execute call is where exactly-once is decided: of N
// concurrent calls with the same identity token, one wins the flip and the
// rest observe a voter that has already voted.
func (s *Service) AuthenticateAndIssue(ctx context.Context, electionID, rawIdentityToken string) (*IssuedBallotToken, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !e.IsOpen() {
		return nil, dErrors.New(dErrors.CodeConflict, "election is not open")
	}

	now := s.now().UTC()
	identityHash := token.Hash(rawIdentityToken)

	rawBallotToken, err := token.New()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate ballot token")
	}
	issued := &IssuedBallotToken{
		Token:     rawBallotToken,
		ExpiresAt: now.Add(s.tokenTTL),
	}

	var flipped, tokenStored bool
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		record, err := s.voters.Execute(ctx, electionID, identityHash,
			func(r *voter.Record) error {
				if !token.Verify(rawIdentityToken, r.IdentityTokenHash) {
					return fmt.Errorf("identity token: %w", sentinel.ErrNotFound)
				}
				return r.ValidateForAuthentication(now)
			},
			func(r *voter.Record) { r.MarkVoted() },
		)
		if err != nil {
			return translateVoterErr(err)
		}
		flipped = true

		if err := s.tokens.Create(ctx, &BallotToken{
			TokenHash:  token.Hash(rawBallotToken),
			ElectionID: electionID,
			IssuedAt:   now,
			ExpiresAt:  issued.ExpiresAt,
		}); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "store ballot token")
		}
		tokenStored = true

		// Events reference the voter only on the identity side and the token
		// not at all. record.ID never appears next to the ballot token hash.
		if _, err := s.ledger.Append(ctx, electionID, ledger.EventVoterAuthenticated, actorRef, "voter="+record.ID); err != nil {
			return err
		}
		if _, err := s.ledger.Append(ctx, electionID, ledger.EventBallotTokenIssued, actorRef, ""); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.unwindExchange(ctx, electionID, identityHash, token.Hash(rawBallotToken), flipped, tokenStored)
		return nil, err
	}

	s.logger.InfoContext(ctx, "ballot token issued", "election_id", electionID)
	return issued, nil
}

// unwindExchange reverts the writes of an exchange that failed partway. Under
// the SQL unit of work the rollback has already discarded them and every step
// here is a no-op; under the memory unit of work each store write was visible
// the moment it happened and must be reverted, or the voter would be stuck in
// Voted with no ballot token ever delivered. The minted token's raw value was
// never returned to anyone, so deleting it revokes nothing.
func (s *Service) unwindExchange(ctx context.Context, electionID, identityHash, ballotTokenHash string, flipped, tokenStored bool) {
	if tokenStored {
		if err := s.tokens.Delete(ctx, ballotTokenHash); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "remove ballot token after failed exchange",
				"election_id", electionID, "error", err)
		}
	}
	if !flipped {
		return
	}
	_, err := s.voters.Execute(ctx, electionID, identityHash,
		func(r *voter.Record) error {
			if !r.HasVoted {
				// Nothing to revert: the flip was rolled back with the tx.
				return fmt.Errorf("voter has not voted: %w", sentinel.ErrInvalidState)
			}
			return nil
		},
		func(r *voter.Record) {
			r.Status = voter.StatusAuthenticated
			r.HasVoted = false
		},
	)
	if err != nil && !errors.Is(err, sentinel.ErrInvalidState) {
		s.logger.ErrorContext(ctx, "revert voter state after failed exchange",
			"election_id", electionID, "error", err)
	}
}

// Redeem marks a ballot token used and returns it. It enforces single use:
// the second redemption of the same token fails with an already-used error.
func (s *Service) Redeem(ctx context.Context, electionID, rawToken string) (*BallotToken, error) {
	now := s.now().UTC()
	redeemed, err := s.tokens.Execute(ctx, token.Hash(rawToken),
		func(t *BallotToken) error {
			if t.ElectionID != electionID {
				return fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
			}
			if t.Used {
				return fmt.Errorf("ballot token: %w", sentinel.ErrAlreadyUsed)
			}
			if now.After(t.ExpiresAt) {
				return fmt.Errorf("ballot token: %w", sentinel.ErrExpired)
			}
			return nil
		},
		func(t *BallotToken) {
			t.Used = true
			usedAt := now
			t.UsedAt = &usedAt
		},
	)
	if err != nil {
		return nil, translateTokenErr(err)
	}
	return redeemed, nil
}

// Restore returns a redeemed token to the unused state. It compensates for a
// ballot that failed to persist after redemption, so a voter can retry.
func (s *Service) Restore(ctx context.Context, tokenHash string) error {
	_, err := s.tokens.Execute(ctx, tokenHash,
		func(*BallotToken) error { return nil },
		func(t *BallotToken) {
			t.Used = false
			t.UsedAt = nil
		},
	)
	if err != nil {
		return translateTokenErr(err)
	}
	return nil
}

func translateVoterErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "unknown identity token")
	case errors.Is(err, sentinel.ErrAlreadyVoted):
		return dErrors.Wrap(err, dErrors.CodeAlreadyVoted, "this identity token has already voted")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeExpired, "identity token has expired")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodeConflict, "identity token not yet issued")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "authenticate voter")
	}
}

func translateTokenErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "unknown ballot token")
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeAlreadyUsed, "ballot token already used")
	case errors.Is(err, sentinel.ErrExpired):
		return dErrors.Wrap(err, dErrors.CodeExpired, "ballot token has expired")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "redeem ballot token")
	}
}
