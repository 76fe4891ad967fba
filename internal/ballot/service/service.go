package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ballotbox/internal/ballot"
	"ballotbox/internal/election"
	"ballotbox/internal/ledger"
	"ballotbox/internal/vault"
	"ballotbox/internal/vault/token"
	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/platform/sentinel"
)

const actorRef = "ballot-service"

// tallyPageSize is the number of ballots fetched per cursor advance.
const tallyPageSize = 200

// Ledger is the slice of the audit ledger this service appends to.
type Ledger interface {
	Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*ledger.Event, error)
}

// TokenRedeemer consumes and restores anonymous ballot tokens.
type TokenRedeemer interface {
	Redeem(ctx context.Context, electionID, rawToken string) (*vault.BallotToken, error)
	Restore(ctx context.Context, tokenHash string) error
}

// Elections provides read access to election state and seal keys.
type Elections interface {
	Get(ctx context.Context, id string) (*election.Election, error)
}

// VerifiedReceipt is what a receipt check reveals: a ballot exists and when
// it was cast. Nothing in it identifies the voter or the choice.
type VerifiedReceipt struct {
	ElectionID string
	CastAt     time.Time
}

// TallyResult is the decrypted count for a closed election.
type TallyResult struct {
	ElectionID string
	Total      int
	Counts     map[string]int
}

// Service accepts anonymous ballots and tallies them after close. It sees
// ballot tokens and ciphertexts, never voter records.
type Service struct {
	store     ballot.Store
	redeemer  TokenRedeemer
	elections Elections
	ledger    Ledger
	uow       vault.UnitOfWork
	logger    *slog.Logger
	now       func() time.Time
}

func New(store ballot.Store, redeemer TokenRedeemer, elections Elections,
	auditLedger Ledger, uow vault.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		redeemer:  redeemer,
		elections: elections,
		ledger:    auditLedger,
		uow:       uow,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Cast redeems a ballot token and stores the sealed choice, atomically where
// the backing store allows it. If the ballot fails to persist after the
// token was consumed, the token is restored so the voter can retry; a retry
// after a half-failed attempt still produces exactly one ballot.
func (s *Service) Cast(ctx context.Context, electionID, rawBallotToken, choice string) (*ballot.Receipt, error) {
	if choice == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "choice is required")
	}

	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !e.IsOpen() {
		return nil, dErrors.New(dErrors.CodeConflict, "election is not open")
	}

	ciphertext, err := ballot.Seal(e.SealKey, []byte(choice))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "seal ballot")
	}

	rawReceipt, err := token.New()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate receipt")
	}

	now := s.now().UTC()
	var redeemedHash, ballotID string
	err = s.uow.RunInTx(ctx, func(ctx context.Context) error {
		redeemed, err := s.redeemer.Redeem(ctx, electionID, rawBallotToken)
		if err != nil {
			return err
		}
		redeemedHash = redeemed.TokenHash

		b := &ballot.EncryptedBallot{
			ID:          uuid.NewString(),
			ElectionID:  electionID,
			Ciphertext:  ciphertext,
			ReceiptHash: token.Hash(rawReceipt),
			CastAt:      now,
		}
		if err := s.store.Create(ctx, b); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "store ballot")
		}
		ballotID = b.ID

		// Anonymous by construction: no actor detail, no token reference.
		if _, err := s.ledger.Append(ctx, electionID, ledger.EventBallotCast, actorRef, ""); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		// The ballot must be gone before the token becomes redeemable again,
		// or a retry could land a second ballot for the same token. Under a
		// SQL unit of work the rollback already removed it and the delete is
		// a no-op.
		if ballotID != "" {
			if delErr := s.store.Delete(ctx, ballotID); delErr != nil && !errors.Is(delErr, sentinel.ErrNotFound) {
				s.logger.ErrorContext(ctx, "remove ballot after failed cast",
					"election_id", electionID, "error", delErr)
			}
		}
		if redeemedHash != "" {
			if restoreErr := s.redeemer.Restore(ctx, redeemedHash); restoreErr != nil {
				s.logger.ErrorContext(ctx, "restore ballot token after failed cast",
					"election_id", electionID, "error", restoreErr)
			}
		}
		return nil, err
	}

	s.logger.InfoContext(ctx, "ballot cast", "election_id", electionID)
	return &ballot.Receipt{Token: rawReceipt, CastAt: now}, nil
}

// VerifyReceipt confirms that a ballot matching the receipt exists.
func (s *Service) VerifyReceipt(ctx context.Context, rawReceipt string) (*VerifiedReceipt, error) {
	b, err := s.store.FindByReceiptHash(ctx, token.Hash(rawReceipt))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "unknown receipt")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "look up receipt")
	}
	return &VerifiedReceipt{ElectionID: b.ElectionID, CastAt: b.CastAt}, nil
}

// Tally decrypts and counts every ballot for a closed election. It refuses
// to run while the election is open, so no partial result can leak and
// influence voters.
func (s *Service) Tally(ctx context.Context, electionID string) (*TallyResult, error) {
	e, err := s.elections.Get(ctx, electionID)
	if err != nil {
		return nil, err
	}
	if !e.IsClosed() {
		return nil, dErrors.New(dErrors.CodeConflict, "tally is only available after the election closes")
	}

	result := &TallyResult{
		ElectionID: electionID,
		Counts:     make(map[string]int),
	}
	cursor := s.ReadForTally(electionID)
	for {
		page, err := cursor.Next(ctx)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, b := range page {
			choice, err := ballot.Open(e.SealKey, b.Ciphertext)
			if err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "open sealed ballot")
			}
			result.Counts[string(choice)]++
			result.Total++
		}
	}
	return result, nil
}

// ReadForTally returns a restartable cursor over an election's ballots.
// Resume by constructing a new cursor and seeking with LastID.
func (s *Service) ReadForTally(electionID string) *TallyCursor {
	// Ballot ids are UUIDs and the zero UUID sorts before all of them, so it
	// is the cursor origin on every backend. An empty string is not: the
	// postgres id column rejects it.
	return &TallyCursor{store: s.store, electionID: electionID, LastID: uuid.Nil.String()}
}

// TallyCursor pages through ballots in stable id order.
type TallyCursor struct {
	store      ballot.Store
	electionID string
	// LastID is the id of the last ballot returned. Set it before the first
	// Next call to resume a previous pass.
	LastID string
	done   bool
}

// Next returns the next page of ballots, or an empty page when exhausted.
func (c *TallyCursor) Next(ctx context.Context) ([]*ballot.EncryptedBallot, error) {
	if c.done {
		return nil, nil
	}
	page, err := c.store.ListByElection(ctx, c.electionID, c.LastID, tallyPageSize)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "read ballots")
	}
	if len(page) == 0 {
		c.done = true
		return nil, nil
	}
	c.LastID = page[len(page)-1].ID
	return page, nil
}
