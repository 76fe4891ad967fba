package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"ballotbox/internal/ledger"
	"ballotbox/internal/vault/token"
	"ballotbox/internal/voter"
	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/platform/sentinel"
	pstrings "ballotbox/pkg/platform/strings"
)

const actorRef = "voter-service"

// Ledger is the slice of the audit ledger this service appends to.
type Ledger interface {
	Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*ledger.Event, error)
}

// IssuedToken pairs a voter's email with their raw identity token. The raw
// token exists only in this return value; the store keeps the digest.
type IssuedToken struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// ImportResult summarizes a CSV import.
type ImportResult struct {
	Added   int
	Skipped int
}

// Service manages the voter roll: creating records at import time and
// issuing identity tokens. It never touches ballot tokens or ballots.
type Service struct {
	store  voter.Store
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

func New(store voter.Store, auditLedger Ledger, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		ledger: auditLedger,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Add registers a single voter for an election in the Invited state.
func (s *Service) Add(ctx context.Context, electionID, email string) (*voter.Record, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "invalid email")
	}

	record := &voter.Record{
		ID:         uuid.NewString(),
		ElectionID: electionID,
		Email:      email,
		Status:     voter.StatusInvited,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "voter already exists for this election")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create voter")
	}
	return record, nil
}

// ImportCSV reads a voter list with a required "email" column. Duplicate and
// blank rows are skipped and counted, matching the roll-upload semantics the
// rest of the platform expects.
func (s *Service) ImportCSV(ctx context.Context, electionID string, r io.Reader) (*ImportResult, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, dErrors.New(dErrors.CodeBadRequest, "empty or unreadable CSV")
	}

	emailCol := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "email") {
			emailCol = i
			break
		}
	}
	if emailCol == -1 {
		return nil, dErrors.New(dErrors.CodeBadRequest, `CSV must have an "email" column`)
	}

	var rows int
	var emails []string
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "malformed CSV row")
		}
		rows++
		if emailCol < len(row) {
			emails = append(emails, row[emailCol])
		}
	}

	// In-file duplicates and blank rows count as skipped, not as errors.
	emails = pstrings.DedupeAndTrimLower(emails)

	result := &ImportResult{Skipped: rows - len(emails)}
	for _, email := range emails {
		if _, err := s.Add(ctx, electionID, email); err != nil {
			if dErrors.Is(err, dErrors.CodeConflict) || dErrors.Is(err, dErrors.CodeInvalidInput) {
				result.Skipped++
				continue
			}
			return nil, err
		}
		result.Added++
	}

	s.logger.InfoContext(ctx, "voter roll imported",
		"election_id", electionID,
		"added", result.Added,
		"skipped", result.Skipped,
	)
	return result, nil
}

// IssueTokens mints identity tokens for every voter in the election that has
// none yet. Raw tokens are returned exactly once for delivery; only digests
// are persisted. The batch is recorded in the ledger by count, never by
// voter.
func (s *Service) IssueTokens(ctx context.Context, electionID string, ttl time.Duration) ([]IssuedToken, error) {
	if ttl <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "token ttl must be positive")
	}

	records, err := s.store.ListByElection(ctx, electionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list voters")
	}

	now := s.now().UTC()
	expiresAt := now.Add(ttl)
	var issued []IssuedToken

	for _, record := range records {
		if record.HasToken() || record.HasVoted {
			continue
		}
		raw, err := token.New()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate identity token")
		}
		record.AttachToken(token.Hash(raw), now, expiresAt)
		if err := s.store.Update(ctx, record); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "store identity token")
		}
		issued = append(issued, IssuedToken{
			Email:     record.Email,
			Token:     raw,
			ExpiresAt: expiresAt,
		})
	}

	if len(issued) > 0 {
		detail := fmt.Sprintf("count=%d", len(issued))
		if _, err := s.ledger.Append(ctx, electionID, ledger.EventIdentityTokensIssued, actorRef, detail); err != nil {
			return nil, err
		}
	}

	s.logger.InfoContext(ctx, "identity tokens issued",
		"election_id", electionID,
		"count", len(issued),
	)
	return issued, nil
}

// List returns the voter roll for an election.
func (s *Service) List(ctx context.Context, electionID string) ([]*voter.Record, error) {
	records, err := s.store.ListByElection(ctx, electionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list voters")
	}
	return records, nil
}
