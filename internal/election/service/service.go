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
	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/platform/sentinel"
)

const actorRef = "election-service"

// Ledger is the slice of the audit ledger this service appends to.
type Ledger interface {
	Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*ledger.Event, error)
}

// Service drives the election lifecycle. Opening and closing are recorded in
// the audit ledger; the closed status is what gates tally reads downstream.
type Service struct {
	store  election.Store
	ledger Ledger
	logger *slog.Logger
	now    func() time.Time
}

func New(store election.Store, auditLedger Ledger, logger *slog.Logger) *Service {
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

func (s *Service) Create(ctx context.Context, title, description string) (*election.Election, error) {
	if title == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}

	sealKey, err := ballot.NewSealKey()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "generate seal key")
	}

	e := &election.Election{
		ID:          uuid.NewString(),
		Title:       title,
		Description: description,
		Status:      election.StatusDraft,
		SealKey:     sealKey,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.Create(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "create election")
	}

	if _, err := s.ledger.Append(ctx, e.ID, ledger.EventElectionCreated, actorRef, e.Title); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "election created", "election_id", e.ID)
	return e, nil
}

func (s *Service) Get(ctx context.Context, id string) (*election.Election, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "election not found")
	}
	return e, nil
}

// Open transitions a draft election to open and records the transition.
func (s *Service) Open(ctx context.Context, id string) (*election.Election, error) {
	now := s.now().UTC()
	e, err := s.store.Execute(ctx, id,
		func(e *election.Election) error { return e.ValidateForOpen() },
		func(e *election.Election) { e.MarkOpened(now) },
	)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	if _, err := s.ledger.Append(ctx, id, ledger.EventElectionOpened, actorRef, ""); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "election opened", "election_id", id)
	return e, nil
}

// Close transitions an open election to closed. After this commits, no more
// tokens are issued and no more ballots are accepted; tally reads become
// available.
func (s *Service) Close(ctx context.Context, id string) (*election.Election, error) {
	now := s.now().UTC()
	e, err := s.store.Execute(ctx, id,
		func(e *election.Election) error { return e.ValidateForClose() },
		func(e *election.Election) { e.MarkClosed(now) },
	)
	if err != nil {
		return nil, translateStoreErr(err)
	}

	if _, err := s.ledger.Append(ctx, id, ledger.EventElectionClosed, actorRef, ""); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "election closed", "election_id", id)
	return e, nil
}

// IsClosed reports whether tally reads are allowed for the election.
func (s *Service) IsClosed(ctx context.Context, id string) (bool, error) {
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeNotFound, "election not found")
	}
	return e.IsClosed(), nil
}

// translateStoreErr passes through coded validation errors and maps store
// sentinels to domain codes.
func translateStoreErr(err error) error {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "election not found")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, "election store")
}
