package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotbox/internal/election"
	electionStore "ballotbox/internal/election/store"
	"ballotbox/internal/ledger"
	ledgerStore "ballotbox/internal/ledger/store"
	"ballotbox/internal/platform/logger"
	dErrors "ballotbox/pkg/domain-errors"
)

type ElectionSuite struct {
	suite.Suite
	ledger *ledger.Service
	svc    *Service

	now time.Time
}

func TestElectionSuite(t *testing.T) {
	suite.Run(t, new(ElectionSuite))
}

func (s *ElectionSuite) SetupTest() {
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = ledger.NewService(ledgerStore.NewMemoryStore())
	s.svc = New(electionStore.NewMemoryStore(), s.ledger, logger.Discard()).
		WithClock(func() time.Time { return s.now })
}

func (s *ElectionSuite) TestCreate() {
	ctx := context.Background()

	s.Run("creates a draft election with a seal key", func() {
		e, err := s.svc.Create(ctx, "Board vote", "Annual board election")
		s.Require().NoError(err)
		s.Equal(election.StatusDraft, e.Status)
		s.Len(e.SealKey, 32)
		s.Nil(e.OpenedAt)

		events, err := s.ledger.Trail(ctx, e.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 1)
		s.Equal(ledger.EventElectionCreated, events[0].EventType)
	})

	s.Run("title is required", func() {
		_, err := s.svc.Create(ctx, "", "")
		s.True(dErrors.Is(err, dErrors.CodeInvalidInput))
	})

	s.Run("each election gets its own seal key", func() {
		a, err := s.svc.Create(ctx, "A", "")
		s.Require().NoError(err)
		b, err := s.svc.Create(ctx, "B", "")
		s.Require().NoError(err)
		s.NotEqual(a.SealKey, b.SealKey)
	})
}

func (s *ElectionSuite) TestLifecycle() {
	ctx := context.Background()
	created, err := s.svc.Create(ctx, "Board vote", "")
	s.Require().NoError(err)

	s.Run("open transitions draft to open", func() {
		e, err := s.svc.Open(ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(election.StatusOpen, e.Status)
		s.NotNil(e.OpenedAt)
	})

	s.Run("open twice conflicts", func() {
		_, err := s.svc.Open(ctx, created.ID)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("close transitions open to closed", func() {
		e, err := s.svc.Close(ctx, created.ID)
		s.Require().NoError(err)
		s.Equal(election.StatusClosed, e.Status)
		s.NotNil(e.ClosedAt)

		closed, err := s.svc.IsClosed(ctx, created.ID)
		s.Require().NoError(err)
		s.True(closed)
	})

	s.Run("close twice conflicts", func() {
		_, err := s.svc.Close(ctx, created.ID)
		s.True(dErrors.Is(err, dErrors.CodeConflict))
	})

	s.Run("lifecycle is fully audited", func() {
		events, err := s.ledger.Trail(ctx, created.ID)
		s.Require().NoError(err)
		s.Require().Len(events, 3)
		s.Equal(ledger.EventElectionCreated, events[0].EventType)
		s.Equal(ledger.EventElectionOpened, events[1].EventType)
		s.Equal(ledger.EventElectionClosed, events[2].EventType)
	})

	s.Run("unknown election is not found", func() {
		_, err := s.svc.Open(ctx, "missing")
		s.True(dErrors.Is(err, dErrors.CodeNotFound))
	})
}

func (s *ElectionSuite) TestCloseBeforeOpen() {
	ctx := context.Background()
	created, err := s.svc.Create(ctx, "Board vote", "")
	s.Require().NoError(err)

	_, err = s.svc.Close(ctx, created.ID)
	s.True(dErrors.Is(err, dErrors.CodeConflict))
}
