package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"ballotbox/internal/ledger"
	"ballotbox/pkg/platform/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemoryStore()
}

func (s *MemoryStoreSuite) event(electionID string, seq uint64) *ledger.Event {
	return &ledger.Event{
		ElectionID: electionID,
		SequenceNo: seq,
		EventType:  ledger.EventBallotCast,
		PrevHash:   ledger.GenesisHash,
		EntryHash:  "hash",
		RecordedAt: time.Now().UTC(),
	}
}

func (s *MemoryStoreSuite) TestAppend() {
	ctx := context.Background()

	s.Run("appends in order", func() {
		s.NoError(s.store.Append(ctx, s.event("e1", 1)))
		s.NoError(s.store.Append(ctx, s.event("e1", 2)))
	})

	s.Run("rejects a sequence at or below the head", func() {
		err := s.store.Append(ctx, s.event("e1", 2))
		s.ErrorIs(err, sentinel.ErrConflict)
		err = s.store.Append(ctx, s.event("e1", 1))
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *MemoryStoreSuite) TestAppendNext() {
	ctx := context.Background()

	s.Run("hands build the genesis hash for an empty chain", func() {
		event, err := s.store.AppendNext(ctx, "e1",
			func(prevHash string, seq uint64) (*ledger.Event, error) {
				s.Equal(ledger.GenesisHash, prevHash)
				s.Equal(uint64(1), seq)
				e := s.event("e1", seq)
				e.PrevHash = prevHash
				e.EntryHash = "hash-1"
				return e, nil
			})
		s.Require().NoError(err)
		s.Equal(uint64(1), event.SequenceNo)
	})

	s.Run("hands build the head hash and next sequence", func() {
		_, err := s.store.AppendNext(ctx, "e1",
			func(prevHash string, seq uint64) (*ledger.Event, error) {
				s.Equal("hash-1", prevHash)
				s.Equal(uint64(2), seq)
				e := s.event("e1", seq)
				e.PrevHash = prevHash
				return e, nil
			})
		s.Require().NoError(err)
	})

	s.Run("a build error commits nothing", func() {
		_, err := s.store.AppendNext(ctx, "e1",
			func(string, uint64) (*ledger.Event, error) {
				return nil, sentinel.ErrUnavailable
			})
		s.ErrorIs(err, sentinel.ErrUnavailable)

		head, err := s.store.Head(ctx, "e1")
		s.Require().NoError(err)
		s.Equal(uint64(2), head.SequenceNo)
	})
}

func (s *MemoryStoreSuite) TestHead() {
	ctx := context.Background()

	s.Run("empty election reports not found", func() {
		_, err := s.store.Head(ctx, "none")
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("returns the latest entry", func() {
		s.Require().NoError(s.store.Append(ctx, s.event("e1", 1)))
		s.Require().NoError(s.store.Append(ctx, s.event("e1", 2)))

		head, err := s.store.Head(ctx, "e1")
		s.Require().NoError(err)
		s.Equal(uint64(2), head.SequenceNo)
	})

	s.Run("returned entry is a copy", func() {
		head, err := s.store.Head(ctx, "e1")
		s.Require().NoError(err)
		head.Detail = "mutated"

		again, err := s.store.Head(ctx, "e1")
		s.Require().NoError(err)
		s.Empty(again.Detail)
	})
}

func (s *MemoryStoreSuite) TestListElections() {
	ctx := context.Background()
	s.Require().NoError(s.store.Append(ctx, s.event("b", 1)))
	s.Require().NoError(s.store.Append(ctx, s.event("a", 1)))

	elections, err := s.store.ListElections(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, elections)
}
