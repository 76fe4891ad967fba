package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	dErrors "ballotbox/pkg/domain-errors"
	"ballotbox/pkg/platform/sentinel"
)

// BrokenChainError reports the first entry whose recomputed hash does not
// match what was committed. Everything from this sequence number forward is
// untrusted.
type BrokenChainError struct {
	ElectionID string
	SequenceNo uint64
	Reason     string
}

func (e *BrokenChainError) Error() string {
	return fmt.Sprintf("audit chain broken for election %s at sequence %d: %s",
		e.ElectionID, e.SequenceNo, e.Reason)
}

func (e *BrokenChainError) Unwrap() error { return sentinel.ErrChainBroken }

// Service is the audit ledger. Appends for the same election are totally
// ordered because each entry hash depends on the previous one; the store owns
// that serialization (a mutex for the memory store, a transaction-scoped
// advisory lock for postgres), so the head read and the insert can never be
// split by a competing appender or a later-committing transaction. Appends
// for different elections proceed in parallel. Verification is read-only and
// never blocks writers.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append commits a new entry to the election's chain. The store assigns the
// sequence number under its per-election lock so it is strictly increasing
// with no gaps, and prev_hash always names the immediately preceding
// committed entry.
//
// Callers running inside a storage transaction get the append as part of that
// unit of work: the store writes through the ambient transaction when one is
// present in ctx.
func (s *Service) Append(ctx context.Context, electionID, eventType, actorRef, detail string) (*Event, error) {
	if electionID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "election id is required")
	}
	if eventType == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "event type is required")
	}

	event, err := s.store.AppendNext(ctx, electionID,
		func(prevHash string, seq uint64) (*Event, error) {
			event := &Event{
				ElectionID: electionID,
				SequenceNo: seq,
				EventType:  eventType,
				ActorRef:   actorRef,
				Detail:     detail,
				PrevHash:   prevHash,
				RecordedAt: s.now().UTC(),
			}
			if err := event.ComputeHashes(); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compute entry hash")
			}
			return event, nil
		})
	if err != nil {
		var de *dErrors.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "append ledger entry")
	}

	s.logger.DebugContext(ctx, "ledger entry appended",
		"election_id", electionID,
		"sequence_no", event.SequenceNo,
		"event_type", eventType,
	)
	return event, nil
}

// VerifyChain recomputes every entry hash for the election from genesis.
// It returns nil when the chain is intact, and a *BrokenChainError naming the
// first mismatching sequence number otherwise. The walk reads a snapshot of
// the chain, so concurrent appends are neither blocked nor observed.
func (s *Service) VerifyChain(ctx context.Context, electionID string) error {
	events, err := s.store.List(ctx, electionID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "list ledger entries")
	}

	prevHash := GenesisHash
	var prevSeq uint64
	for _, event := range events {
		if event.SequenceNo != prevSeq+1 {
			return &BrokenChainError{
				ElectionID: electionID,
				SequenceNo: event.SequenceNo,
				Reason:     fmt.Sprintf("sequence gap after %d", prevSeq),
			}
		}
		if event.PrevHash != prevHash {
			return &BrokenChainError{
				ElectionID: electionID,
				SequenceNo: event.SequenceNo,
				Reason:     "prev_hash does not match preceding entry",
			}
		}
		recomputed, err := event.Recompute()
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "recompute entry hash")
		}
		if recomputed != event.EntryHash {
			return &BrokenChainError{
				ElectionID: electionID,
				SequenceNo: event.SequenceNo,
				Reason:     "entry content does not match committed hash",
			}
		}
		prevHash = event.EntryHash
		prevSeq = event.SequenceNo
	}
	return nil
}

// VerifyAll verifies every election's chain. Chains are independent, so they
// are checked in parallel; the result maps election id to its verification
// error (nil for intact chains).
func (s *Service) VerifyAll(ctx context.Context) (map[string]error, error) {
	elections, err := s.store.ListElections(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list elections")
	}

	results := make(map[string]error, len(elections))
	var resultsMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, electionID := range elections {
		electionID := electionID
		g.Go(func() error {
			verifyErr := s.VerifyChain(ctx, electionID)
			if verifyErr != nil && !errors.Is(verifyErr, sentinel.ErrChainBroken) {
				return verifyErr
			}
			resultsMu.Lock()
			results[electionID] = verifyErr
			resultsMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Trail returns the committed entries for an election, oldest first.
func (s *Service) Trail(ctx context.Context, electionID string) ([]*Event, error) {
	events, err := s.store.List(ctx, electionID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list ledger entries")
	}
	return events, nil
}
