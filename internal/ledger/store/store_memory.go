package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ballotbox/internal/ledger"
	"ballotbox/pkg/platform/sentinel"
)

// MemoryStore keeps ledger entries in memory for tests and development.
// Entries are copied on the way in and on the way out: callers can never
// reach the committed slice, which is as close to structural immutability as
// an in-process store gets. Readers work on snapshots and never block
// appends for other elections.
type MemoryStore struct {
	mu     sync.RWMutex
	chains map[string][]ledger.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chains: make(map[string][]ledger.Event)}
}

func (s *MemoryStore) Append(_ context.Context, event *ledger.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[event.ElectionID]
	if len(chain) > 0 && chain[len(chain)-1].SequenceNo >= event.SequenceNo {
		return fmt.Errorf("sequence %d already committed: %w", event.SequenceNo, sentinel.ErrConflict)
	}
	s.chains[event.ElectionID] = append(chain, *event)
	return nil
}

// AppendNext reads the chain head and commits the built entry under one hold
// of the store lock, so no other appender can slip in between.
func (s *MemoryStore) AppendNext(_ context.Context, electionID string,
	build func(prevHash string, seq uint64) (*ledger.Event, error)) (*ledger.Event, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.chains[electionID]
	prevHash := ledger.GenesisHash
	var seq uint64 = 1
	if len(chain) > 0 {
		prevHash = chain[len(chain)-1].EntryHash
		seq = chain[len(chain)-1].SequenceNo + 1
	}

	event, err := build(prevHash, seq)
	if err != nil {
		return nil, err
	}
	s.chains[electionID] = append(chain, *event)
	clone := *event
	return &clone, nil
}

func (s *MemoryStore) Head(_ context.Context, electionID string) (*ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[electionID]
	if len(chain) == 0 {
		return nil, fmt.Errorf("no entries for election %s: %w", electionID, sentinel.ErrNotFound)
	}
	head := chain[len(chain)-1]
	return &head, nil
}

func (s *MemoryStore) List(_ context.Context, electionID string) ([]*ledger.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.chains[electionID]
	out := make([]*ledger.Event, len(chain))
	for i := range chain {
		event := chain[i]
		out[i] = &event
	}
	return out, nil
}

func (s *MemoryStore) ListElections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.chains))
	for electionID := range s.chains {
		out = append(out, electionID)
	}
	sort.Strings(out)
	return out, nil
}
