package store

import (
	"context"
	"fmt"
	"sync"

	"ballotbox/internal/election"
	"ballotbox/pkg/platform/sentinel"
)

// MemoryStore keeps elections in memory for tests and development.
type MemoryStore struct {
	mu        sync.RWMutex
	elections map[string]*election.Election
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{elections: make(map[string]*election.Election)}
}

func (s *MemoryStore) Create(_ context.Context, e *election.Election) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.elections[e.ID]; ok {
		return fmt.Errorf("election %s exists: %w", e.ID, sentinel.ErrConflict)
	}
	clone := *e
	s.elections[e.ID] = &clone
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*election.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.elections[id]
	if !ok {
		return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
	}
	clone := *e
	return &clone, nil
}

func (s *MemoryStore) Execute(_ context.Context, id string,
	validate func(*election.Election) error,
	mutate func(*election.Election)) (*election.Election, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.elections[id]
	if !ok {
		return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
	}
	if err := validate(e); err != nil {
		return nil, err
	}
	mutate(e)
	clone := *e
	return &clone, nil
}
