package store

import (
	"context"
	"fmt"
	"sync"

	"ballotbox/internal/vault"
	"ballotbox/pkg/platform/sentinel"
)

// MemoryStore keeps ballot tokens in memory for tests and development.
type MemoryStore struct {
	mu     sync.RWMutex
	byHash map[string]*vault.BallotToken
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byHash: make(map[string]*vault.BallotToken)}
}

func (s *MemoryStore) Create(_ context.Context, token *vault.BallotToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[token.TokenHash]; ok {
		return fmt.Errorf("ballot token exists: %w", sentinel.ErrConflict)
	}
	clone := *token
	s.byHash[token.TokenHash] = &clone
	return nil
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, tokenHash string) (*vault.BallotToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.byHash[tokenHash]
	if !ok {
		return nil, fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	clone := *token
	return &clone, nil
}

func (s *MemoryStore) Update(_ context.Context, token *vault.BallotToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[token.TokenHash]; !ok {
		return fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	clone := *token
	s.byHash[token.TokenHash] = &clone
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byHash[tokenHash]; !ok {
		return fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	delete(s.byHash, tokenHash)
	return nil
}

// Execute applies validate-then-mutate under the store lock. Exactly one of
// N concurrent redemptions of the same token passes a validation that the
// mutation invalidates.
func (s *MemoryStore) Execute(_ context.Context, tokenHash string,
	validate func(*vault.BallotToken) error,
	mutate func(*vault.BallotToken)) (*vault.BallotToken, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.byHash[tokenHash]
	if !ok {
		return nil, fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	if err := validate(token); err != nil {
		return nil, err
	}
	mutate(token)
	clone := *token
	return &clone, nil
}
