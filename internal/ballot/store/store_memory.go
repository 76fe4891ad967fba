package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ballotbox/internal/ballot"
	"ballotbox/pkg/platform/sentinel"
)

// MemoryStore keeps encrypted ballots in memory for tests and development.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]*ballot.EncryptedBallot
	byReceipt map[string]string // receipt hash -> ballot id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]*ballot.EncryptedBallot),
		byReceipt: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, b *ballot.EncryptedBallot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[b.ID]; ok {
		return fmt.Errorf("ballot %s exists: %w", b.ID, sentinel.ErrConflict)
	}
	if _, ok := s.byReceipt[b.ReceiptHash]; ok {
		return fmt.Errorf("receipt exists: %w", sentinel.ErrConflict)
	}
	clone := cloneBallot(b)
	s.byID[b.ID] = clone
	s.byReceipt[b.ReceiptHash] = b.ID
	return nil
}

func (s *MemoryStore) FindByReceiptHash(_ context.Context, receiptHash string) (*ballot.EncryptedBallot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byReceipt[receiptHash]
	if !ok {
		return nil, fmt.Errorf("receipt: %w", sentinel.ErrNotFound)
	}
	return cloneBallot(s.byID[id]), nil
}

func (s *MemoryStore) ListByElection(_ context.Context, electionID, afterID string, limit int) ([]*ballot.EncryptedBallot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*ballot.EncryptedBallot
	for _, b := range s.byID {
		if b.ElectionID == electionID && b.ID > afterID {
			all = append(all, cloneBallot(b))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *MemoryStore) CountByElection(_ context.Context, electionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, b := range s.byID {
		if b.ElectionID == electionID {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("ballot %s: %w", id, sentinel.ErrNotFound)
	}
	delete(s.byReceipt, b.ReceiptHash)
	delete(s.byID, id)
	return nil
}

func cloneBallot(b *ballot.EncryptedBallot) *ballot.EncryptedBallot {
	clone := *b
	clone.Ciphertext = append([]byte(nil), b.Ciphertext...)
	return &clone
}
