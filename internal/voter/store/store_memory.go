package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ballotbox/internal/voter"
	"ballotbox/pkg/platform/sentinel"
)

// MemoryStore keeps voter records in memory for tests and development.
// It intentionally favors clarity over performance.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[string]*voter.Record
	byEmail map[string]string // election_id+email -> record id
	byHash  map[string]string // election_id+token_hash -> record id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*voter.Record),
		byEmail: make(map[string]string),
		byHash:  make(map[string]string),
	}
}

func emailKey(electionID, email string) string    { return electionID + "\x00" + email }
func hashKey(electionID, tokenHash string) string { return electionID + "\x00" + tokenHash }

func (s *MemoryStore) Create(_ context.Context, record *voter.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(record.ElectionID, record.Email)
	if _, ok := s.byEmail[key]; ok {
		return fmt.Errorf("voter %s exists for election: %w", record.Email, sentinel.ErrConflict)
	}
	clone := *record
	s.byID[record.ID] = &clone
	s.byEmail[key] = record.ID
	if record.IdentityTokenHash != "" {
		s.byHash[hashKey(record.ElectionID, record.IdentityTokenHash)] = record.ID
	}
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (*voter.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("voter %s: %w", id, sentinel.ErrNotFound)
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryStore) FindByTokenHash(_ context.Context, electionID, tokenHash string) (*voter.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byHash[hashKey(electionID, tokenHash)]
	if !ok {
		return nil, fmt.Errorf("identity token: %w", sentinel.ErrNotFound)
	}
	clone := *s.byID[id]
	return &clone, nil
}

func (s *MemoryStore) ListByElection(_ context.Context, electionID string) ([]*voter.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*voter.Record
	for _, record := range s.byID {
		if record.ElectionID == electionID {
			clone := *record
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, record *voter.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[record.ID]
	if !ok {
		return fmt.Errorf("voter %s: %w", record.ID, sentinel.ErrNotFound)
	}
	if stored.IdentityTokenHash != "" && stored.IdentityTokenHash != record.IdentityTokenHash {
		delete(s.byHash, hashKey(stored.ElectionID, stored.IdentityTokenHash))
	}
	clone := *record
	s.byID[record.ID] = &clone
	if record.IdentityTokenHash != "" {
		s.byHash[hashKey(record.ElectionID, record.IdentityTokenHash)] = record.ID
	}
	return nil
}

// Execute applies validate-then-mutate atomically under the store lock.
// Exactly one of N concurrent callers for the same token can pass a
// validation that the mutation invalidates.
func (s *MemoryStore) Execute(_ context.Context, electionID, tokenHash string,
	validate func(*voter.Record) error,
	mutate func(*voter.Record)) (*voter.Record, error) {

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[hashKey(electionID, tokenHash)]
	if !ok {
		return nil, fmt.Errorf("identity token: %w", sentinel.ErrNotFound)
	}
	record := s.byID[id]
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	clone := *record
	return &clone, nil
}
