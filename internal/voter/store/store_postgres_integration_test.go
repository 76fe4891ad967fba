//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ballotbox/internal/voter"
	voterStore "ballotbox/internal/voter/store"
	"ballotbox/pkg/platform/sentinel"
	"ballotbox/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *voterStore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../db/schema.sql")
	s.store = voterStore.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "identity.voters", "elections")
	s.Require().NoError(err)
}

// newElection inserts an elections row so voter rows have a valid FK.
func (s *PostgresStoreSuite) newElection() string {
	id := uuid.NewString()
	_, err := s.postgres.DB.Exec(`
		INSERT INTO elections (id, title, status, seal_key, created_at)
		VALUES ($1, 'Integration test', 'open', '\x00', NOW())
	`, id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresStoreSuite) newRecord(electionID, email string) *voter.Record {
	now := time.Now().UTC()
	record := &voter.Record{
		ID:         uuid.NewString(),
		ElectionID: electionID,
		Email:      email,
		Status:     voter.StatusInvited,
		CreatedAt:  now,
	}
	record.AttachToken(uuid.NewString(), now, now.Add(time.Hour))
	return record
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	electionID := s.newElection()
	record := s.newRecord(electionID, "ada@example.com")
	s.Require().NoError(s.store.Create(ctx, record))

	byID, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.Equal(record.Email, byID.Email)
	s.Equal(record.IdentityTokenHash, byID.IdentityTokenHash)
	s.Equal(voter.StatusInvited, byID.Status)
	s.False(byID.HasVoted)

	byHash, err := s.store.FindByTokenHash(ctx, electionID, record.IdentityTokenHash)
	s.Require().NoError(err)
	s.Equal(record.ID, byHash.ID)
}

func (s *PostgresStoreSuite) TestDuplicateEmailConflicts() {
	ctx := context.Background()
	electionID := s.newElection()
	s.Require().NoError(s.store.Create(ctx, s.newRecord(electionID, "ada@example.com")))

	err := s.store.Create(ctx, s.newRecord(electionID, "ada@example.com"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestFindByTokenHashNotFound() {
	_, err := s.store.FindByTokenHash(context.Background(), uuid.NewString(), uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	electionID := s.newElection()
	record := s.newRecord(electionID, "ada@example.com")
	s.Require().NoError(s.store.Create(ctx, record))

	record.MarkVoted()
	s.Require().NoError(s.store.Update(ctx, record))

	stored, err := s.store.FindByID(ctx, record.ID)
	s.Require().NoError(err)
	s.True(stored.HasVoted)
	s.Equal(voter.StatusVoted, stored.Status)

	missing := s.newRecord(electionID, "ghost@example.com")
	s.ErrorIs(s.store.Update(ctx, missing), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListByElection() {
	ctx := context.Background()
	electionID := s.newElection()
	other := s.newElection()
	s.Require().NoError(s.store.Create(ctx, s.newRecord(electionID, "bob@example.com")))
	s.Require().NoError(s.store.Create(ctx, s.newRecord(electionID, "ada@example.com")))
	s.Require().NoError(s.store.Create(ctx, s.newRecord(other, "eve@example.com")))

	records, err := s.store.ListByElection(ctx, electionID)
	s.Require().NoError(err)
	s.Require().Len(records, 2)
	s.Equal("ada@example.com", records[0].Email)
	s.Equal("bob@example.com", records[1].Email)
}

// TestExecuteExactlyOnce races concurrent flips of one voter's has_voted flag
// against the real row lock: exactly one caller may win.
func (s *PostgresStoreSuite) TestExecuteExactlyOnce() {
	ctx := context.Background()
	electionID := s.newElection()
	record := s.newRecord(electionID, "ada@example.com")
	s.Require().NoError(s.store.Create(ctx, record))

	const attempts = 16
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		won    int
		denied int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(ctx, electionID, record.IdentityTokenHash,
				func(r *voter.Record) error {
					return r.ValidateForAuthentication(time.Now().UTC())
				},
				func(r *voter.Record) { r.MarkVoted() },
			)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if errors.Is(err, sentinel.ErrAlreadyVoted) {
				denied++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, won)
	s.Equal(attempts-1, denied)
}
