//go:build integration

package store_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ballotbox/internal/vault"
	vaultStore "ballotbox/internal/vault/store"
	"ballotbox/pkg/platform/sentinel"
	"ballotbox/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *vaultStore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../db/schema.sql")
	s.store = vaultStore.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "ballots.ballot_tokens", "elections")
	s.Require().NoError(err)
}

// newElection inserts an elections row so token rows have a valid FK.
func (s *PostgresStoreSuite) newElection() string {
	id := uuid.NewString()
	_, err := s.postgres.DB.Exec(`
		INSERT INTO elections (id, title, status, seal_key, created_at)
		VALUES ($1, 'Integration test', 'open', '\x00', NOW())
	`, id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresStoreSuite) newToken(electionID string) *vault.BallotToken {
	now := time.Now().UTC()
	return &vault.BallotToken{
		TokenHash:  uuid.NewString(),
		ElectionID: electionID,
		IssuedAt:   now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}
}

func (s *PostgresStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	token := s.newToken(s.newElection())
	s.Require().NoError(s.store.Create(ctx, token))

	stored, err := s.store.FindByTokenHash(ctx, token.TokenHash)
	s.Require().NoError(err)
	s.Equal(token.ElectionID, stored.ElectionID)
	s.False(stored.Used)
	s.Nil(stored.UsedAt)

	s.ErrorIs(s.store.Create(ctx, token), sentinel.ErrConflict)

	_, err = s.store.FindByTokenHash(ctx, uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestUpdate() {
	ctx := context.Background()
	token := s.newToken(s.newElection())
	s.Require().NoError(s.store.Create(ctx, token))

	usedAt := time.Now().UTC()
	token.Used = true
	token.UsedAt = &usedAt
	s.Require().NoError(s.store.Update(ctx, token))

	stored, err := s.store.FindByTokenHash(ctx, token.TokenHash)
	s.Require().NoError(err)
	s.True(stored.Used)
	s.NotNil(stored.UsedAt)

	missing := s.newToken(token.ElectionID)
	s.ErrorIs(s.store.Update(ctx, missing), sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	token := s.newToken(s.newElection())
	s.Require().NoError(s.store.Create(ctx, token))

	s.Require().NoError(s.store.Delete(ctx, token.TokenHash))

	_, err := s.store.FindByTokenHash(ctx, token.TokenHash)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(ctx, token.TokenHash), sentinel.ErrNotFound)
}

// TestExecuteSingleUse races concurrent redemptions of one token against the
// real row lock: exactly one caller may mark it used.
func (s *PostgresStoreSuite) TestExecuteSingleUse() {
	ctx := context.Background()
	token := s.newToken(s.newElection())
	s.Require().NoError(s.store.Create(ctx, token))

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
			_, err := s.store.Execute(ctx, token.TokenHash,
				func(t *vault.BallotToken) error {
					if t.Used {
						return fmt.Errorf("ballot token: %w", sentinel.ErrAlreadyUsed)
					}
					return nil
				},
				func(t *vault.BallotToken) {
					t.Used = true
					usedAt := time.Now().UTC()
					t.UsedAt = &usedAt
				},
			)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				won++
			} else if errors.Is(err, sentinel.ErrAlreadyUsed) {
				denied++
			}
		}()
	}
	wg.Wait()

	s.Equal(1, won)
	s.Equal(attempts-1, denied)
}
