//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"ballotbox/internal/ledger"
	ledgerStore "ballotbox/internal/ledger/store"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
	"ballotbox/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *ledgerStore.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../db/schema.sql")
	s.store = ledgerStore.NewPostgresStore(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "audit.audit_events", "elections")
	s.Require().NoError(err)
}

// newElection inserts an elections row so audit entries have a valid FK.
func (s *PostgresStoreSuite) newElection() string {
	id := uuid.NewString()
	_, err := s.postgres.DB.Exec(`
		INSERT INTO elections (id, title, status, seal_key, created_at)
		VALUES ($1, 'Integration test', 'open', '\x00', NOW())
	`, id)
	s.Require().NoError(err)
	return id
}

func (s *PostgresStoreSuite) event(electionID string, seq uint64, prevHash string) *ledger.Event {
	e := &ledger.Event{
		ElectionID: electionID,
		SequenceNo: seq,
		EventType:  ledger.EventBallotCast,
		ActorRef:   "integration-test",
		PrevHash:   prevHash,
		RecordedAt: time.Now().UTC(),
	}
	s.Require().NoError(e.ComputeHashes())
	return e
}

func (s *PostgresStoreSuite) TestAppendAndRead() {
	ctx := context.Background()
	electionID := s.newElection()

	first := s.event(electionID, 1, ledger.GenesisHash)
	s.Require().NoError(s.store.Append(ctx, first))
	second := s.event(electionID, 2, first.EntryHash)
	s.Require().NoError(s.store.Append(ctx, second))

	head, err := s.store.Head(ctx, electionID)
	s.Require().NoError(err)
	s.Equal(uint64(2), head.SequenceNo)
	s.Equal(second.EntryHash, head.EntryHash)

	events, err := s.store.List(ctx, electionID)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(uint64(1), events[0].SequenceNo)
	s.Equal(uint64(2), events[1].SequenceNo)
}

func (s *PostgresStoreSuite) TestDuplicateSequenceConflicts() {
	ctx := context.Background()
	electionID := s.newElection()

	s.Require().NoError(s.store.Append(ctx, s.event(electionID, 1, ledger.GenesisHash)))
	err := s.store.Append(ctx, s.event(electionID, 1, ledger.GenesisHash))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestHeadOnEmptyElection() {
	_, err := s.store.Head(context.Background(), uuid.NewString())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestAppendOnlyTrigger verifies the database itself rejects history rewrites,
// independent of any application code.
func (s *PostgresStoreSuite) TestAppendOnlyTrigger() {
	ctx := context.Background()
	electionID := s.newElection()
	s.Require().NoError(s.store.Append(ctx, s.event(electionID, 1, ledger.GenesisHash)))

	_, err := s.postgres.DB.ExecContext(ctx,
		`UPDATE audit.audit_events SET detail = 'rewritten' WHERE election_id = $1`, electionID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")

	_, err = s.postgres.DB.ExecContext(ctx,
		`DELETE FROM audit.audit_events WHERE election_id = $1`, electionID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")
}

// TestChainVerifiesThroughService runs the full ledger service against the
// real store: concurrent appends stay gap-free and the chain verifies.
func (s *PostgresStoreSuite) TestChainVerifiesThroughService() {
	ctx := context.Background()
	electionID := s.newElection()
	svc := ledger.NewService(s.store)

	for i := 0; i < 10; i++ {
		_, err := svc.Append(ctx, electionID, ledger.EventBallotCast, "integration-test", "")
		s.Require().NoError(err)
	}

	s.NoError(svc.VerifyChain(ctx, electionID))

	elections, err := s.store.ListElections(ctx)
	s.Require().NoError(err)
	s.Equal([]string{electionID}, elections)
}

// TestConcurrentTransactionalAppends overlaps transactions that each append
// twice, the shape of two voters exchanging tokens at once. The advisory lock
// must serialize them without deadlock and leave a gap-free chain.
func (s *PostgresStoreSuite) TestConcurrentTransactionalAppends() {
	ctx := context.Background()
	electionID := s.newElection()
	svc := ledger.NewService(s.store)

	const writers = 4
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := s.postgres.DB.BeginTx(ctx, nil)
			if err != nil {
				errs <- err
				return
			}
			txCtx := txcontext.WithTx(ctx, tx)
			if _, err := svc.Append(txCtx, electionID, ledger.EventVoterAuthenticated, "integration-test", ""); err != nil {
				_ = tx.Rollback()
				errs <- err
				return
			}
			if _, err := svc.Append(txCtx, electionID, ledger.EventBallotTokenIssued, "integration-test", ""); err != nil {
				_ = tx.Rollback()
				errs <- err
				return
			}
			errs <- tx.Commit()
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.Require().NoError(err)
	}

	events, err := s.store.List(ctx, electionID)
	s.Require().NoError(err)
	s.Len(events, 2*writers)
	s.NoError(svc.VerifyChain(ctx, electionID))
}
