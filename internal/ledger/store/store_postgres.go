package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotbox/internal/ledger"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
)

// PostgresStore persists ledger entries in the audit_events table. The table
// itself enforces immutability: a row-level trigger rejects UPDATE and
// DELETE (see db/schema.sql), so even a caller with direct SQL access cannot
// rewrite committed entries. This store only ever issues INSERT and SELECT.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the ambient transaction when one is present in ctx so the
// append joins the caller's unit of work.
func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event *ledger.Event) error {
	return insertEvent(ctx, s.execer(ctx), event)
}

// AppendNext serializes chain extension on a transaction-scoped advisory lock
// keyed by the election. The lock outlives the head read and the insert and
// is released only at commit, so a competing appender cannot read the head
// before this entry is visible to it. Inside an ambient transaction the lock
// is reentrant, so a caller appending several entries in one unit of work
// holds it once for all of them.
func (s *PostgresStore) AppendNext(ctx context.Context, electionID string,
	build func(prevHash string, seq uint64) (*ledger.Event, error)) (*ledger.Event, error) {

	if tx, ok := txcontext.From(ctx); ok {
		return s.appendNext(ctx, tx, electionID, build)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append tx: %w", err)
	}
	event, err := s.appendNext(ctx, tx, electionID, build)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append tx: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) appendNext(ctx context.Context, q dbExecutor, electionID string,
	build func(prevHash string, seq uint64) (*ledger.Event, error)) (*ledger.Event, error) {

	if _, err := q.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, electionID); err != nil {
		return nil, fmt.Errorf("lock chain: %w", err)
	}

	prevHash := ledger.GenesisHash
	var seq uint64 = 1
	head, err := scanEvent(q.QueryRowContext(ctx, `
		SELECT election_id, sequence_no, event_type, actor_ref,
		       detail, payload_hash, prev_hash, entry_hash, recorded_at
		FROM audit_events
		WHERE election_id = $1
		ORDER BY sequence_no DESC
		LIMIT 1
	`, electionID))
	switch {
	case err == nil:
		prevHash = head.EntryHash
		seq = head.SequenceNo + 1
	case errors.Is(err, sql.ErrNoRows):
		// first entry for this election
	default:
		return nil, fmt.Errorf("query chain head: %w", err)
	}

	event, err := build(prevHash, seq)
	if err != nil {
		return nil, err
	}
	if err := insertEvent(ctx, q, event); err != nil {
		return nil, err
	}
	return event, nil
}

func insertEvent(ctx context.Context, q dbExecutor, event *ledger.Event) error {
	query := `
		INSERT INTO audit_events (
			election_id, sequence_no, event_type, actor_ref,
			detail, payload_hash, prev_hash, entry_hash, recorded_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.ExecContext(ctx, query,
		event.ElectionID,
		event.SequenceNo,
		event.EventType,
		event.ActorRef,
		event.Detail,
		event.PayloadHash,
		event.PrevHash,
		event.EntryHash,
		event.RecordedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("sequence %d already committed: %w", event.SequenceNo, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) Head(ctx context.Context, electionID string) (*ledger.Event, error) {
	query := `
		SELECT election_id, sequence_no, event_type, actor_ref,
		       detail, payload_hash, prev_hash, entry_hash, recorded_at
		FROM audit_events
		WHERE election_id = $1
		ORDER BY sequence_no DESC
		LIMIT 1
	`
	event, err := scanEvent(s.execer(ctx).QueryRowContext(ctx, query, electionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no entries for election %s: %w", electionID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query chain head: %w", err)
	}
	return event, nil
}

func (s *PostgresStore) List(ctx context.Context, electionID string) ([]*ledger.Event, error) {
	query := `
		SELECT election_id, sequence_no, event_type, actor_ref,
		       detail, payload_hash, prev_hash, entry_hash, recorded_at
		FROM audit_events
		WHERE election_id = $1
		ORDER BY sequence_no ASC
	`
	rows, err := s.db.QueryContext(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []*ledger.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func (s *PostgresStore) ListElections(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT election_id FROM audit_events ORDER BY election_id`)
	if err != nil {
		return nil, fmt.Errorf("query ledger elections: %w", err)
	}
	defer rows.Close()

	var elections []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan election id: %w", err)
		}
		elections = append(elections, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger elections: %w", err)
	}
	return elections, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*ledger.Event, error) {
	var event ledger.Event
	err := row.Scan(
		&event.ElectionID,
		&event.SequenceNo,
		&event.EventType,
		&event.ActorRef,
		&event.Detail,
		&event.PayloadHash,
		&event.PrevHash,
		&event.EntryHash,
		&event.RecordedAt,
	)
	if err != nil {
		return nil, err
	}
	return &event, nil
}
