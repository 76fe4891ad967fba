package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotbox/internal/voter"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
)

// PostgresStore persists voter records in the voters table. The table lives
// in the identity schema; the database role used here has no grant on the
// ballot or ballot-token tables (see db/schema.sql), so no query through
// this store can join identity onto ballots.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type queryExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) queryExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const voterColumns = `id, election_id, email, identity_token_hash, status, has_voted,
       issued_at, expires_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, record *voter.Record) error {
	query := `
		INSERT INTO voters (` + voterColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		record.ID, record.ElectionID, record.Email,
		nullable(record.IdentityTokenHash), string(record.Status), record.HasVoted,
		record.IssuedAt, record.ExpiresAt, record.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("voter %s exists for election: %w", record.Email, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert voter: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*voter.Record, error) {
	record, err := scanVoter(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("voter %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query voter: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, electionID, tokenHash string) (*voter.Record, error) {
	record, err := scanVoter(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE election_id = $1 AND identity_token_hash = $2`,
		electionID, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query voter by token: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByElection(ctx context.Context, electionID string) ([]*voter.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+voterColumns+` FROM voters WHERE election_id = $1 ORDER BY email`, electionID)
	if err != nil {
		return nil, fmt.Errorf("query voters: %w", err)
	}
	defer rows.Close()

	var records []*voter.Record
	for rows.Next() {
		record, err := scanVoter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan voter: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate voters: %w", err)
	}
	return records, nil
}

func (s *PostgresStore) Update(ctx context.Context, record *voter.Record) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE voters
		SET identity_token_hash = $2, status = $3, has_voted = $4,
		    issued_at = $5, expires_at = $6
		WHERE id = $1
	`, record.ID, nullable(record.IdentityTokenHash), string(record.Status),
		record.HasVoted, record.IssuedAt, record.ExpiresAt)
	if err != nil {
		return fmt.Errorf("update voter: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update voter: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("voter %s: %w", record.ID, sentinel.ErrNotFound)
	}
	return nil
}

// Execute locks the voter row, validates, applies the mutation, and persists
// it, inside the ambient transaction when one is present, otherwise in its
// own. FOR UPDATE serializes concurrent attempts on the same identity token:
// the loser re-reads the winner's committed flip and fails validation.
func (s *PostgresStore) Execute(ctx context.Context, electionID, tokenHash string,
	validate func(*voter.Record) error,
	mutate func(*voter.Record)) (*voter.Record, error) {

	run := func(ctx context.Context, q queryExecutor) (*voter.Record, error) {
		record, err := scanVoter(q.QueryRowContext(ctx,
			`SELECT `+voterColumns+` FROM voters
			 WHERE election_id = $1 AND identity_token_hash = $2
			 FOR UPDATE`,
			electionID, tokenHash))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("identity token: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lock voter: %w", err)
		}
		if err := validate(record); err != nil {
			return nil, err
		}
		mutate(record)
		_, err = q.ExecContext(ctx, `
			UPDATE voters
			SET status = $2, has_voted = $3
			WHERE id = $1
		`, record.ID, string(record.Status), record.HasVoted)
		if err != nil {
			return nil, fmt.Errorf("update voter state: %w", err)
		}
		return record, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin voter tx: %w", err)
	}
	record, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit voter tx: %w", err)
	}
	return record, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoter(row rowScanner) (*voter.Record, error) {
	var (
		record    voter.Record
		tokenHash sql.NullString
		status    string
	)
	err := row.Scan(&record.ID, &record.ElectionID, &record.Email,
		&tokenHash, &status, &record.HasVoted,
		&record.IssuedAt, &record.ExpiresAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}
	record.IdentityTokenHash = tokenHash.String
	record.Status = voter.Status(status)
	return &record, nil
}
