package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotbox/internal/ballot"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
)

// PostgresStore persists encrypted ballots in the ballots table. The table
// lives in the ballot schema; its only foreign key is the election, and the
// role used here has no grant on the voter roll (see db/schema.sql).
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

const ballotColumns = `id, election_id, ciphertext, receipt_hash, cast_at`

func (s *PostgresStore) Create(ctx context.Context, b *ballot.EncryptedBallot) error {
	query := `
		INSERT INTO ballots (` + ballotColumns + `)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		b.ID, b.ElectionID, b.Ciphertext, b.ReceiptHash, b.CastAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("ballot exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ballot: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByReceiptHash(ctx context.Context, receiptHash string) (*ballot.EncryptedBallot, error) {
	var b ballot.EncryptedBallot
	err := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+ballotColumns+` FROM ballots WHERE receipt_hash = $1`, receiptHash).
		Scan(&b.ID, &b.ElectionID, &b.Ciphertext, &b.ReceiptHash, &b.CastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("receipt: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ballot by receipt: %w", err)
	}
	return &b, nil
}

func (s *PostgresStore) ListByElection(ctx context.Context, electionID, afterID string, limit int) ([]*ballot.EncryptedBallot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ballotColumns+` FROM ballots
		WHERE election_id = $1 AND id > $2
		ORDER BY id
		LIMIT $3
	`, electionID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query ballots: %w", err)
	}
	defer rows.Close()

	var ballots []*ballot.EncryptedBallot
	for rows.Next() {
		var b ballot.EncryptedBallot
		if err := rows.Scan(&b.ID, &b.ElectionID, &b.Ciphertext, &b.ReceiptHash, &b.CastAt); err != nil {
			return nil, fmt.Errorf("scan ballot: %w", err)
		}
		ballots = append(ballots, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ballots: %w", err)
	}
	return ballots, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM ballots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ballot: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ballot: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ballot %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CountByElection(ctx context.Context, electionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ballots WHERE election_id = $1`, electionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ballots: %w", err)
	}
	return count, nil
}
