package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotbox/internal/election"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
)

// PostgresStore persists elections in the elections table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Create(ctx context.Context, e *election.Election) error {
	query := `
		INSERT INTO elections (id, title, description, status, seal_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		e.ID, e.Title, e.Description, string(e.Status), e.SealKey, e.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("election %s exists: %w", e.ID, sentinel.ErrConflict)
		}
		return fmt.Errorf("insert election: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*election.Election, error) {
	query := `
		SELECT id, title, description, status, seal_key, created_at, opened_at, closed_at
		FROM elections
		WHERE id = $1
	`
	e, err := scanElection(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query election: %w", err)
	}
	return e, nil
}

// Execute locks the election row, validates, applies the mutation, and
// persists the result in one transaction (or the caller's ambient one).
func (s *PostgresStore) Execute(ctx context.Context, id string,
	validate func(*election.Election) error,
	mutate func(*election.Election)) (*election.Election, error) {

	run := func(ctx context.Context, q queryExecutor) (*election.Election, error) {
		e, err := scanElection(q.QueryRowContext(ctx, `
			SELECT id, title, description, status, seal_key, created_at, opened_at, closed_at
			FROM elections
			WHERE id = $1
			FOR UPDATE
		`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("election %s: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lock election: %w", err)
		}
		if err := validate(e); err != nil {
			return nil, err
		}
		mutate(e)
		_, err = q.ExecContext(ctx, `
			UPDATE elections
			SET status = $2, opened_at = $3, closed_at = $4
			WHERE id = $1
		`, e.ID, string(e.Status), e.OpenedAt, e.ClosedAt)
		if err != nil {
			return nil, fmt.Errorf("update election: %w", err)
		}
		return e, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin election tx: %w", err)
	}
	e, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit election tx: %w", err)
	}
	return e, nil
}

type queryExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanElection(row rowScanner) (*election.Election, error) {
	var (
		e      election.Election
		status string
	)
	err := row.Scan(&e.ID, &e.Title, &e.Description, &status, &e.SealKey,
		&e.CreatedAt, &e.OpenedAt, &e.ClosedAt)
	if err != nil {
		return nil, err
	}
	e.Status = election.Status(status)
	return &e, nil
}
