package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ballotbox/internal/vault"
	"ballotbox/pkg/platform/sentinel"
	txcontext "ballotbox/pkg/platform/tx"
)

// PostgresStore persists ballot tokens in the ballot_tokens table. The table
// lives in the ballot schema and the role used here has no grant on the voter
// roll (see db/schema.sql); the row itself has no voter column, so even a
// full dump of this table cannot be joined back onto identities.
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

const tokenColumns = `token_hash, election_id, used, issued_at, expires_at, used_at`

func (s *PostgresStore) Create(ctx context.Context, token *vault.BallotToken) error {
	query := `
		INSERT INTO ballot_tokens (` + tokenColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		token.TokenHash, token.ElectionID, token.Used,
		token.IssuedAt, token.ExpiresAt, token.UsedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return fmt.Errorf("ballot token exists: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("insert ballot token: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByTokenHash(ctx context.Context, tokenHash string) (*vault.BallotToken, error) {
	token, err := scanToken(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+tokenColumns+` FROM ballot_tokens WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query ballot token: %w", err)
	}
	return token, nil
}

func (s *PostgresStore) Update(ctx context.Context, token *vault.BallotToken) error {
	result, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE ballot_tokens
		SET used = $2, used_at = $3
		WHERE token_hash = $1
	`, token.TokenHash, token.Used, token.UsedAt)
	if err != nil {
		return fmt.Errorf("update ballot token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update ballot token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, tokenHash string) error {
	result, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM ballot_tokens WHERE token_hash = $1`, tokenHash)
	if err != nil {
		return fmt.Errorf("delete ballot token: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete ballot token: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
	}
	return nil
}

// Execute locks the token row, validates, applies the mutation, and persists
// it, inside the ambient transaction when one is present. FOR UPDATE
// serializes concurrent redemptions of the same token.
func (s *PostgresStore) Execute(ctx context.Context, tokenHash string,
	validate func(*vault.BallotToken) error,
	mutate func(*vault.BallotToken)) (*vault.BallotToken, error) {

	run := func(ctx context.Context, q queryExecutor) (*vault.BallotToken, error) {
		token, err := scanToken(q.QueryRowContext(ctx,
			`SELECT `+tokenColumns+` FROM ballot_tokens WHERE token_hash = $1 FOR UPDATE`,
			tokenHash))
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("ballot token: %w", sentinel.ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("lock ballot token: %w", err)
		}
		if err := validate(token); err != nil {
			return nil, err
		}
		mutate(token)
		_, err = q.ExecContext(ctx, `
			UPDATE ballot_tokens
			SET used = $2, used_at = $3
			WHERE token_hash = $1
		`, token.TokenHash, token.Used, token.UsedAt)
		if err != nil {
			return nil, fmt.Errorf("update ballot token state: %w", err)
		}
		return token, nil
	}

	if tx, ok := txcontext.From(ctx); ok {
		return run(ctx, tx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin token tx: %w", err)
	}
	token, err := run(ctx, tx)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit token tx: %w", err)
	}
	return token, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanToken(row rowScanner) (*vault.BallotToken, error) {
	var token vault.BallotToken
	err := row.Scan(&token.TokenHash, &token.ElectionID, &token.Used,
		&token.IssuedAt, &token.ExpiresAt, &token.UsedAt)
	if err != nil {
		return nil, err
	}
	return &token, nil
}
