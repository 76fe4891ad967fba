package vault

import (
	"context"
	"database/sql"
	"fmt"

	txcontext "ballotbox/pkg/platform/tx"
)

// UnitOfWork runs a function atomically. The SQL implementation opens a
// transaction and threads it through the context so every store call inside
// fn shares it; the memory implementation just calls fn, since the memory
// stores take their own locks per call.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLUnitOfWork wraps fn in a database transaction carried on the context.
type SQLUnitOfWork struct {
	db *sql.DB
}

func NewSQLUnitOfWork(db *sql.DB) *SQLUnitOfWork {
	return &SQLUnitOfWork{db: db}
}

func (u *SQLUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// NoopUnitOfWork runs fn directly. Used with the memory stores, whose
// operations are individually atomic.
type NoopUnitOfWork struct{}

func (NoopUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
