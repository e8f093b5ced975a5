// Package postgres implements every domain repository on one sqlx handle.
// Transactions travel in the context (utils.WithTx), so a service can call
// into another service's repository and still share one unit of work.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gamecredit-platform/internal/apperr"
	"gamecredit-platform/pkg/utils"

	"github.com/jmoiron/sqlx"
)

type Store struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in a transaction. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return utils.WithTx(ctx, s.db, nil, func(ctx context.Context, _ *sqlx.Tx) error {
		return fn(ctx)
	})
}

// q returns the transaction carried by ctx, or the pool.
func (s *Store) q(ctx context.Context) sqlx.ExtContext {
	if tx, ok := utils.TxFromContext(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, s.q(ctx), dest, query, args...)
}

func (s *Store) sel(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, s.q(ctx), dest, query, args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.q(ctx).ExecContext(ctx, query, args...)
}

func (s *Store) named(ctx context.Context, query string, arg any) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, s.q(ctx), query, arg)
}

// classify maps driver errors onto the apperr taxonomy.
func classify(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	case utils.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", what, apperr.ErrConflict)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// mustAffect turns a zero-row UPDATE into not-found.
func mustAffect(res sql.Result, err error, what string) error {
	if err != nil {
		return classify(err, what)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
