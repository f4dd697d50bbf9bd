package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/db"
)

// queries holds every statement and runs them on either the pool or a
// transaction. Statements are written with ? placeholders and rebound for
// the driver in use.
type queries struct {
	q sqlx.ExtContext
}

// Store gives access to positions, factories, calculations and their
// logistics routes.
type Store struct {
	queries
	db *sqlx.DB
}

// Tx is a Store bound to one database transaction.
type Tx struct {
	queries
	tx *sqlx.Tx
}

func New(database *sqlx.DB) *Store {
	return &Store{queries: queries{q: database}, db: database}
}

// DB returns the underlying pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// InTx runs fn inside a transaction. fn must only use the Tx it receives;
// the transaction is committed when fn returns nil and rolled back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{queries: queries{q: tx}, tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback transaction: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (q queries) get(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.GetContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q queries) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return sqlx.SelectContext(ctx, q.q, dest, q.q.Rebind(query), args...)
}

func (q queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return q.q.ExecContext(ctx, q.q.Rebind(query), args...)
}

// insertNamed runs an INSERT ... RETURNING id built from the fields of arg.
func (q queries) insertNamed(ctx context.Context, query string, arg any) (int64, error) {
	bound, args, err := q.q.BindNamed(query, arg)
	if err != nil {
		return 0, fmt.Errorf("bind named query: %w", err)
	}
	var id int64
	if err := sqlx.GetContext(ctx, q.q, &id, bound, args...); err != nil {
		return 0, err
	}
	return id, nil
}

// updateNamed runs an UPDATE built from the fields of arg and reports
// whether a row was touched.
func (q queries) updateNamed(ctx context.Context, query string, arg any) (bool, error) {
	bound, args, err := q.q.BindNamed(query, arg)
	if err != nil {
		return false, fmt.Errorf("bind named query: %w", err)
	}
	res, err := q.q.ExecContext(ctx, bound, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (q queries) deleteByID(ctx context.Context, table, entity string, id int64) error {
	res, err := q.exec(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete %s %d: %w", entity, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(entity, id)
	}
	return nil
}

func (q queries) isPostgres() bool {
	return q.q.DriverName() == db.DriverPostgres
}

// notFound maps sql.ErrNoRows to a NotFound error for entity and wraps
// anything else.
func notFound(err error, entity string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(entity, id)
	}
	return fmt.Errorf("get %s %d: %w", entity, id, err)
}

// pqUniqueViolation is the PostgreSQL SQLSTATE for a unique constraint.
const pqUniqueViolation = "23505"

// isUniqueViolation reports whether err is a unique constraint failure on
// either supported driver.
func isUniqueViolation(err error) bool {
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	return false
}
