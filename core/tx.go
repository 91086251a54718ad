package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shrek82/jormx/hydrate"
)

// Tx represents a database transaction.
// It implements the Executor interface. Queries run inside it hydrate into
// the same UnitOfWork as the DB.
type Tx struct {
	db    *DB
	sqlTx *sql.Tx
}

// NativeQuery runs sql within the transaction.
func (tx *Tx) NativeQuery(rsm *hydrate.ResultSetMapping, sql string, args ...any) *Query {
	return newQuery(tx.db, tx, rsm, sql, args)
}

// Find loads an entity by identifier within the transaction.
func (tx *Tx) Find(ctx context.Context, dest any, id ...any) error {
	return tx.db.find(ctx, tx, dest, id)
}

// Exec executes a raw SQL statement within the transaction.
func (tx *Tx) Exec(sql string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := tx.ExecContext(context.Background(), sql, args...)
	tx.db.logSQL(sql, time.Since(start), args...)
	return res, err
}

// Commit commits the transaction.
func (tx *Tx) Commit() error {
	if err := tx.sqlTx.Commit(); err != nil {
		return fmt.Errorf("transaction commit failed: %w", err)
	}
	return nil
}

// Rollback rolls back the transaction.
func (tx *Tx) Rollback() error {
	if err := tx.sqlTx.Rollback(); err != nil {
		return fmt.Errorf("transaction rollback failed: %w", err)
	}
	return nil
}

// QueryContext executes a query that returns rows, typically a SELECT.
func (tx *Tx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	rows, err := tx.sqlTx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction query failed: %w", err)
	}
	return rows, nil
}

// QueryRowContext executes a query that is expected to return at most one row.
func (tx *Tx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return tx.sqlTx.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a query that doesn't return rows, such as an INSERT or UPDATE.
func (tx *Tx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := tx.sqlTx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("transaction exec failed: %w", err)
	}
	return res, nil
}
