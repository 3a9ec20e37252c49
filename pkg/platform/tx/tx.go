// Package tx carries an open SQL transaction through a context so stores can
// join the caller's transaction without changing their signatures.
package tx

import (
	"context"
	"database/sql"
)

type ctxKey struct{}

type isolationKey struct{}

var txKey = ctxKey{}

// Execer is the query surface shared by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// ExecerFrom returns the transaction in ctx, or db when there is none.
func ExecerFrom(ctx context.Context, db *sql.DB) Execer {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db
}

// WithIsolation requests an isolation level for the next transaction opened
// with ctx. It has no effect on a transaction that is already open.
func WithIsolation(ctx context.Context, level sql.IsolationLevel) context.Context {
	return context.WithValue(ctx, isolationKey{}, level)
}

// IsolationFrom returns the level requested through WithIsolation, or
// sql.LevelDefault.
func IsolationFrom(ctx context.Context) sql.IsolationLevel {
	level, _ := ctx.Value(isolationKey{}).(sql.IsolationLevel)
	return level
}
