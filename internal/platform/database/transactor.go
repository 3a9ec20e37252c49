package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	dErrors "cityrater/pkg/domain-errors"
	"cityrater/pkg/platform/sentinel"
	"cityrater/pkg/platform/tx"
)

const (
	defaultTxTimeout     = 5 * time.Second
	defaultTxMaxAttempts = 3
)

// Transactor runs functions inside a SQL transaction that stores join
// through the context (see pkg/platform/tx).
type Transactor struct {
	db          *sql.DB
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	// SQLite runs on a single connection and has no isolation levels to pick.
	isolation bool
}

type TransactorOption func(*Transactor)

// WithTimeout bounds transactions whose context has no deadline.
func WithTimeout(d time.Duration) TransactorOption {
	return func(t *Transactor) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithMaxAttempts sets how many times a retryable failure is attempted.
func WithMaxAttempts(n int) TransactorOption {
	return func(t *Transactor) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

func NewTransactor(db *sql.DB, opts ...TransactorOption) *Transactor {
	t := &Transactor{
		db:          db,
		timeout:     defaultTxTimeout,
		maxAttempts: defaultTxMaxAttempts,
		backoff:     10 * time.Millisecond,
	}
	_, t.isolation = db.Driver().(*pq.Driver)
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// DB exposes the pool for reads that need no transaction.
func (t *Transactor) DB() *sql.DB {
	return t.db
}

// RunInTx runs fn in a transaction. When fn or commit fails with a retryable
// error (a lost compare-and-swap or a Postgres serialization failure) the
// whole transaction is retried with a fresh snapshot. A transaction already
// present in ctx is joined instead of nested. On Postgres the level set with
// tx.WithIsolation is applied; otherwise the server default is used.
func (t *Transactor) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := tx.From(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var err error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == t.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "transaction aborted: context cancelled")
		case <-time.After(t.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", t.maxAttempts, err)
}

func (t *Transactor) runOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	sqlTx, err := t.db.BeginTx(ctx, t.txOptions(ctx))
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	if err := fn(tx.WithTx(ctx, sqlTx)); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (t *Transactor) txOptions(ctx context.Context) *sql.TxOptions {
	level := tx.IsolationFrom(ctx)
	if !t.isolation || level == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: level}
}

// IsRetryable reports whether err is worth retrying in a new transaction.
func IsRetryable(err error) bool {
	if errors.Is(err, sentinel.ErrConcurrentUpdate) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return true
		}
	}
	return false
}
