package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// TxRunner executes units of work in a transaction with a per-attempt
// timeout, retrying conflicts with exponential backoff.
type TxRunner struct {
	db      *sql.DB
	timeout time.Duration
	retries uint
}

// NewTxRunner wraps db.  A zero timeout means 5s; retries counts the
// attempts after the first.
func NewTxRunner(db *sql.DB, timeout time.Duration, retries uint) *TxRunner {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TxRunner{db: db, timeout: timeout, retries: retries}
}

// DB exposes the pool for read-only queries outside a transaction.
func (r *TxRunner) DB() *sql.DB { return r.db }

// WithTx runs fn inside a transaction.  fn may run more than once, so it
// must not have effects outside tx.  Errors that are not retryable are
// returned as produced by fn.
func (r *TxRunner) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return r.WithTxTimeout(ctx, r.timeout, fn)
}

// WithTxTimeout is WithTx with its own per-attempt timeout, for batch work
// that legitimately outlives an interactive transaction.  A non-positive
// timeout means the runner default.
func (r *TxRunner) WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	if timeout <= 0 {
		timeout = r.timeout
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 20 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := r.attempt(ctx, timeout, fn)
		switch {
		case err == nil:
			return struct{}{}, nil
		case IsRetryable(err):
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.retries+1))
	return err
}

func (r *TxRunner) attempt(parent context.Context, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("commit tx: timed out: %w", err)
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
