package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultMaxAttempts bounds how many times RunInTx runs fn when the transaction
// keeps hitting serialization conflicts.
const DefaultMaxAttempts = 3

// Postgres error codes RunInTx treats as transient.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// Beginner is satisfied by *pgxpool.Pool and *pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxRunner runs functions inside serializable transactions.
type TxRunner struct {
	db          Beginner
	maxAttempts int
	// retryableConstraints lists unique constraints whose violation means a
	// concurrent writer won the race, so the transaction is worth rerunning.
	retryableConstraints map[string]bool
}

// NewTxRunner returns a TxRunner. maxAttempts <= 0 means DefaultMaxAttempts.
func NewTxRunner(db Beginner, maxAttempts int, retryableConstraints ...string) *TxRunner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	rc := make(map[string]bool, len(retryableConstraints))
	for _, c := range retryableConstraints {
		rc[c] = true
	}
	return &TxRunner{db: db, maxAttempts: maxAttempts, retryableConstraints: rc}
}

// RunInTx runs fn in a serializable transaction and commits when fn returns nil.
// fn must be safe to run more than once; it is retried only on transient
// conflicts, never on the errors it returns itself.
func (r *TxRunner) RunInTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = r.runOnce(ctx, fn)
		if err == nil || !r.retryable(err) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	return fmt.Errorf("db: transaction failed after %d attempts: %w", r.maxAttempts, err)
}

func (r *TxRunner) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *TxRunner) retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return IsRetryableCode(pgErr.Code, pgErr.ConstraintName, r.retryableConstraints)
}

// IsRetryableCode reports whether a Postgres error is a transient conflict.
func IsRetryableCode(code, constraint string, retryableConstraints map[string]bool) bool {
	switch code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	case codeUniqueViolation:
		return retryableConstraints[constraint]
	}
	return false
}

// IsUniqueViolation reports whether err is a unique violation on constraint.
// An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
