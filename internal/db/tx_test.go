package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	b *fakeBeginner
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.b.commits++
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.b.rollbacks++
	return nil
}

type fakeBeginner struct {
	begins, commits, rollbacks int
	lastOpts                   pgx.TxOptions
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.begins++
	b.lastOpts = opts
	return &fakeTx{b: b}, nil
}

func TestTxRunner_CommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b, 3)
	if err := r.RunInTx(context.Background(), func(pgx.Tx) error { return nil }); err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if b.begins != 1 || b.commits != 1 || b.rollbacks != 0 {
		t.Errorf("begins=%d commits=%d rollbacks=%d", b.begins, b.commits, b.rollbacks)
	}
	if b.lastOpts.IsoLevel != pgx.Serializable {
		t.Errorf("IsoLevel = %q, want serializable", b.lastOpts.IsoLevel)
	}
}

func TestTxRunner_RetriesSerializationFailure(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b, 3)
	calls := 0
	err := r.RunInTx(context.Background(), func(pgx.Tx) error {
		calls++
		if calls < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("RunInTx: %v", err)
	}
	if calls != 3 || b.commits != 1 || b.rollbacks != 2 {
		t.Errorf("calls=%d commits=%d rollbacks=%d", calls, b.commits, b.rollbacks)
	}
}

func TestTxRunner_GivesUpAfterMaxAttempts(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b, 3)
	calls := 0
	err := r.RunInTx(context.Background(), func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: "40P01"}
	})
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40P01" {
		t.Fatalf("want wrapped deadlock error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestTxRunner_DoesNotRetryLogicalErrors(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b, 3, "refresh_tokens_active_device_idx")
	sentinel := errors.New("rejected")
	calls := 0
	err := r.RunInTx(context.Background(), func(pgx.Tx) error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) || calls != 1 || b.rollbacks != 1 {
		t.Errorf("err=%v calls=%d rollbacks=%d", err, calls, b.rollbacks)
	}
}

func TestTxRunner_UniqueViolationRetriedOnlyForListedConstraint(t *testing.T) {
	b := &fakeBeginner{}
	r := NewTxRunner(b, 2, "refresh_tokens_active_device_idx")
	calls := 0
	_ = r.RunInTx(context.Background(), func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: "23505", ConstraintName: "refresh_tokens_active_device_idx"}
	})
	if calls != 2 {
		t.Errorf("listed constraint: calls = %d, want 2", calls)
	}
	calls = 0
	_ = r.RunInTx(context.Background(), func(pgx.Tx) error {
		calls++
		return &pgconn.PgError{Code: "23505", ConstraintName: "voters_email_key"}
	})
	if calls != 1 {
		t.Errorf("other constraint: calls = %d, want 1", calls)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "voters_email_key"}
	if !IsUniqueViolation(err, "voters_email_key") || !IsUniqueViolation(err, "") {
		t.Error("expected unique violation match")
	}
	if IsUniqueViolation(err, "other") || IsUniqueViolation(errors.New("x"), "") {
		t.Error("unexpected unique violation match")
	}
}
