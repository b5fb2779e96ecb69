package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"election-voting/auth/internal/refreshtoken/domain"
)

func newRecord(id, voter, ip, ua string, now time.Time) *domain.RefreshToken {
	return &domain.RefreshToken{
		ID: id, VoterID: voter, TokenHash: "h-" + id, IPAddress: ip, UserAgent: ua,
		ExpiresAt: now.Add(time.Hour), CreatedAt: now,
	}
}

func TestMemoryRepository_ActiveDeviceConstraint(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	r := NewMemoryRepository()
	if err := r.Create(ctx, newRecord("r1", "v1", "ip", "ua", now)); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, newRecord("r2", "v1", "ip", "ua", now)); !errors.Is(err, ErrActiveDeviceConflict) {
		t.Fatalf("second active record: want ErrActiveDeviceConflict, got %v", err)
	}
	if err := r.Create(ctx, newRecord("r3", "v1", "ip2", "ua", now)); err != nil {
		t.Fatalf("other device: %v", err)
	}
	n, _ := r.RevokeByDevice(ctx, "v1", "ip", "ua", now)
	if n != 1 {
		t.Errorf("RevokeByDevice = %d, want 1", n)
	}
	if err := r.Create(ctx, newRecord("r2", "v1", "ip", "ua", now)); err != nil {
		t.Errorf("Create after revoke: %v", err)
	}
}

func TestMemoryRepository_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	r := NewMemoryRepository()
	boom := errors.New("boom")
	err := r.WithinTx(ctx, func(s Store) error {
		if err := s.Create(ctx, newRecord("r1", "v1", "ip", "ua", now)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithinTx err = %v", err)
	}
	if got, _ := r.GetByID(ctx, "r1"); got != nil {
		t.Error("record created in failed tx is visible")
	}

	err = r.WithinTx(ctx, func(s Store) error {
		return s.Create(ctx, newRecord("r1", "v1", "ip", "ua", now))
	})
	if err != nil {
		t.Fatalf("WithinTx: %v", err)
	}
	if got, _ := r.GetByID(ctx, "r1"); got == nil {
		t.Error("committed record missing")
	}
}

func TestMemoryRepository_WithinTxHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := NewMemoryRepository()
	err := r.WithinTx(ctx, func(s Store) error {
		cancel()
		return s.Create(ctx, newRecord("r1", "v1", "ip", "ua", time.Now()))
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(r.All()) != 0 {
		t.Error("cancelled tx was committed")
	}
}

func TestMemoryRepository_MarkUsedRevokeList(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	r := NewMemoryRepository()
	_ = r.Create(ctx, newRecord("r1", "v1", "ip", "ua", now))
	_ = r.Create(ctx, newRecord("r2", "v1", "ip2", "ua", now.Add(time.Second)))
	_ = r.Create(ctx, newRecord("r3", "v2", "ip", "ua", now))

	if err := r.MarkUsed(ctx, "r1", now, "rotated:x"); err != nil {
		t.Fatalf("MarkUsed: %v", err)
	}
	got, _ := r.GetByID(ctx, "r1")
	if got.UsedAt == nil || got.TokenHash != "rotated:x" {
		t.Errorf("after MarkUsed: %+v", got)
	}

	list, _ := r.ListActiveByVoter(ctx, "v1", now)
	if len(list) != 2 || list[0].ID != "r2" {
		t.Errorf("ListActiveByVoter = %v", list)
	}

	ok, _ := r.Revoke(ctx, "r1", now)
	again, _ := r.Revoke(ctx, "r1", now)
	if !ok || again {
		t.Errorf("Revoke = %v then %v, want true then false", ok, again)
	}

	n, _ := r.RevokeAllByVoter(ctx, "v1", now)
	if n != 1 {
		t.Errorf("RevokeAllByVoter = %d, want 1", n)
	}
	other, _ := r.GetByID(ctx, "r3")
	if other.Revoked {
		t.Error("another voter's record was revoked")
	}
}
