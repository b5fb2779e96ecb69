package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"election-voting/auth/internal/voter/domain"
)

func TestMemoryRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	v := &domain.Voter{ID: "v1", Email: "a@b.co", PasswordHash: "h", CreatedAt: time.Now()}
	if err := r.Create(ctx, v); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := r.Create(ctx, &domain.Voter{ID: "v2", Email: "a@b.co", PasswordHash: "h"}); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate Create: want ErrEmailTaken, got %v", err)
	}
	got, _ := r.GetByEmail(ctx, "a@b.co")
	if got == nil || got.ID != "v1" {
		t.Fatalf("GetByEmail = %+v", got)
	}
	got.Email = "mutated"
	again, _ := r.GetByID(ctx, "v1")
	if again.Email != "a@b.co" {
		t.Error("repository returned a shared pointer")
	}
	if missing, err := r.GetByID(ctx, "nope"); missing != nil || err != nil {
		t.Errorf("GetByID missing = %v, %v", missing, err)
	}
}

func TestMemoryRepository_SetTwoFactor(t *testing.T) {
	ctx := context.Background()
	r := NewMemoryRepository()
	_ = r.Create(ctx, &domain.Voter{ID: "v1", Email: "a@b.co", PasswordHash: "h"})
	secret := "sealed"
	if err := r.SetTwoFactor(ctx, "v1", &secret, true, time.Now()); err != nil {
		t.Fatalf("SetTwoFactor: %v", err)
	}
	secret = "changed"
	got, _ := r.GetByID(ctx, "v1")
	if !got.TwoFactorEnabled || got.TOTPSecret == nil || *got.TOTPSecret != "sealed" {
		t.Errorf("after enable: %+v", got)
	}
	_ = r.SetTwoFactor(ctx, "v1", nil, false, time.Now())
	got, _ = r.GetByID(ctx, "v1")
	if got.TwoFactorEnabled || got.TOTPSecret != nil {
		t.Errorf("after disable: %+v", got)
	}
}
