package repository

import (
	"context"
	"errors"
	"time"

	"election-voting/auth/internal/refreshtoken/domain"
)

// ErrActiveDeviceConflict is returned by Create when the voter already has a
// non-revoked record for the same device.
var ErrActiveDeviceConflict = errors.New("active refresh token already exists for device")

// ActiveDeviceIndex is the partial unique index enforcing one live record per device.
const ActiveDeviceIndex = "refresh_tokens_active_device_idx"

// Store holds the refresh record operations. Outside WithinTx each call commits on its own.
type Store interface {
	// GetByID returns the record for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.RefreshToken, error)
	// GetByIDForUpdate is GetByID that also locks the row until the transaction ends.
	GetByIDForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error)
	Create(ctx context.Context, t *domain.RefreshToken) error
	SetTokenHash(ctx context.Context, id, tokenHash string) error
	// MarkUsed records the exchange and replaces the stored hash with retiredHash.
	MarkUsed(ctx context.Context, id string, usedAt time.Time, retiredHash string) error
	// Revoke revokes one record. Returns false if it was missing or already revoked.
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	// RevokeByDevice revokes every non-revoked record of voterID bound to ip and userAgent.
	RevokeByDevice(ctx context.Context, voterID, ip, userAgent string, at time.Time) (int64, error)
	// RevokeAllByVoter revokes every non-revoked record of voterID.
	RevokeAllByVoter(ctx context.Context, voterID string, at time.Time) (int64, error)
	// ListActiveByVoter returns the voter's non-revoked, unexpired records, newest first.
	ListActiveByVoter(ctx context.Context, voterID string, now time.Time) ([]*domain.RefreshToken, error)
}

// Repository defines persistence for refresh token records.
type Repository interface {
	Store
	// WithinTx runs fn against a transactional Store. Changes made through it are
	// committed only if fn returns nil.
	WithinTx(ctx context.Context, fn func(s Store) error) error
}
