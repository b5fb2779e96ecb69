package domain

import (
	"time"

	devicedomain "election-voting/auth/internal/device/domain"
)

// RefreshToken is the server-side record behind one refresh token. Records are
// revoked, never deleted.
type RefreshToken struct {
	ID        string
	VoterID   string
	TokenHash string // SHA-256 hex of the raw token, or a pending/retired marker
	IPAddress string
	UserAgent string
	Revoked   bool
	RevokedAt *time.Time
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    *time.Time // set when the token was exchanged for a new session
}

// Binding returns the device the record was issued to.
func (t *RefreshToken) Binding() devicedomain.Binding {
	return devicedomain.Binding{IP: t.IPAddress, UserAgent: t.UserAgent}
}

// Expired reports whether the record is past its expiry at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// Active reports whether the record can still be exchanged at now.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && !t.Expired(now)
}
