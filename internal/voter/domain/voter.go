package domain

import (
	"errors"
	"time"
)

// Voter is an account that can sign in. Voters are never hard-deleted.
type Voter struct {
	ID           string
	Email        string // trimmed and lower-cased; unique
	PasswordHash string
	// IsAdmin is set only by the seed tool; registration always creates non-admins.
	IsAdmin bool
	// TOTPSecret is the AES-GCM sealed base32 secret; nil until 2FA is confirmed.
	TOTPSecret       *string
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Validate validates the voter for persistence. Returns an error describing the first validation failure.
func (v *Voter) Validate() error {
	if v.ID == "" {
		return errors.New("id is required")
	}
	if v.Email == "" {
		return errors.New("email is required")
	}
	if v.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if v.TwoFactorEnabled && (v.TOTPSecret == nil || *v.TOTPSecret == "") {
		return errors.New("two-factor enabled without a secret")
	}
	return nil
}

// Profile is the voter view safe to return to clients.
type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	IsAdmin          bool      `json:"isAdmin"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Profile returns the client-safe view of v.
func (v *Voter) Profile() Profile {
	return Profile{
		ID:               v.ID,
		Email:            v.Email,
		IsAdmin:          v.IsAdmin,
		TwoFactorEnabled: v.TwoFactorEnabled,
		CreatedAt:        v.CreatedAt,
	}
}
