package repository

import (
	"context"
	"errors"
	"time"

	"election-voting/auth/internal/voter/domain"
)

// ErrEmailTaken is returned by Create when the email is already registered.
var ErrEmailTaken = errors.New("email already registered")

// Repository defines persistence for voters.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Voter, error)
	GetByEmail(ctx context.Context, email string) (*domain.Voter, error)
	// Create inserts v. Returns ErrEmailTaken on a duplicate email.
	Create(ctx context.Context, v *domain.Voter) error
	UpdatePasswordHash(ctx context.Context, id, passwordHash string, at time.Time) error
	// SetTwoFactor stores the sealed secret and flag together; a nil secret disables 2FA.
	SetTwoFactor(ctx context.Context, id string, sealedSecret *string, enabled bool, at time.Time) error
}
