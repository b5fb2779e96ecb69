package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"election-voting/auth/internal/db"
	"election-voting/auth/internal/voter/domain"
)

const voterColumns = `id, email, password_hash, is_admin, totp_secret, two_factor_enabled, created_at, updated_at`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns a voter repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// GetByID returns the voter for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Voter, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE id = $1`, id)
	return scanVoter(row)
}

// GetByEmail returns the voter with the given normalised email, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Voter, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+voterColumns+` FROM voters WHERE email = $1`, email)
	return scanVoter(row)
}

// Create persists the voter. The voter must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, v *domain.Voter) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO voters (`+voterColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.Email, v.PasswordHash, v.IsAdmin, v.TOTPSecret, v.TwoFactorEnabled, v.CreatedAt, v.UpdatedAt)
	if db.IsUniqueViolation(err, "voters_email_key") {
		return ErrEmailTaken
	}
	return err
}

// UpdatePasswordHash replaces the stored password hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE voters SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, at)
	return err
}

// SetTwoFactor writes the sealed TOTP secret and enabled flag in one statement.
func (r *PostgresRepository) SetTwoFactor(ctx context.Context, id string, sealedSecret *string, enabled bool, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE voters SET totp_secret = $2, two_factor_enabled = $3, updated_at = $4 WHERE id = $1`,
		id, sealedSecret, enabled, at)
	return err
}

func scanVoter(row pgx.Row) (*domain.Voter, error) {
	var v domain.Voter
	err := row.Scan(&v.ID, &v.Email, &v.PasswordHash, &v.IsAdmin, &v.TOTPSecret, &v.TwoFactorEnabled, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &v, nil
}
