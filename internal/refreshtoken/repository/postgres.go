package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"election-voting/auth/internal/db"
	"election-voting/auth/internal/refreshtoken/domain"
)

const refreshColumns = `id, voter_id, token_hash, ip_address, user_agent, revoked, revoked_at, expires_at, created_at, used_at`

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresRepository struct {
	pgStore
	tx *db.TxRunner
}

// NewPostgresRepository returns a refresh token repository backed by pool.
// Transactions are serializable and retried up to maxAttempts times on conflicts.
func NewPostgresRepository(pool *pgxpool.Pool, maxAttempts int) *PostgresRepository {
	return &PostgresRepository{
		pgStore: pgStore{q: pool},
		tx:      db.NewTxRunner(pool, maxAttempts, ActiveDeviceIndex),
	}
}

// WithinTx runs fn in a serializable transaction.
func (r *PostgresRepository) WithinTx(ctx context.Context, fn func(s Store) error) error {
	return r.tx.RunInTx(ctx, func(tx pgx.Tx) error {
		return fn(&pgStore{q: tx})
	})
}

type pgStore struct {
	q querier
}

func (s *pgStore) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return scanRefreshToken(s.q.QueryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1`, id))
}

func (s *pgStore) GetByIDForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return scanRefreshToken(s.q.QueryRow(ctx, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id = $1 FOR UPDATE`, id))
}

func (s *pgStore) Create(ctx context.Context, t *domain.RefreshToken) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO refresh_tokens (`+refreshColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.VoterID, t.TokenHash, t.IPAddress, t.UserAgent, t.Revoked, t.RevokedAt, t.ExpiresAt, t.CreatedAt, t.UsedAt)
	if db.IsUniqueViolation(err, ActiveDeviceIndex) {
		// Keep the pg error in the chain so the tx runner can retry it.
		return errors.Join(ErrActiveDeviceConflict, err)
	}
	return err
}

func (s *pgStore) SetTokenHash(ctx context.Context, id, tokenHash string) error {
	_, err := s.q.Exec(ctx, `UPDATE refresh_tokens SET token_hash = $2 WHERE id = $1`, id, tokenHash)
	return err
}

func (s *pgStore) MarkUsed(ctx context.Context, id string, usedAt time.Time, retiredHash string) error {
	_, err := s.q.Exec(ctx,
		`UPDATE refresh_tokens SET used_at = $2, token_hash = $3 WHERE id = $1`,
		id, usedAt, retiredHash)
	return err
}

func (s *pgStore) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1 AND revoked = FALSE`,
		id, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *pgStore) RevokeByDevice(ctx context.Context, voterID, ip, userAgent string, at time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $4
		 WHERE voter_id = $1 AND ip_address = $2 AND user_agent = $3 AND revoked = FALSE`,
		voterID, ip, userAgent, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) RevokeAllByVoter(ctx context.Context, voterID string, at time.Time) (int64, error) {
	tag, err := s.q.Exec(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE voter_id = $1 AND revoked = FALSE`,
		voterID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) ListActiveByVoter(ctx context.Context, voterID string, now time.Time) ([]*domain.RefreshToken, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+refreshColumns+` FROM refresh_tokens
		 WHERE voter_id = $1 AND revoked = FALSE AND expires_at > $2
		 ORDER BY created_at DESC`,
		voterID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.RefreshToken
	for rows.Next() {
		t, err := scanRefreshToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanRefreshToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(&t.ID, &t.VoterID, &t.TokenHash, &t.IPAddress, &t.UserAgent, &t.Revoked, &t.RevokedAt, &t.ExpiresAt, &t.CreatedAt, &t.UsedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
