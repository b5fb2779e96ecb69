package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"election-voting/auth/internal/audit/domain"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository returns an audit log repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Create appends the entry.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	meta, err := json.Marshal(metadataOrEmpty(a.Metadata))
	if err != nil {
		return fmt.Errorf("audit: encoding metadata: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO audit_logs (id, voter_id, action, ip_address, user_agent, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		a.ID, a.VoterID, string(a.Action), a.IP, a.UserAgent, meta, a.CreatedAt)
	return err
}

// List returns entries matching f, newest first.
func (r *PostgresRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	var (
		where []string
		args  []any
	)
	if f.VoterID != "" {
		args = append(args, f.VoterID)
		where = append(where, fmt.Sprintf("voter_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	q := `SELECT id, voter_id, action, ip_address, user_agent, metadata, created_at FROM audit_logs`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a      domain.AuditLog
			action string
			meta   []byte
		)
		if err := rows.Scan(&a.ID, &a.VoterID, &action, &a.IP, &a.UserAgent, &meta, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Action = domain.Action(action)
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &a.Metadata); err != nil {
				return nil, fmt.Errorf("audit: decoding metadata: %w", err)
			}
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func metadataOrEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
