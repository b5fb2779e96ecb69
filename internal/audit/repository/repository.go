package repository

import (
	"context"

	"election-voting/auth/internal/audit/domain"
)

// Repository defines persistence for audit logs. Entries are never updated or deleted.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	// List returns entries matching f, newest first.
	List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error)
}
