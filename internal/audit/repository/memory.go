package repository

import (
	"context"
	"sort"
	"sync"

	"election-voting/auth/internal/audit/domain"
)

// MemoryRepository keeps audit entries in process. Used without a database and in tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *a
	r.entries = append(r.entries, &c)
	return nil
}

func (r *MemoryRepository) List(ctx context.Context, f domain.Filter) ([]*domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*domain.AuditLog
	for _, e := range r.entries {
		if f.VoterID != "" && (e.VoterID == nil || *e.VoterID != f.VoterID) {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		c := *e
		matched = append(matched, &c)
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if int(f.Offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && int(f.Limit) < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

// Actions returns the recorded actions in insertion order. Intended for tests.
func (r *MemoryRepository) Actions() []domain.Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Action, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Action
	}
	return out
}

// Entries returns copies of the recorded entries in insertion order. Intended for tests.
func (r *MemoryRepository) Entries() []*domain.AuditLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domain.AuditLog, len(r.entries))
	for i, e := range r.entries {
		c := *e
		out[i] = &c
	}
	return out
}
