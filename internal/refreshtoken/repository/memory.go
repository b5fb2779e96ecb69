package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"election-voting/auth/internal/refreshtoken/domain"
)

// MemoryRepository is an in-process refresh token store used when no DATABASE_URL
// is configured and in tests. Transactions are serialised by a single mutex and
// work on a copy that replaces the live map only on success.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]*domain.RefreshToken
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.RefreshToken)}
}

// WithinTx runs fn against a snapshot and commits it if fn returns nil.
func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(s Store) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := make(map[string]*domain.RefreshToken, len(r.records))
	for id, t := range r.records {
		snap[id] = copyToken(t)
	}
	if err := fn(&memStore{records: snap}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r.records = snap
	return nil
}

// All returns copies of every record. Intended for tests and diagnostics.
func (r *MemoryRepository) All() []*domain.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.RefreshToken, 0, len(r.records))
	for _, t := range r.records {
		out = append(out, copyToken(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Update applies fn to the stored record with id. Intended for tests that need
// to age or tamper with a record.
func (r *MemoryRepository) Update(id string, fn func(t *domain.RefreshToken)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.records[id]; ok {
		fn(t)
	}
}

func (r *MemoryRepository) store() *memStore { return &memStore{records: r.records} }

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().GetByID(ctx, id)
}

func (r *MemoryRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return r.GetByID(ctx, id)
}

func (r *MemoryRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().Create(ctx, t)
}

func (r *MemoryRepository) SetTokenHash(ctx context.Context, id, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().SetTokenHash(ctx, id, tokenHash)
}

func (r *MemoryRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time, retiredHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().MarkUsed(ctx, id, usedAt, retiredHash)
}

func (r *MemoryRepository) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().Revoke(ctx, id, at)
}

func (r *MemoryRepository) RevokeByDevice(ctx context.Context, voterID, ip, userAgent string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().RevokeByDevice(ctx, voterID, ip, userAgent, at)
}

func (r *MemoryRepository) RevokeAllByVoter(ctx context.Context, voterID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().RevokeAllByVoter(ctx, voterID, at)
}

func (r *MemoryRepository) ListActiveByVoter(ctx context.Context, voterID string, now time.Time) ([]*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.store().ListActiveByVoter(ctx, voterID, now)
}

// memStore implements Store over a map; callers hold the repository lock.
type memStore struct {
	records map[string]*domain.RefreshToken
}

func (s *memStore) GetByID(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return copyToken(s.records[id]), nil
}

func (s *memStore) GetByIDForUpdate(ctx context.Context, id string) (*domain.RefreshToken, error) {
	return s.GetByID(ctx, id)
}

func (s *memStore) Create(ctx context.Context, t *domain.RefreshToken) error {
	if !t.Revoked {
		for _, existing := range s.records {
			if !existing.Revoked && existing.VoterID == t.VoterID &&
				existing.IPAddress == t.IPAddress && existing.UserAgent == t.UserAgent {
				return ErrActiveDeviceConflict
			}
		}
	}
	s.records[t.ID] = copyToken(t)
	return nil
}

func (s *memStore) SetTokenHash(ctx context.Context, id, tokenHash string) error {
	if t, ok := s.records[id]; ok {
		t.TokenHash = tokenHash
	}
	return nil
}

func (s *memStore) MarkUsed(ctx context.Context, id string, usedAt time.Time, retiredHash string) error {
	if t, ok := s.records[id]; ok {
		u := usedAt
		t.UsedAt = &u
		t.TokenHash = retiredHash
	}
	return nil
}

func (s *memStore) Revoke(ctx context.Context, id string, at time.Time) (bool, error) {
	t, ok := s.records[id]
	if !ok || t.Revoked {
		return false, nil
	}
	revoke(t, at)
	return true, nil
}

func (s *memStore) RevokeByDevice(ctx context.Context, voterID, ip, userAgent string, at time.Time) (int64, error) {
	var n int64
	for _, t := range s.records {
		if !t.Revoked && t.VoterID == voterID && t.IPAddress == ip && t.UserAgent == userAgent {
			revoke(t, at)
			n++
		}
	}
	return n, nil
}

func (s *memStore) RevokeAllByVoter(ctx context.Context, voterID string, at time.Time) (int64, error) {
	var n int64
	for _, t := range s.records {
		if !t.Revoked && t.VoterID == voterID {
			revoke(t, at)
			n++
		}
	}
	return n, nil
}

func (s *memStore) ListActiveByVoter(ctx context.Context, voterID string, now time.Time) ([]*domain.RefreshToken, error) {
	var out []*domain.RefreshToken
	for _, t := range s.records {
		if t.VoterID == voterID && t.Active(now) {
			out = append(out, copyToken(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func revoke(t *domain.RefreshToken, at time.Time) {
	a := at
	t.Revoked = true
	t.RevokedAt = &a
}

func copyToken(t *domain.RefreshToken) *domain.RefreshToken {
	if t == nil {
		return nil
	}
	c := *t
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		c.RevokedAt = &v
	}
	if t.UsedAt != nil {
		v := *t.UsedAt
		c.UsedAt = &v
	}
	return &c
}
