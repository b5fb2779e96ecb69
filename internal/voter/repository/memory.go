package repository

import (
	"context"
	"sync"
	"time"

	"election-voting/auth/internal/voter/domain"
)

// MemoryRepository is an in-process voter store used when no DATABASE_URL is
// configured and in tests. Returned voters are copies.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Voter
	byEmail map[string]string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[string]*domain.Voter),
		byEmail: make(map[string]string),
	}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyVoter(r.byID[id]), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Voter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyVoter(r.byID[r.byEmail[email]]), nil
}

func (r *MemoryRepository) Create(ctx context.Context, v *domain.Voter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[v.Email]; ok {
		return ErrEmailTaken
	}
	r.byID[v.ID] = copyVoter(v)
	r.byEmail[v.Email] = v.ID
	return nil
}

func (r *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byID[id]; ok {
		v.PasswordHash = passwordHash
		v.UpdatedAt = at
	}
	return nil
}

func (r *MemoryRepository) SetTwoFactor(ctx context.Context, id string, sealedSecret *string, enabled bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.byID[id]; ok {
		if sealedSecret != nil {
			s := *sealedSecret
			sealedSecret = &s
		}
		v.TOTPSecret = sealedSecret
		v.TwoFactorEnabled = enabled
		v.UpdatedAt = at
	}
	return nil
}

func copyVoter(v *domain.Voter) *domain.Voter {
	if v == nil {
		return nil
	}
	c := *v
	if v.TOTPSecret != nil {
		s := *v.TOTPSecret
		c.TOTPSecret = &s
	}
	return &c
}
