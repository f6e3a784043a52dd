package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
)

// MemoryRepo is the in-process account store used with DATABASE_URL=memory.
type MemoryRepo struct {
	mu      sync.RWMutex
	byID    map[int64]*entity.Account
	byEmail map[string]int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: map[int64]*entity.Account{}, byEmail: map[string]int64{}}
}

func (r *MemoryRepo) Create(_ context.Context, a *entity.Account) error {
	key := strings.ToLower(a.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[key]; ok {
		return ErrDuplicate
	}
	cp := *a
	r.byID[a.ID] = &cp
	r.byEmail[key] = a.ID
	return nil
}

func (r *MemoryRepo) GetByEmail(_ context.Context, email string) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id int64) (*entity.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryRepo) UpdatePassword(_ context.Context, id int64, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	a.PasswordUpdatedAt = &at
	a.UpdatedAt = at
	return nil
}

func (r *MemoryRepo) List(_ context.Context, role access.Role) ([]entity.Summary, error) {
	r.mu.RLock()
	out := make([]entity.Summary, 0, len(r.byID))
	for _, a := range r.byID {
		if role == "" || a.Role == role {
			out = append(out, a.Summary())
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepo) SummariesByIDs(_ context.Context, ids []int64) ([]entity.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]entity.Summary, 0, len(ids))
	for _, id := range ids {
		if a, ok := r.byID[id]; ok {
			out = append(out, a.Summary())
		}
	}
	return out, nil
}
