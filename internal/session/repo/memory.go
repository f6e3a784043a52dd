package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session/entity"
)

// MemoryRepo keeps sessions in process.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]entity.Session
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]entity.Session{}}
}

func (r *MemoryRepo) Save(_ context.Context, s *entity.Session) error {
	r.mu.Lock()
	r.rows[s.ID] = *s
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) Get(_ context.Context, id string) (*entity.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	delete(r.rows, id)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) DeleteByAccount(_ context.Context, accountID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.rows {
		if s.AccountID == accountID {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *MemoryRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.rows {
		if s.ExpiresAt.Before(now) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}
