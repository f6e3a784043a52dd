package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/entity"
)

// MemoryRepo keeps settings in process.
type MemoryRepo struct {
	mu   sync.RWMutex
	rows map[string]entity.Setting
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]entity.Setting{}}
}

func (r *MemoryRepo) GetByID(_ context.Context, id string) (*entity.Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepo) ListByCategory(_ context.Context, category string) ([]*entity.Setting, error) {
	r.mu.RLock()
	out := []*entity.Setting{}
	for _, s := range r.rows {
		if s.Category == category {
			cp := s
			out = append(out, &cp)
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) InsertIfAbsent(_ context.Context, s *entity.Setting) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rows[s.ID]; ok {
		return false, nil
	}
	r.rows[s.ID] = *s
	return true, nil
}

func (r *MemoryRepo) Upsert(_ context.Context, s *entity.Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.rows[s.ID]; ok {
		cur.RecordMeta = s.RecordMeta
		cur.Metadata = s.Metadata
		r.rows[s.ID] = cur
		return nil
	}
	r.rows[s.ID] = *s
	return nil
}
