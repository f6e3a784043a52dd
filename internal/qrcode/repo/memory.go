package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
)

// MemoryRepo keeps codes in process. The mutex makes Claim a compare-and-set.
type MemoryRepo struct {
	mu      sync.RWMutex
	byValue map[string]*entity.QRCode
	byID    map[int64]string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byValue: map[string]*entity.QRCode{}, byID: map[int64]string{}}
}

func clone(c *entity.QRCode) *entity.QRCode {
	cp := *c
	if c.ClaimedBy != nil {
		v := *c.ClaimedBy
		cp.ClaimedBy = &v
	}
	if c.Purpose != nil {
		v := *c.Purpose
		cp.Purpose = &v
	}
	if c.ClaimedAt != nil {
		v := *c.ClaimedAt
		cp.ClaimedAt = &v
	}
	return &cp
}

func (r *MemoryRepo) InsertBatch(_ context.Context, codes []*entity.QRCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(codes))
	for _, c := range codes {
		if _, ok := r.byValue[c.Value]; ok {
			return ErrDuplicate
		}
		if _, ok := seen[c.Value]; ok {
			return ErrDuplicate
		}
		seen[c.Value] = struct{}{}
	}
	for _, c := range codes {
		r.byValue[c.Value] = clone(c)
		r.byID[c.ID] = c.Value
	}
	return nil
}

func (r *MemoryRepo) ExistingValues(_ context.Context, values []string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []string{}
	for _, v := range values {
		if _, ok := r.byValue[v]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *MemoryRepo) GetByValue(_ context.Context, value string) (*entity.QRCode, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(c), nil
}

func (r *MemoryRepo) ListAll(_ context.Context) ([]*entity.QRCode, error) {
	r.mu.RLock()
	out := make([]*entity.QRCode, 0, len(r.byValue))
	for _, c := range r.byValue {
		out = append(out, clone(c))
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

func (r *MemoryRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	delete(r.byValue, v)
	return nil
}

func (r *MemoryRepo) Claim(_ context.Context, value string, accountID int64, purpose string, at time.Time) (*entity.QRCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	if c.Status != entity.StatusUnclaimed || c.ClaimedBy != nil {
		return nil, ErrAlreadyClaimed
	}
	c.Status = entity.StatusClaimed
	c.ClaimedBy = &accountID
	c.Purpose = &purpose
	c.ClaimedAt = &at
	return clone(c), nil
}
