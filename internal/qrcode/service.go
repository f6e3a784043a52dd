package qrcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	accountentity "github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
	qrrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

const (
	// MaxBatch bounds generate and save requests.
	MaxBatch = 100
	// maxValueAttempts bounds regeneration of a single value.
	maxValueAttempts = 16
	// maxBatchAttempts bounds whole-batch retries after a unique violation.
	maxBatchAttempts = 3
)

var errValuesExhausted = errors.New("could not produce unique qr code values")

// Store persists QR codes. QRCodeRepo and MemoryRepo satisfy it.
type Store interface {
	InsertBatch(ctx context.Context, codes []*entity.QRCode) error
	ExistingValues(ctx context.Context, values []string) ([]string, error)
	GetByValue(ctx context.Context, value string) (*entity.QRCode, error)
	ListAll(ctx context.Context) ([]*entity.QRCode, error)
	Delete(ctx context.Context, id int64) error
	Claim(ctx context.Context, value string, accountID int64, purpose string, at time.Time) (*entity.QRCode, error)
}

// OwnerDirectory resolves claiming accounts for display.
type OwnerDirectory interface {
	Summaries(ctx context.Context, ids []int64) (map[int64]accountentity.Summary, error)
}

type IDSource interface {
	Next() int64
}

// Service is the QR registry plus the claim state machine.
type Service struct {
	repo   Store
	owners OwnerDirectory
	ids    IDSource
	logger *zap.SugaredLogger
	now    func() time.Time
	values func() (string, error)
}

func NewService(r Store, owners OwnerDirectory, ids IDSource, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		repo:   r,
		owners: owners,
		ids:    ids,
		logger: logger,
		now:    time.Now,
		values: utilities.NewCodeValue,
	}
}

// Generate creates count new unclaimed codes.
func (s *Service) Generate(ctx context.Context, p access.Principal, count int) ([]entity.View, error) {
	if err := access.Require(p, access.Admins...); err != nil {
		return nil, err
	}
	if count <= 0 || count > MaxBatch {
		return nil, apperr.InvalidArgument(fmt.Sprintf("count must be between 1 and %d", MaxBatch))
	}

	for attempt := 1; attempt <= maxBatchAttempts; attempt++ {
		values, err := s.uniqueValues(ctx, count)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		now := s.now().UTC()
		codes := make([]*entity.QRCode, 0, count)
		for _, v := range values {
			codes = append(codes, &entity.QRCode{ID: s.ids.Next(), Value: v, Status: entity.StatusUnclaimed, CreatedAt: now})
		}
		err = s.repo.InsertBatch(ctx, codes)
		if err == nil {
			s.logger.Infow("qr codes generated", "count", count, "by", p.AccountID)
			return views(codes), nil
		}
		if !errors.Is(err, qrrepo.ErrDuplicate) {
			return nil, apperr.Internal(err)
		}
		s.logger.Warnw("qr code batch collided, regenerating", "attempt", attempt)
	}
	return nil, apperr.Internal(errValuesExhausted)
}

// uniqueValues returns count values distinct from each other and from the
// store. Each slot is regenerated at most maxValueAttempts times.
func (s *Service) uniqueValues(ctx context.Context, count int) ([]string, error) {
	taken := make(map[string]struct{}, count)
	out := make([]string, 0, count)
	for round := 0; len(out) < count; round++ {
		if round == maxValueAttempts {
			return nil, errValuesExhausted
		}
		need := count - len(out)
		candidates := make([]string, 0, need)
		for i := 0; i < need; i++ {
			v, err := s.nextUnseen(taken)
			if err != nil {
				return nil, err
			}
			taken[v] = struct{}{}
			candidates = append(candidates, v)
		}
		existing, err := s.repo.ExistingValues(ctx, candidates)
		if err != nil {
			return nil, err
		}
		clash := make(map[string]struct{}, len(existing))
		for _, v := range existing {
			clash[v] = struct{}{}
		}
		for _, v := range candidates {
			if _, ok := clash[v]; !ok {
				out = append(out, v)
			}
		}
	}
	return out, nil
}

func (s *Service) nextUnseen(taken map[string]struct{}) (string, error) {
	for i := 0; i < maxValueAttempts; i++ {
		v, err := s.values()
		if err != nil {
			return "", err
		}
		if _, ok := taken[v]; !ok {
			return v, nil
		}
	}
	return "", errValuesExhausted
}

// SaveItem is one client-produced code.
type SaveItem struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Save persists a client-produced batch, all or nothing.
func (s *Service) Save(ctx context.Context, p access.Principal, items []SaveItem) ([]entity.View, error) {
	if err := access.Require(p, access.Admins...); err != nil {
		return nil, err
	}
	if len(items) == 0 || len(items) > MaxBatch {
		return nil, apperr.InvalidArgument(fmt.Sprintf("qrCodes must hold between 1 and %d entries", MaxBatch))
	}
	now := s.now().UTC()
	seen := make(map[string]struct{}, len(items))
	codes := make([]*entity.QRCode, 0, len(items))
	values := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it.Value)
		if !utilities.IsCodeValue(v) {
			return nil, apperr.InvalidArgument(fmt.Sprintf("invalid qr code value %q", it.Value))
		}
		if _, ok := seen[v]; ok {
			return nil, apperr.InvalidArgument(fmt.Sprintf("duplicate qr code value %s", v))
		}
		seen[v] = struct{}{}
		created := now
		if ts := strings.TrimSpace(it.Timestamp); ts != "" {
			t, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return nil, apperr.InvalidArgument(fmt.Sprintf("invalid timestamp %q", it.Timestamp))
			}
			created = t.UTC()
		}
		codes = append(codes, &entity.QRCode{ID: s.ids.Next(), Value: v, Status: entity.StatusUnclaimed, CreatedAt: created})
		values = append(values, v)
	}

	existing, err := s.repo.ExistingValues(ctx, values)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if len(existing) > 0 {
		return nil, apperr.InvalidArgument(fmt.Sprintf("qr code value %s already exists", existing[0]))
	}
	if err := s.repo.InsertBatch(ctx, codes); err != nil {
		if errors.Is(err, qrrepo.ErrDuplicate) {
			return nil, apperr.InvalidArgument("qr code value already exists")
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Infow("qr codes saved", "count", len(codes), "by", p.AccountID)
	return views(codes), nil
}

// ListAll returns every code with its owner resolved.
func (s *Service) ListAll(ctx context.Context, p access.Principal) ([]entity.View, error) {
	if err := access.Require(p, access.Admins...); err != nil {
		return nil, err
	}
	codes, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return s.withOwners(ctx, codes)
}

// GetByValue looks a code up for any signed-in caller; it is not claim-gated.
func (s *Service) GetByValue(ctx context.Context, p access.Principal, value string) (*entity.View, error) {
	if err := access.Require(p, access.Anyone...); err != nil {
		return nil, err
	}
	value = strings.TrimSpace(value)
	if !utilities.IsCodeValue(value) {
		return nil, apperr.ErrNotFound
	}
	c, err := s.repo.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, qrrepo.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Internal(err)
	}
	out, err := s.withOwners(ctx, []*entity.QRCode{c})
	if err != nil {
		return nil, err
	}
	v := out[0]
	if !p.Role.Privileged() {
		v = v.WithoutOwnerEmail()
	}
	return &v, nil
}

// Delete removes a code in either state.
func (s *Service) Delete(ctx context.Context, p access.Principal, id int64) error {
	if err := access.Require(p, access.Admins...); err != nil {
		return err
	}
	if id <= 0 {
		return apperr.ErrNotFound
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, qrrepo.ErrNotFound) {
			return apperr.ErrNotFound
		}
		return apperr.Internal(err)
	}
	s.logger.Infow("qr code deleted", "id", id, "by", p.AccountID)
	return nil
}

func (s *Service) withOwners(ctx context.Context, codes []*entity.QRCode) ([]entity.View, error) {
	ids := make([]int64, 0)
	for _, c := range codes {
		if c.ClaimedBy != nil {
			ids = append(ids, *c.ClaimedBy)
		}
	}
	var owners map[int64]accountentity.Summary
	if len(ids) > 0 && s.owners != nil {
		var err error
		owners, err = s.owners.Summaries(ctx, ids)
		if err != nil {
			return nil, apperr.Internal(err)
		}
	}
	out := make([]entity.View, 0, len(codes))
	for _, c := range codes {
		var owner *entity.Owner
		if c.ClaimedBy != nil {
			if sum, ok := owners[*c.ClaimedBy]; ok {
				owner = &entity.Owner{ID: sum.ID, Name: sum.Name, Email: sum.Email}
			}
		}
		out = append(out, c.View(owner))
	}
	return out, nil
}

func views(codes []*entity.QRCode) []entity.View {
	out := make([]entity.View, 0, len(codes))
	for _, c := range codes {
		out = append(out, c.View(nil))
	}
	return out
}
