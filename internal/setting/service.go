package setting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/repo"
)

const (
	// MinRoleCodeLength applies to rotated codes.
	MinRoleCodeLength = 8
	// MaxRoleCodeBytes is the longest code bcrypt can hash.
	MaxRoleCodeBytes = 72
)

// Store persists settings rows.
type Store interface {
	GetByID(ctx context.Context, id string) (*entity.Setting, error)
	ListByCategory(ctx context.Context, category string) ([]*entity.Setting, error)
	InsertIfAbsent(ctx context.Context, s *entity.Setting) (bool, error)
	Upsert(ctx context.Context, s *entity.Setting) error
}

// Config holds role codes used to seed an empty store.
type Config struct {
	RoleCodes map[access.Role]string
}

// ConfigFromEnv reads ADMIN_SIGNUP_CODE and SUPERADMIN_SIGNUP_CODE.
func ConfigFromEnv() Config {
	return Config{RoleCodes: map[access.Role]string{
		access.RoleAdmin:      os.Getenv("ADMIN_SIGNUP_CODE"),
		access.RoleSuperAdmin: os.Getenv("SUPERADMIN_SIGNUP_CODE"),
	}}
}

// Service manages role signup codes kept in the settings table.
type Service struct {
	repo   Store
	logger *zap.SugaredLogger
	cost   int
	now    func() time.Time
}

// NewService constructs a Service with the provided repository.
func NewService(r Store, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{repo: r, logger: logger, cost: bcrypt.DefaultCost, now: time.Now}
}

// RoleCodeID is the settings id holding the code of role.
func RoleCodeID(role access.Role) string {
	return entity.CategoryRoleCode + "." + string(role)
}

// SeedRoleCodes stores the configured codes for roles that have none yet.
// Existing rows are left untouched so rotated codes survive restarts.
func (s *Service) SeedRoleCodes(ctx context.Context, cfg Config) error {
	for _, role := range access.AllRoles() {
		if !role.Privileged() {
			continue
		}
		code := strings.TrimSpace(cfg.RoleCodes[role])
		if code == "" {
			s.logger.Warnw("no signup code configured", "role", role)
			continue
		}
		if len(code) > MaxRoleCodeBytes {
			return fmt.Errorf("%s signup code is longer than %d bytes", role, MaxRoleCodeBytes)
		}
		row, err := s.roleCodeRow(role, code, 0)
		if err != nil {
			return err
		}
		inserted, err := s.repo.InsertIfAbsent(ctx, row)
		if err != nil {
			return fmt.Errorf("seed %s code: %w", role, err)
		}
		if inserted {
			s.logger.Infow("signup code seeded", "role", role)
		}
	}
	return nil
}

// VerifyRoleCode fails with InvalidRoleCode unless code matches the stored
// code for role.
func (s *Service) VerifyRoleCode(ctx context.Context, role access.Role, code string) error {
	if !role.Privileged() || code == "" {
		return apperr.ErrInvalidRoleCode
	}
	row, err := s.repo.GetByID(ctx, RoleCodeID(role))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apperr.ErrInvalidRoleCode
		}
		return apperr.Internal(err)
	}
	var rc entity.RoleCode
	if err := json.Unmarshal(row.Metadata, &rc); err != nil {
		return apperr.Internal(fmt.Errorf("decode %s code: %w", role, err))
	}
	if rc.Hash == "" {
		return apperr.ErrInvalidRoleCode
	}
	if bcrypt.CompareHashAndPassword([]byte(rc.Hash), []byte(code)) != nil {
		return apperr.ErrInvalidRoleCode
	}
	return nil
}

// RotateRoleCode replaces the signup code of a privileged role.
func (s *Service) RotateRoleCode(ctx context.Context, p access.Principal, role string, code string) error {
	if err := access.Require(p, access.SuperAdmins...); err != nil {
		return err
	}
	r, ok := access.ParseRole(role)
	if !ok || !r.Privileged() {
		return apperr.InvalidArgument("role must be admin or superadmin")
	}
	code = strings.TrimSpace(code)
	if len(code) < MinRoleCodeLength {
		return apperr.InvalidArgument(fmt.Sprintf("code must be at least %d characters long", MinRoleCodeLength))
	}
	if len(code) > MaxRoleCodeBytes {
		return apperr.InvalidArgument(fmt.Sprintf("code must be at most %d bytes long", MaxRoleCodeBytes))
	}
	row, err := s.roleCodeRow(r, code, p.AccountID)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.repo.Upsert(ctx, row); err != nil {
		return apperr.Internal(err)
	}
	s.logger.Infow("signup code rotated", "role", r, "by", p.AccountID)
	return nil
}

// ListRoleCodes reports which privileged roles have a code.
func (s *Service) ListRoleCodes(ctx context.Context, p access.Principal) ([]entity.RoleCodeStatus, error) {
	if err := access.Require(p, access.SuperAdmins...); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByCategory(ctx, entity.CategoryRoleCode)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	byID := make(map[string]*entity.Setting, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	out := []entity.RoleCodeStatus{}
	for _, role := range access.AllRoles() {
		if !role.Privileged() {
			continue
		}
		st := entity.RoleCodeStatus{Role: string(role)}
		if row, ok := byID[RoleCodeID(role)]; ok {
			st.Configured = true
			var meta entity.RecordMeta
			if err := json.Unmarshal(row.RecordMeta, &meta); err == nil && !meta.UpdatedAt.IsZero() {
				st.UpdatedAt = &meta.UpdatedAt
				st.UpdatedBy = meta.UpdatedBy
			}
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Service) roleCodeRow(role access.Role, code string, by int64) (*entity.Setting, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash %s code: %w", role, err)
	}
	metadata, err := json.Marshal(entity.RoleCode{Hash: string(hash)})
	if err != nil {
		return nil, err
	}
	recordMeta, err := json.Marshal(entity.RecordMeta{UpdatedAt: s.now().UTC(), UpdatedBy: by})
	if err != nil {
		return nil, err
	}
	return entity.NewSetting(RoleCodeID(role), "", "", entity.CategoryRoleCode, recordMeta, metadata), nil
}
