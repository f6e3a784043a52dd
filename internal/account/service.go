package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
)

const (
	// MinPasswordLength applies to registration and reset.
	MinPasswordLength = 6
	// MaxPasswordBytes is the longest input bcrypt accepts.
	MaxPasswordBytes = 72
)

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return apperr.ErrWeakPassword
	}
	if len(pw) > MaxPasswordBytes {
		return apperr.InvalidArgument(fmt.Sprintf("password must be at most %d bytes long", MaxPasswordBytes))
	}
	return nil
}

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
	NeedsRehash(hash string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// NeedsRehash reports whether hash was produced with a cost other than b.Cost.
func (b BcryptHasher) NeedsRehash(hash string) bool {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	got, err := bcrypt.Cost([]byte(hash))
	return err != nil || got != cost
}

// Store is the persistence the service needs; AccountRepo and MemoryRepo satisfy it.
type Store interface {
	Create(ctx context.Context, a *entity.Account) error
	GetByEmail(ctx context.Context, email string) (*entity.Account, error)
	GetByID(ctx context.Context, id int64) (*entity.Account, error)
	UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error
	List(ctx context.Context, role access.Role) ([]entity.Summary, error)
	SummariesByIDs(ctx context.Context, ids []int64) ([]entity.Summary, error)
}

// RoleCodeVerifier checks privileged signup codes.
type RoleCodeVerifier interface {
	VerifyRoleCode(ctx context.Context, role access.Role, code string) error
}

// SessionRevoker drops every session of an account.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID int64) error
}

type IDSource interface {
	Next() int64
}

// Service orchestrates registration, authentication and account queries.
type Service struct {
	repo     Store
	hasher   PasswordHasher
	codes    RoleCodeVerifier
	sessions SessionRevoker
	ids      IDSource
	logger   *zap.SugaredLogger
	now      func() time.Time

	// compared against when the email is unknown so both paths cost a hash
	dummyHash string
}

func NewService(r Store, hasher PasswordHasher, codes RoleCodeVerifier, sessions SessionRevoker, ids IDSource, logger *zap.SugaredLogger) (*Service, error) {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	dummy, err := hasher.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &Service{
		repo:      r,
		hasher:    hasher,
		codes:     codes,
		sessions:  sessions,
		ids:       ids,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// RegisterInput carries the registration form.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     string
	RoleCode string
}

// Register creates an account. Privileged roles need a valid role code.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Summary, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.InvalidArgument("name is required")
	}
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(in.Password); err != nil {
		return nil, err
	}
	role, ok := access.ParseRole(in.Role)
	if !ok {
		return nil, apperr.InvalidArgument("unknown role")
	}
	if role.Privileged() {
		if s.codes == nil {
			return nil, apperr.ErrInvalidRoleCode
		}
		if err := s.codes.VerifyRoleCode(ctx, role, in.RoleCode); err != nil {
			s.logger.Debugw("role code rejected", "role", role, "email", email)
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	now := s.now().UTC()
	a := &entity.Account{
		ID:           s.ids.Next(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if errors.Is(err, accountrepo.ErrDuplicate) {
			return nil, apperr.ErrDuplicateAccount
		}
		return nil, apperr.Internal(err)
	}
	s.logger.Infow("account registered", "account_id", a.ID, "role", role)
	sum := a.Summary()
	return &sum, nil
}

// Login checks credentials. Unknown email and wrong password fail identically.
func (s *Service) Login(ctx context.Context, email, password string) (*entity.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, apperr.ErrInvalidCredentials
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			s.hasher.Verify(s.dummyHash, password)
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, apperr.Internal(err)
	}
	if !s.hasher.Verify(a.PasswordHash, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	if s.hasher.NeedsRehash(a.PasswordHash) {
		s.rehash(ctx, a, password)
	}
	return a, nil
}

// rehash upgrades a stored hash to the current cost. Failures are logged only;
// the login already succeeded.
func (s *Service) rehash(ctx context.Context, a *entity.Account, password string) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.Warnw("rehash password", "account_id", a.ID, "err", err)
		return
	}
	if err := s.repo.UpdatePassword(ctx, a.ID, hash, s.now().UTC()); err != nil {
		s.logger.Warnw("store rehashed password", "account_id", a.ID, "err", err)
		return
	}
	a.PasswordHash = hash
	s.logger.Debugw("password rehashed", "account_id", a.ID)
}

// RequestPasswordReset only confirms the email is registered.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.InvalidArgument("email is required")
	}
	if _, err := s.repo.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return apperr.ErrAccountNotFound
		}
		return apperr.Internal(err)
	}
	return nil
}

// ResetPassword replaces the credential and revokes every session of the account.
func (s *Service) ResetPassword(ctx context.Context, email, newPassword string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return apperr.InvalidArgument("email is required")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}
	a, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return apperr.ErrAccountNotFound
		}
		return apperr.Internal(err)
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	if err := s.repo.UpdatePassword(ctx, a.ID, hash, s.now().UTC()); err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return apperr.ErrAccountNotFound
		}
		return apperr.Internal(err)
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAll(ctx, a.ID); err != nil {
			return apperr.Internal(fmt.Errorf("revoke sessions: %w", err))
		}
	}
	s.logger.Infow("password reset", "account_id", a.ID)
	return nil
}

// Me returns the caller's own account.
func (s *Service) Me(ctx context.Context, p access.Principal) (*entity.Summary, error) {
	if err := access.Require(p, access.Anyone...); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, accountrepo.ErrNotFound) {
			return nil, apperr.ErrUnauthenticated
		}
		return nil, apperr.Internal(err)
	}
	sum := a.Summary()
	return &sum, nil
}

// ListAccounts is available to admins; role optionally filters the listing.
func (s *Service) ListAccounts(ctx context.Context, p access.Principal, role string) ([]entity.Summary, error) {
	if err := access.Require(p, access.Admins...); err != nil {
		return nil, err
	}
	var filter access.Role
	if strings.TrimSpace(role) != "" {
		r, ok := access.ParseRole(role)
		if !ok {
			return nil, apperr.InvalidArgument("unknown role")
		}
		filter = r
	}
	out, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// ListAdmins is available to superadmins only.
func (s *Service) ListAdmins(ctx context.Context, p access.Principal) ([]entity.Summary, error) {
	if err := access.Require(p, access.SuperAdmins...); err != nil {
		return nil, err
	}
	out, err := s.repo.List(ctx, access.RoleAdmin)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return out, nil
}

// Summaries resolves account ids for owner display. Unknown ids are absent
// from the result.
func (s *Service) Summaries(ctx context.Context, ids []int64) (map[int64]entity.Summary, error) {
	list, err := s.repo.SummariesByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	out := make(map[int64]entity.Summary, len(list))
	for _, sum := range list {
		out[sum.ID] = sum
	}
	return out, nil
}

// NormalizeEmail trims and lower-cases email and checks its basic shape.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.IndexByte(email, '@')
	if at <= 0 || at == len(email)-1 || strings.Count(email, "@") != 1 {
		return "", apperr.InvalidArgument("a valid email is required")
	}
	return email, nil
}
