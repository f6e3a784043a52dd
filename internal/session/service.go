package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session/entity"
	sessionrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

// Store persists session rows.
type Store interface {
	Save(ctx context.Context, s *entity.Session) error
	Get(ctx context.Context, id string) (*entity.Session, error)
	Delete(ctx context.Context, id string) error
	DeleteByAccount(ctx context.Context, accountID int64) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Claims carried by the session cookie. Subject is the account id and ID the
// session row id.
type Claims struct {
	jwt.RegisteredClaims
	Role access.Role `json:"role"`
}

// Service issues and validates server-side sessions.
type Service struct {
	store  Store
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewService(store Store, cfg Config, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, cfg: cfg, logger: logger, now: time.Now}
}

// Issue persists a new session and returns its signed token.
func (s *Service) Issue(ctx context.Context, accountID int64, role access.Role) (string, time.Time, error) {
	now := s.now().UTC()
	row := &entity.Session{
		ID:        utilities.NewKSUID(),
		AccountID: accountID,
		Role:      role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.TTL),
	}
	if err := s.store.Save(ctx, row); err != nil {
		return "", time.Time{}, apperr.Internal(err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			ID:        row.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
		Role: role,
	})
	signed, err := tok.SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, apperr.Internal(fmt.Errorf("sign session: %w", err))
	}
	return signed, row.ExpiresAt, nil
}

// Authenticate validates a session token against its persisted row.
func (s *Service) Authenticate(ctx context.Context, token string) (access.Principal, error) {
	if token == "" {
		return access.Principal{}, apperr.ErrUnauthenticated
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return access.Principal{}, apperr.Wrap(err, apperr.KindUnauthenticated, apperr.ErrUnauthenticated.Message)
	}
	accountID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || claims.ID == "" {
		return access.Principal{}, apperr.ErrUnauthenticated
	}

	row, err := s.store.Get(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, sessionrepo.ErrNotFound) {
			return access.Principal{}, apperr.ErrUnauthenticated
		}
		return access.Principal{}, apperr.Internal(err)
	}
	if !row.ExpiresAt.After(s.now()) || row.AccountID != accountID || row.Role != claims.Role {
		return access.Principal{}, apperr.ErrUnauthenticated
	}
	return access.Principal{AccountID: row.AccountID, Role: row.Role, SessionID: row.ID}, nil
}

// Revoke deletes one session. Unknown ids are not an error.
func (s *Service) Revoke(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.store.Delete(ctx, sessionID); err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// RevokeToken revokes the session behind a token, ignoring tokens that no
// longer validate.
func (s *Service) RevokeToken(ctx context.Context, token string) error {
	p, err := s.Authenticate(ctx, token)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindUnauthenticated {
			return nil
		}
		return err
	}
	return s.Revoke(ctx, p.SessionID)
}

// RevokeAll drops every session of an account.
func (s *Service) RevokeAll(ctx context.Context, accountID int64) error {
	return s.store.DeleteByAccount(ctx, accountID)
}

// Sweep removes expired session rows.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Debugw("expired sessions removed", "count", n)
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Warnw("session sweep failed", "err", err)
			}
		}
	}
}
