package qrcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
	qrrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

// MaxPurposeLength is counted in characters.
const MaxPurposeLength = 500

// Claim attaches the caller and purpose to an unclaimed code. Under concurrent
// attempts on one code exactly one caller wins; the rest get AlreadyClaimed.
func (s *Service) Claim(ctx context.Context, p access.Principal, value, purpose string) (*entity.View, error) {
	if err := access.Require(p, access.Users...); err != nil {
		return nil, err
	}
	purpose = strings.TrimSpace(purpose)
	if purpose == "" {
		return nil, apperr.InvalidArgument("purpose is required")
	}
	if utf8.RuneCountInString(purpose) > MaxPurposeLength {
		return nil, apperr.InvalidArgument(fmt.Sprintf("purpose must be at most %d characters", MaxPurposeLength))
	}
	value = strings.TrimSpace(value)
	if !utilities.IsCodeValue(value) {
		return nil, apperr.ErrNotFound
	}

	c, err := s.repo.Claim(ctx, value, p.AccountID, purpose, s.now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, qrrepo.ErrNotFound):
			return nil, apperr.ErrNotFound
		case errors.Is(err, qrrepo.ErrAlreadyClaimed):
			s.logger.Debugw("claim rejected", "value", value, "account_id", p.AccountID)
			return nil, apperr.ErrAlreadyClaimed
		default:
			return nil, apperr.Internal(err)
		}
	}
	s.logger.Infow("qr code claimed", "id", c.ID, "account_id", p.AccountID)

	out, err := s.withOwners(ctx, []*entity.QRCode{c})
	if err != nil {
		// the claim is committed; only the owner display is missing
		s.logger.Warnw("resolve owner after claim", "id", c.ID, "err", err)
		v := c.View(nil)
		return &v, nil
	}
	return &out[0], nil
}

// GetDetails is the scan-flow read of a code; same projection as GetByValue.
func (s *Service) GetDetails(ctx context.Context, p access.Principal, value string) (*entity.View, error) {
	return s.GetByValue(ctx, p, value)
}
