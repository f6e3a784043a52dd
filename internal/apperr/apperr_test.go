package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIs_MatchesByKind(t *testing.T) {
	err := New(KindAlreadyClaimed, "code 1234 is taken")
	wrapped := fmt.Errorf("claim: %w", err)

	assert.True(t, errors.Is(wrapped, ErrAlreadyClaimed))
	assert.False(t, errors.Is(wrapped, ErrNotFound))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"classified", ErrForbidden, KindForbidden},
		{"wrapped", fmt.Errorf("x: %w", ErrWeakPassword), KindWeakPassword},
		{"plain", errors.New("db down"), KindInternal},
		{"internal", Internal(errors.New("boom")), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestMessageOf_HidesInternalCause(t *testing.T) {
	err := Internal(errors.New("pq: password authentication failed for user postgres"))

	assert.Equal(t, "internal error", MessageOf(err))
	assert.Equal(t, "internal error", MessageOf(errors.New("raw")))
	assert.Equal(t, "bad count", MessageOf(InvalidArgument("bad count")))
}

func TestWrap_Unwraps(t *testing.T) {
	cause := errors.New("cause")
	err := Wrap(cause, KindNotFound, "missing")

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "cause")
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidArgument:    http.StatusBadRequest,
		KindWeakPassword:       http.StatusBadRequest,
		KindInvalidRoleCode:    http.StatusBadRequest,
		KindUnauthenticated:    http.StatusUnauthorized,
		KindInvalidCredentials: http.StatusUnauthorized,
		KindForbidden:          http.StatusForbidden,
		KindNotFound:           http.StatusNotFound,
		KindAccountNotFound:    http.StatusNotFound,
		KindDuplicateAccount:   http.StatusConflict,
		KindAlreadyClaimed:     http.StatusConflict,
		KindInternal:           http.StatusInternalServerError,
	}
	for kind, status := range cases {
		assert.Equal(t, status, HTTPStatus(kind), string(kind))
	}
}

func TestBodyOf(t *testing.T) {
	b := BodyOf(ErrAlreadyClaimed)
	assert.Equal(t, KindAlreadyClaimed, b.Error)
	assert.Equal(t, "qr code already claimed", b.Message)
}
