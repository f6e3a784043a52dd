// Package apperr defines the error taxonomy shared by services and handlers.
// Every failure surfaced to a caller carries a stable Kind plus a human-readable
// message; anything that is not an *Error is reported as KindInternal.
package apperr

import (
	"errors"
	"net/http"
)

type Kind string

const (
	KindInvalidArgument    Kind = "invalid_argument"
	KindDuplicateAccount   Kind = "duplicate_account"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindAccountNotFound    Kind = "account_not_found"
	KindInvalidRoleCode    Kind = "invalid_role_code"
	KindUnauthenticated    Kind = "unauthenticated"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindAlreadyClaimed     Kind = "already_claimed"
	KindWeakPassword       Kind = "weak_password"
	KindInternal           Kind = "internal"
)

// Error is a classified failure. Err keeps the underlying cause for logging
// and is never written to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can compare against the
// sentinels below regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap classifies err under kind.
func Wrap(err error, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Internal hides err behind the opaque internal kind.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

var (
	ErrInvalidArgument    = New(KindInvalidArgument, "invalid argument")
	ErrDuplicateAccount   = New(KindDuplicateAccount, "an account with this email already exists")
	ErrInvalidCredentials = New(KindInvalidCredentials, "invalid email or password")
	ErrAccountNotFound    = New(KindAccountNotFound, "no account registered with this email")
	ErrInvalidRoleCode    = New(KindInvalidRoleCode, "invalid role code")
	ErrUnauthenticated    = New(KindUnauthenticated, "authentication required")
	ErrForbidden          = New(KindForbidden, "forbidden")
	ErrNotFound           = New(KindNotFound, "not found")
	ErrAlreadyClaimed     = New(KindAlreadyClaimed, "qr code already claimed")
	ErrWeakPassword       = New(KindWeakPassword, "password must be at least 6 characters long")
	ErrInternal           = New(KindInternal, "internal error")
)

// InvalidArgument is a shorthand for a validation failure with a specific message.
func InvalidArgument(msg string) *Error {
	return New(KindInvalidArgument, msg)
}

// KindOf reports the kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return ErrInternal.Message
}

// HTTPStatus maps a kind onto a response status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidArgument, KindWeakPassword, KindInvalidRoleCode:
		return http.StatusBadRequest
	case KindUnauthenticated, KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound, KindAccountNotFound:
		return http.StatusNotFound
	case KindDuplicateAccount, KindAlreadyClaimed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope written by handlers.
type Body struct {
	Error   Kind   `json:"error"`
	Message string `json:"message"`
}

// BodyOf builds the client payload for err.
func BodyOf(err error) Body {
	return Body{Error: KindOf(err), Message: MessageOf(err)}
}
