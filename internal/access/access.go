// Package access holds the role model and the authenticated caller identity
// that services check before performing privileged operations.
package access

import (
	"context"
	"strings"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
)

// Role is the single role an account holds.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// Privileged roles need a signup code.
func (r Role) Privileged() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ParseRole parses a role name. Empty input defaults to RoleUser.
func ParseRole(s string) (Role, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RoleUser, true
	}
	r := Role(s)
	return r, r.IsValid()
}

// AllRoles returns the known roles.
func AllRoles() []Role {
	return []Role{RoleUser, RoleAdmin, RoleSuperAdmin}
}

// Allow-sets used by the services.
var (
	Admins      = []Role{RoleAdmin, RoleSuperAdmin}
	SuperAdmins = []Role{RoleSuperAdmin}
	Users       = []Role{RoleUser}
	Anyone      = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}
)

// Principal identifies the caller of an operation.
type Principal struct {
	AccountID int64
	Role      Role
	SessionID string
}

// Require fails with Forbidden unless p holds one of allowed. A zero principal
// fails with Unauthenticated.
func Require(p Principal, allowed ...Role) error {
	if p.AccountID == 0 || !p.Role.IsValid() {
		return apperr.ErrUnauthenticated
	}
	for _, r := range allowed {
		if p.Role == r {
			return nil
		}
	}
	return apperr.ErrForbidden
}

type ctxKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// FromContext returns the principal stored by the session middleware.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
