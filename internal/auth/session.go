package auth

import (
	"context"
	"errors"
	"fmt"
)

const (
	// StatusActive marks an active user account or membership.
	StatusActive = "active"
)

// Session is a resolved, tenant-scoped identity. Every component below the
// guard takes its tenant id from here and nowhere else.
type Session struct {
	UserID        string `json:"user_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EffectiveRole Role   `json:"effective_role"`
	TenantID      string `json:"tenant_id"`
}

// User is a directory record for a user account.
type User struct {
	ID     string
	Email  string
	Name   string
	Role   Role
	Status string
}

// Membership binds a user to a tenant with a role.
type Membership struct {
	UserID   string
	TenantID string
	Role     Role
	Status   string
}

// UserDirectory looks up user accounts.
type UserDirectory interface {
	FindUser(ctx context.Context, userID string) (*User, error)
}

// MembershipDirectory looks up tenant memberships.
type MembershipDirectory interface {
	FindMembership(ctx context.Context, tenantID, userID string) (*Membership, error)
}

// Guard resolves opaque bearer credentials into tenant-scoped sessions.
type Guard struct {
	secret      []byte
	users       UserDirectory
	memberships MembershipDirectory
}

// NewGuard constructs a session guard.
func NewGuard(secret []byte, users UserDirectory, memberships MembershipDirectory) (*Guard, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth guard: empty secret")
	}
	if users == nil || memberships == nil {
		return nil, errors.New("auth guard: nil directory")
	}
	return &Guard{secret: secret, users: users, memberships: memberships}, nil
}

// Resolve validates the credential and resolves the effective role for the
// token's tenant. Precedence: active membership role for the tenant, then the
// global master_admin role acting through a signed tenant-switch token.
// Resolution is a pure lookup with no side effects.
func (g *Guard) Resolve(ctx context.Context, token string) (Session, error) {
	claims, err := ParseToken(token, g.secret)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := g.users.FindUser(ctx, claims.Subject)
	if err != nil {
		return Session{}, err
	}
	if user == nil || user.Status != StatusActive {
		return Session{}, fmt.Errorf("%w: inactive account", ErrUnauthenticated)
	}

	session := Session{
		UserID:   user.ID,
		Email:    user.Email,
		Name:     user.Name,
		TenantID: claims.TenantID,
	}
	if session.Email == "" {
		session.Email = claims.Email
	}
	if session.Name == "" {
		session.Name = claims.Name
	}

	membership, err := g.memberships.FindMembership(ctx, claims.TenantID, user.ID)
	if err != nil {
		return Session{}, err
	}
	switch {
	case membership != nil && membership.Status == StatusActive:
		session.EffectiveRole = membership.Role
	case user.Role == RoleMasterAdmin:
		session.EffectiveRole = RoleMasterAdmin
	default:
		return Session{}, fmt.Errorf("%w: no membership for tenant", ErrForbidden)
	}
	return session, nil
}

// AssertRole fails with ErrForbidden when the session's effective role is not
// in the allowed set.
func AssertRole(session Session, allowed ...Role) error {
	if !RoleIn(session.EffectiveRole, allowed...) {
		return fmt.Errorf("%w: role %q not permitted", ErrForbidden, session.EffectiveRole)
	}
	return nil
}
