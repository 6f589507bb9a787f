package postgres

import (
	"context"
	"database/sql"
	"errors"

	"sensorfleet-cloud/internal/auth"
)

// Directory is a Postgres-backed user and membership directory.
type Directory struct {
	db *sql.DB
}

// NewDirectory constructs a directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// FindUser fetches a user account by id. Returns nil when absent.
func (d *Directory) FindUser(ctx context.Context, userID string) (*auth.User, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	if userID == "" {
		return nil, errors.New("directory: empty user id")
	}
	row := d.db.QueryRowContext(ctx, `
SELECT id, email, name, role, status
FROM users
WHERE id = $1`, userID)

	var user auth.User
	var role string
	if err := row.Scan(&user.ID, &user.Email, &user.Name, &role, &user.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	user.Role, _ = auth.NormalizeRole(role)
	return &user, nil
}

// FindMembership fetches a user's membership within a tenant, joined against
// the tenant row so memberships of inactive tenants never resolve.
func (d *Directory) FindMembership(ctx context.Context, tenantID, userID string) (*auth.Membership, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	if tenantID == "" || userID == "" {
		return nil, errors.New("directory: empty tenant or user id")
	}
	row := d.db.QueryRowContext(ctx, `
SELECT m.user_id, m.tenant_id, m.role, m.status
FROM memberships m
JOIN tenants t ON t.id = m.tenant_id
WHERE m.tenant_id = $1 AND m.user_id = $2 AND t.status = 'ACTIVE'`, tenantID, userID)

	var membership auth.Membership
	var role string
	if err := row.Scan(&membership.UserID, &membership.TenantID, &role, &membership.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	membership.Role, _ = auth.NormalizeRole(role)
	return &membership, nil
}
