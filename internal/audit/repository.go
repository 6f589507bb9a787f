package audit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository writes audit logs to Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs an audit repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// Log appends an audit entry. Entries are never updated or deleted.
func (r *Repository) Log(ctx context.Context, entry Entry) error {
	if r == nil || r.db == nil {
		return errors.New("audit repo: nil db")
	}
	if entry.ID == "" {
		entry.ID = NewID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_logs (
	id, tenant_id, actor_user_id, action, entity_type, entity_id,
	before, after, payload_digest, ip, user_agent, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`, entry.ID, nullableString(entry.TenantID), entry.ActorUserID, entry.Action, entry.EntityType, entry.EntityID,
		nullableJSON(entry.Before), nullableJSON(entry.After), DigestJSON(entry.After), entry.IP, entry.UserAgent, entry.CreatedAt)
	return err
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullableJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return []byte(value)
}
