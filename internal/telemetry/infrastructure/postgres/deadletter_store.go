package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// DeadLetterStore is a Postgres write-only sink for rejected payloads.
type DeadLetterStore struct {
	db *sql.DB
}

// NewDeadLetterStore constructs a dead-letter store.
func NewDeadLetterStore(db *sql.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Record inserts a dead-letter record. Records are never updated.
func (s *DeadLetterStore) Record(ctx context.Context, record *telemetry.DeadLetterRecord) error {
	if s == nil || s.db == nil {
		return errors.New("dead-letter store: nil db")
	}
	if record == nil {
		return errors.New("dead-letter store: nil record")
	}
	if record.ID == "" || record.TenantID == "" {
		return errors.New("dead-letter store: missing fields")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO dead_letters (
	id, tenant_id, source, row_index, reason, raw, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)`,
		record.ID,
		record.TenantID,
		record.Source,
		record.RowIndex,
		record.Reason,
		record.Raw,
		record.CreatedAt,
	)
	return err
}
