package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "sensorfleet-cloud/internal/alerts/domain"
)

// AlertEventRepository stores the append-only alert ledger. Rows are never
// updated or deleted.
type AlertEventRepository struct {
	db *sql.DB
}

// NewAlertEventRepository constructs a repository.
func NewAlertEventRepository(db *sql.DB) *AlertEventRepository {
	return &AlertEventRepository{db: db}
}

// Append inserts one event.
func (r *AlertEventRepository) Append(ctx context.Context, event *alerts.AlertEvent) error {
	if r == nil || r.db == nil {
		return errors.New("alert event repo: nil db")
	}
	if event == nil {
		return errors.New("alert event repo: nil event")
	}
	if event.ID == "" || event.TenantID == "" || event.AlertID == "" {
		return errors.New("alert event repo: missing fields")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alert_events (id, tenant_id, alert_id, actor_user_id, action, note, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		event.ID,
		event.TenantID,
		event.AlertID,
		nullableString(event.ActorUserID),
		event.Action,
		nullableString(event.Note),
		event.CreatedAt,
	)
	return err
}

// ListByAlert returns the ledger of one alert in append order.
func (r *AlertEventRepository) ListByAlert(ctx context.Context, tenantID, alertID string) ([]alerts.AlertEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert event repo: nil db")
	}
	if tenantID == "" || alertID == "" {
		return nil, errors.New("alert event repo: invalid query")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, alert_id, actor_user_id, action, note, created_at
FROM alert_events
WHERE tenant_id = $1 AND alert_id = $2
ORDER BY created_at, id`, tenantID, alertID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.AlertEvent
	for rows.Next() {
		var event alerts.AlertEvent
		var actor, note sql.NullString
		if err := rows.Scan(
			&event.ID,
			&event.TenantID,
			&event.AlertID,
			&actor,
			&event.Action,
			&note,
			&event.CreatedAt,
		); err != nil {
			return nil, err
		}
		if actor.Valid {
			event.ActorUserID = actor.String
		}
		if note.Valid {
			event.Note = note.String
		}
		out = append(out, event)
	}
	return out, rows.Err()
}
