package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	alerts "sensorfleet-cloud/internal/alerts/domain"
)

// AlertRepository is a Postgres repository for alerts. Every statement is
// tenant-scoped; a partial unique index on (tenant_id, rule_id, sensor_id)
// for non-resolved rows backs the at-most-one-open invariant under
// concurrent scans.
type AlertRepository struct {
	db *sql.DB
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

// Create inserts a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *alerts.Alert) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if alert == nil {
		return errors.New("alert repo: nil alert")
	}
	if alert.ID == "" || alert.TenantID == "" || alert.RuleID == "" || alert.SensorID == "" {
		return errors.New("alert repo: missing fields")
	}
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}
	if alert.UpdatedAt.IsZero() {
		alert.UpdatedAt = alert.CreatedAt
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO alerts (
	id, tenant_id, sensor_id, zone, rule_id, severity, status, last_value,
	opened_at, acknowledged_at, acknowledged_by, assigned_to, resolved_at,
	created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8,
	$9, $10, $11, $12, $13,
	$14, $15
)`,
		alert.ID,
		alert.TenantID,
		alert.SensorID,
		alert.Zone,
		alert.RuleID,
		alert.Severity,
		alert.Status,
		sql.NullFloat64{Float64: alert.LastValue, Valid: true},
		alert.OpenedAt,
		nullableTime(alert.AcknowledgedAt),
		nullableString(alert.AcknowledgedBy),
		nullableString(alert.AssignedTo),
		nullableTime(alert.ResolvedAt),
		alert.CreatedAt,
		alert.UpdatedAt,
	)
	return err
}

// GetByID fetches an alert within a tenant. Foreign and missing rows both
// return nil.
func (r *AlertRepository) GetByID(ctx context.Context, tenantID, id string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || id == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, zone, rule_id, severity, status, last_value,
	opened_at, acknowledged_at, acknowledged_by, assigned_to, resolved_at,
	created_at, updated_at
FROM alerts
WHERE tenant_id = $1 AND id = $2`, tenantID, id)
	return scanAlert(row)
}

// FindOpenByRuleSensor returns the OPEN or ACKNOWLEDGED alert for one
// (rule, sensor) key, if any.
func (r *AlertRepository) FindOpenByRuleSensor(ctx context.Context, tenantID, ruleID, sensorID string) (*alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" || ruleID == "" || sensorID == "" {
		return nil, errors.New("alert repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, zone, rule_id, severity, status, last_value,
	opened_at, acknowledged_at, acknowledged_by, assigned_to, resolved_at,
	created_at, updated_at
FROM alerts
WHERE tenant_id = $1 AND rule_id = $2 AND sensor_id = $3
	AND status IN ('OPEN', 'ACKNOWLEDGED')
ORDER BY created_at DESC
LIMIT 1`, tenantID, ruleID, sensorID)
	return scanAlert(row)
}

// UpdateLastValue refreshes the last observed value on an open alert.
func (r *AlertRepository) UpdateLastValue(ctx context.Context, tenantID, id string, value float64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET last_value = $1, updated_at = $2
WHERE tenant_id = $3 AND id = $4`, value, at, tenantID, id)
	return err
}

// MarkAcknowledged transitions to ACKNOWLEDGED, preserving existing stamps.
func (r *AlertRepository) MarkAcknowledged(ctx context.Context, tenantID, id, by string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1,
	acknowledged_at = COALESCE(acknowledged_at, $2),
	acknowledged_by = COALESCE(acknowledged_by, $3),
	updated_at = $2
WHERE tenant_id = $4 AND id = $5`, alerts.StatusAcknowledged, at, by, tenantID, id)
	return err
}

// MarkAssigned sets the assignee without changing status.
func (r *AlertRepository) MarkAssigned(ctx context.Context, tenantID, id, userID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET assigned_to = $1, updated_at = $2
WHERE tenant_id = $3 AND id = $4`, userID, at, tenantID, id)
	return err
}

// MarkResolved transitions to RESOLVED, stamping resolved_at once.
func (r *AlertRepository) MarkResolved(ctx context.Context, tenantID, id string, value float64, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE alerts
SET status = $1,
	resolved_at = COALESCE(resolved_at, $2),
	last_value = $3,
	updated_at = $2
WHERE tenant_id = $4 AND id = $5`, alerts.StatusResolved, at, value, tenantID, id)
	return err
}

// List returns alerts by optional status/zone and time window.
func (r *AlertRepository) List(ctx context.Context, tenantID, status, zone string, from, to time.Time) ([]alerts.Alert, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("alert repo: empty tenant id")
	}

	query := `
SELECT id, tenant_id, sensor_id, zone, rule_id, severity, status, last_value,
	opened_at, acknowledged_at, acknowledged_by, assigned_to, resolved_at,
	created_at, updated_at
FROM alerts
WHERE tenant_id = $1 AND opened_at >= $2 AND opened_at < $3`
	args := []any{tenantID, from, to}
	if status != "" {
		args = append(args, status)
		query += ` AND status = $4`
	}
	if zone != "" {
		args = append(args, zone)
		if status != "" {
			query += ` AND zone = $5`
		} else {
			query += ` AND zone = $4`
		}
	}
	query += ` ORDER BY opened_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.Alert
	for rows.Next() {
		alert, err := scanAlertRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *alert)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row *sql.Row) (*alerts.Alert, error) {
	alert, err := scanAlertRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return alert, err
}

func scanAlertRow(scanner rowScanner) (*alerts.Alert, error) {
	var alert alerts.Alert
	var lastValue sql.NullFloat64
	var acknowledgedAt, resolvedAt sql.NullTime
	var acknowledgedBy, assignedTo sql.NullString
	if err := scanner.Scan(
		&alert.ID,
		&alert.TenantID,
		&alert.SensorID,
		&alert.Zone,
		&alert.RuleID,
		&alert.Severity,
		&alert.Status,
		&lastValue,
		&alert.OpenedAt,
		&acknowledgedAt,
		&acknowledgedBy,
		&assignedTo,
		&resolvedAt,
		&alert.CreatedAt,
		&alert.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if lastValue.Valid {
		alert.LastValue = lastValue.Float64
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = acknowledgedAt.Time
	}
	if acknowledgedBy.Valid {
		alert.AcknowledgedBy = acknowledgedBy.String
	}
	if assignedTo.Valid {
		alert.AssignedTo = assignedTo.String
	}
	if resolvedAt.Valid {
		alert.ResolvedAt = resolvedAt.Time
	}
	return &alert, nil
}

func nullableTime(value time.Time) sql.NullTime {
	return sql.NullTime{Time: value, Valid: !value.IsZero()}
}

func nullableString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
