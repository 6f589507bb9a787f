package postgres

import (
	"context"
	"database/sql"
	"errors"

	alerts "sensorfleet-cloud/internal/alerts/domain"
)

// RuleRepository is a Postgres repository for threshold rules.
type RuleRepository struct {
	db *sql.DB
}

// NewRuleRepository constructs a repository.
func NewRuleRepository(db *sql.DB) *RuleRepository {
	return &RuleRepository{db: db}
}

// ListEnabled returns the enabled rules of a tenant.
func (r *RuleRepository) ListEnabled(ctx context.Context, tenantID string) ([]alerts.ThresholdRule, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("rule repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("rule repo: empty tenant id")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, tenant_id, sensor_id, zone, metric, compare, bound, severity, enabled, created_at, updated_at
FROM threshold_rules
WHERE tenant_id = $1 AND enabled = TRUE
ORDER BY created_at`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []alerts.ThresholdRule
	for rows.Next() {
		var rule alerts.ThresholdRule
		var sensorID, zone sql.NullString
		if err := rows.Scan(
			&rule.ID,
			&rule.TenantID,
			&sensorID,
			&zone,
			&rule.Metric,
			&rule.Compare,
			&rule.Bound,
			&rule.Severity,
			&rule.Enabled,
			&rule.CreatedAt,
			&rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if sensorID.Valid {
			rule.SensorID = sensorID.String
		}
		if zone.Valid {
			rule.Zone = zone.String
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}
