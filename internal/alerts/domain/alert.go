package alerts

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"time"
)

const (
	StatusOpen         = "OPEN"
	StatusAcknowledged = "ACKNOWLEDGED"
	StatusResolved     = "RESOLVED"
)

// Alert is a stateful record of an ongoing rule violation. Alerts are created
// only by the scan engine; RESOLVED is terminal, a fresh violation opens a new
// alert record.
type Alert struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	SensorID       string    `json:"sensor_id"`
	Zone           string    `json:"zone,omitempty"`
	RuleID         string    `json:"rule_id"`
	Severity       string    `json:"severity"`
	Status         string    `json:"status"`
	LastValue      float64   `json:"last_value"`
	OpenedAt       time.Time `json:"opened_at"`
	AcknowledgedAt time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string    `json:"acknowledged_by,omitempty"`
	AssignedTo     string    `json:"assigned_to,omitempty"`
	ResolvedAt     time.Time `json:"resolved_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Terminal returns true when the alert can no longer transition.
func (a Alert) Terminal() bool {
	return a.Status == StatusResolved
}

// NewAlertID derives a stable id from the alert key and open time, so
// overlapping scan runs converge on the same record.
func NewAlertID(tenantID, ruleID, sensorID string, openedAt time.Time) string {
	sum := sha1.Sum([]byte(tenantID + "|" + ruleID + "|" + sensorID + "|" + openedAt.Format(time.RFC3339Nano)))
	return "alert-" + hex.EncodeToString(sum[:8])
}

// AlertRepository persists alerts. Every query is tenant-scoped; rows of
// other tenants are indistinguishable from absent rows.
type AlertRepository interface {
	Create(ctx context.Context, alert *Alert) error
	GetByID(ctx context.Context, tenantID, id string) (*Alert, error)
	FindOpenByRuleSensor(ctx context.Context, tenantID, ruleID, sensorID string) (*Alert, error)
	UpdateLastValue(ctx context.Context, tenantID, id string, value float64, at time.Time) error
	MarkAcknowledged(ctx context.Context, tenantID, id string, by string, at time.Time) error
	MarkAssigned(ctx context.Context, tenantID, id, userID string, at time.Time) error
	MarkResolved(ctx context.Context, tenantID, id string, value float64, at time.Time) error
	List(ctx context.Context, tenantID, status, zone string, from, to time.Time) ([]Alert, error)
}
