package alerts

import (
	"context"
	"errors"
	"time"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// Comparison defines how a metric is compared against the rule bound.
type Comparison string

const (
	// ComparisonMin violates when the value falls below the bound.
	ComparisonMin Comparison = "min"
	// ComparisonMax violates when the value exceeds the bound.
	ComparisonMax Comparison = "max"
	// ComparisonEq violates when the value equals the bound.
	ComparisonEq Comparison = "eq"
)

// Valid returns true when the comparison is supported.
func (c Comparison) Valid() bool {
	switch c {
	case ComparisonMin, ComparisonMax, ComparisonEq:
		return true
	default:
		return false
	}
}

// ThresholdRule is a per-tenant condition defining when a metric is out of
// bounds. Rules are external configuration, consumed read-only by the engine.
// Scope is either one sensor or one zone; a sensor scope takes precedence.
type ThresholdRule struct {
	ID        string     `json:"id"`
	TenantID  string     `json:"tenant_id"`
	SensorID  string     `json:"sensor_id,omitempty"`
	Zone      string     `json:"zone,omitempty"`
	Metric    string     `json:"metric"`
	Compare   Comparison `json:"compare"`
	Bound     float64    `json:"bound"`
	Severity  string     `json:"severity"`
	Enabled   bool       `json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks rule invariants.
func (r ThresholdRule) Validate() error {
	if r.ID == "" {
		return errors.New("threshold rule: empty id")
	}
	if r.TenantID == "" {
		return errors.New("threshold rule: empty tenant id")
	}
	if r.SensorID == "" && r.Zone == "" {
		return errors.New("threshold rule: no scope")
	}
	if r.Metric == "" {
		return errors.New("threshold rule: empty metric")
	}
	if !r.Compare.Valid() {
		return errors.New("threshold rule: invalid comparison")
	}
	return nil
}

// Violated returns true when the value breaches the rule condition.
func (r ThresholdRule) Violated(value float64) bool {
	switch r.Compare {
	case ComparisonMin:
		return value < r.Bound
	case ComparisonMax:
		return value > r.Bound
	case ComparisonEq:
		return value == r.Bound
	default:
		return false
	}
}

// AppliesTo returns true when the rule's scope covers the sensor.
func (r ThresholdRule) AppliesTo(sensor telemetry.Sensor) bool {
	if r.SensorID != "" {
		return r.SensorID == sensor.ID
	}
	return r.Zone != "" && r.Zone == sensor.Zone
}

// RuleRepository reads threshold rules.
type RuleRepository interface {
	ListEnabled(ctx context.Context, tenantID string) ([]ThresholdRule, error)
}
