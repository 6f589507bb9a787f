package telemetry

import (
	"context"
	"time"
)

// Reading is one decoded, timestamped observation from a sensor. Readings are
// immutable once written; the raw payload is retained for replay.
type Reading struct {
	ID         string         `json:"id"`
	TenantID   string         `json:"tenant_id"`
	SensorID   string         `json:"sensor_id"`
	Class      SensorClass    `json:"class"`
	CapturedAt time.Time      `json:"captured_at"`
	Decoded    map[string]any `json:"decoded"`
	Raw        string         `json:"raw"`
	Warnings   []string       `json:"warnings,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Metric returns the named decoded field coerced to a float64. Booleans map
// to 0/1 so occupancy rules can share the numeric comparison path.
func (r Reading) Metric(name string) (float64, bool) {
	value, ok := r.Decoded[name]
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ReadingRepository persists readings.
type ReadingRepository interface {
	Insert(ctx context.Context, reading *Reading) error
	LatestBySensor(ctx context.Context, tenantID, sensorID string) (*Reading, error)
}
