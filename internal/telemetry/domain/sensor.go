package telemetry

import (
	"context"
	"time"
)

// SensorClass declares how a sensor's payloads are decoded.
type SensorClass string

const (
	ClassParking     SensorClass = "PARKING"
	ClassTemperature SensorClass = "TEMPERATURE"
	ClassWeather     SensorClass = "WEATHER"
	ClassOther       SensorClass = "OTHER"
)

// NormalizeClass validates a sensor class string, defaulting to OTHER.
func NormalizeClass(value string) SensorClass {
	switch SensorClass(value) {
	case ClassParking, ClassTemperature, ClassWeather:
		return SensorClass(value)
	default:
		return ClassOther
	}
}

const (
	SensorStatusActive  = "active"
	SensorStatusRetired = "retired"
)

// Sensor is a registered device within a tenant. Sensors are soft-retired,
// never hard-deleted, while historical readings reference them.
type Sensor struct {
	ID        string      `json:"id"`
	TenantID  string      `json:"tenant_id"`
	DeviceID  string      `json:"device_id"`
	Class     SensorClass `json:"class"`
	Zone      string      `json:"zone"`
	Status    string      `json:"status"`
	LastSeen  time.Time   `json:"last_seen"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// SensorRepository persists sensors.
type SensorRepository interface {
	FindByDevice(ctx context.Context, tenantID, deviceID string) (*Sensor, error)
	Create(ctx context.Context, sensor *Sensor) error
	TouchLastSeen(ctx context.Context, tenantID, sensorID string, at time.Time) error
	ListActive(ctx context.Context, tenantID, zone string) ([]Sensor, error)
	Retire(ctx context.Context, tenantID, sensorID string, at time.Time) error
}
