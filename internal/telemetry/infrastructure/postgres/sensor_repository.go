package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// SensorRepository is a Postgres repository for sensors.
type SensorRepository struct {
	db *sql.DB
}

// NewSensorRepository constructs a repository.
func NewSensorRepository(db *sql.DB) *SensorRepository {
	return &SensorRepository{db: db}
}

// FindByDevice fetches a sensor by device identifier within a tenant.
// Returns nil when absent.
func (r *SensorRepository) FindByDevice(ctx context.Context, tenantID, deviceID string) (*telemetry.Sensor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sensor repo: nil db")
	}
	if tenantID == "" || deviceID == "" {
		return nil, errors.New("sensor repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, device_id, class, zone, status, last_seen, created_at, updated_at
FROM sensors
WHERE tenant_id = $1 AND device_id = $2`, tenantID, deviceID)
	return scanSensor(row)
}

// Create inserts a new sensor.
func (r *SensorRepository) Create(ctx context.Context, sensor *telemetry.Sensor) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	if sensor == nil {
		return errors.New("sensor repo: nil sensor")
	}
	if sensor.ID == "" || sensor.TenantID == "" || sensor.DeviceID == "" {
		return errors.New("sensor repo: missing fields")
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sensors (
	id, tenant_id, device_id, class, zone, status, last_seen, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`,
		sensor.ID,
		sensor.TenantID,
		sensor.DeviceID,
		string(sensor.Class),
		sensor.Zone,
		sensor.Status,
		sensor.LastSeen,
		sensor.CreatedAt,
		sensor.UpdatedAt,
	)
	return err
}

// TouchLastSeen stamps last_seen on an accepted reading.
func (r *SensorRepository) TouchLastSeen(ctx context.Context, tenantID, sensorID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE sensors
SET last_seen = $1, updated_at = $1
WHERE tenant_id = $2 AND id = $3`, at, tenantID, sensorID)
	return err
}

// ListActive returns active sensors for a tenant, optionally narrowed to a zone.
func (r *SensorRepository) ListActive(ctx context.Context, tenantID, zone string) ([]telemetry.Sensor, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("sensor repo: nil db")
	}
	if tenantID == "" {
		return nil, errors.New("sensor repo: empty tenant id")
	}

	query := `
SELECT id, tenant_id, device_id, class, zone, status, last_seen, created_at, updated_at
FROM sensors
WHERE tenant_id = $1 AND status = $2`
	args := []any{tenantID, telemetry.SensorStatusActive}
	if zone != "" {
		query += ` AND zone = $3`
		args = append(args, zone)
	}
	query += ` ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sensors []telemetry.Sensor
	for rows.Next() {
		sensor, err := scanSensorRow(rows)
		if err != nil {
			return nil, err
		}
		sensors = append(sensors, *sensor)
	}
	return sensors, rows.Err()
}

// Retire soft-retires a sensor; readings keep referencing it.
func (r *SensorRepository) Retire(ctx context.Context, tenantID, sensorID string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("sensor repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE sensors
SET status = $1, updated_at = $2
WHERE tenant_id = $3 AND id = $4`, telemetry.SensorStatusRetired, at, tenantID, sensorID)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSensor(row *sql.Row) (*telemetry.Sensor, error) {
	sensor, err := scanSensorRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sensor, err
}

func scanSensorRow(scanner rowScanner) (*telemetry.Sensor, error) {
	var sensor telemetry.Sensor
	var class string
	if err := scanner.Scan(
		&sensor.ID,
		&sensor.TenantID,
		&sensor.DeviceID,
		&class,
		&sensor.Zone,
		&sensor.Status,
		&sensor.LastSeen,
		&sensor.CreatedAt,
		&sensor.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sensor.Class = telemetry.NormalizeClass(class)
	return &sensor, nil
}
