package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// ReadingRepository is a Postgres repository for decoded readings.
type ReadingRepository struct {
	db *sql.DB
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB) *ReadingRepository {
	return &ReadingRepository{db: db}
}

// Insert appends an immutable reading.
func (r *ReadingRepository) Insert(ctx context.Context, reading *telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if reading == nil {
		return errors.New("reading repo: nil reading")
	}
	if reading.ID == "" || reading.TenantID == "" || reading.SensorID == "" {
		return errors.New("reading repo: missing fields")
	}
	decoded, err := json.Marshal(reading.Decoded)
	if err != nil {
		return err
	}
	warnings, err := json.Marshal(reading.Warnings)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO readings (
	id, tenant_id, sensor_id, class, captured_at, decoded, raw, warnings, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)`,
		reading.ID,
		reading.TenantID,
		reading.SensorID,
		string(reading.Class),
		reading.CapturedAt,
		decoded,
		reading.Raw,
		warnings,
		reading.CreatedAt,
	)
	return err
}

// LatestBySensor fetches the most recent reading for a sensor. Returns nil
// when the sensor has no readings yet.
func (r *ReadingRepository) LatestBySensor(ctx context.Context, tenantID, sensorID string) (*telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if tenantID == "" || sensorID == "" {
		return nil, errors.New("reading repo: invalid query")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, tenant_id, sensor_id, class, captured_at, decoded, raw, warnings, created_at
FROM readings
WHERE tenant_id = $1 AND sensor_id = $2
ORDER BY captured_at DESC
LIMIT 1`, tenantID, sensorID)

	var reading telemetry.Reading
	var class string
	var decoded, warnings []byte
	if err := row.Scan(
		&reading.ID,
		&reading.TenantID,
		&reading.SensorID,
		&class,
		&reading.CapturedAt,
		&decoded,
		&reading.Raw,
		&warnings,
		&reading.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	reading.Class = telemetry.NormalizeClass(class)
	if len(decoded) > 0 {
		if err := json.Unmarshal(decoded, &reading.Decoded); err != nil {
			return nil, err
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &reading.Warnings); err != nil {
			return nil, err
		}
	}
	return &reading, nil
}
