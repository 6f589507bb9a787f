package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"sensorfleet-cloud/internal/audit"
	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

type fixedClock struct {
	at time.Time
}

func (c fixedClock) Now() time.Time { return c.at }

type memSensorRepo struct {
	byDevice map[string]*telemetry.Sensor
	created  int
	touched  int
}

func newMemSensorRepo() *memSensorRepo {
	return &memSensorRepo{byDevice: map[string]*telemetry.Sensor{}}
}

func (r *memSensorRepo) FindByDevice(_ context.Context, tenantID, deviceID string) (*telemetry.Sensor, error) {
	sensor, ok := r.byDevice[tenantID+"|"+deviceID]
	if !ok {
		return nil, nil
	}
	copied := *sensor
	return &copied, nil
}

func (r *memSensorRepo) Create(_ context.Context, sensor *telemetry.Sensor) error {
	r.created++
	copied := *sensor
	r.byDevice[sensor.TenantID+"|"+sensor.DeviceID] = &copied
	return nil
}

func (r *memSensorRepo) TouchLastSeen(_ context.Context, _, _ string, _ time.Time) error {
	r.touched++
	return nil
}

func (r *memSensorRepo) ListActive(_ context.Context, _, _ string) ([]telemetry.Sensor, error) {
	return nil, nil
}

func (r *memSensorRepo) Retire(_ context.Context, _, _ string, _ time.Time) error {
	return nil
}

type memReadingRepo struct {
	inserted []telemetry.Reading
	failWith error
}

func (r *memReadingRepo) Insert(_ context.Context, reading *telemetry.Reading) error {
	if r.failWith != nil {
		return r.failWith
	}
	r.inserted = append(r.inserted, *reading)
	return nil
}

func (r *memReadingRepo) LatestBySensor(_ context.Context, _, _ string) (*telemetry.Reading, error) {
	return nil, nil
}

type memDeadLetterSink struct {
	records []telemetry.DeadLetterRecord
}

func (s *memDeadLetterSink) Record(_ context.Context, record *telemetry.DeadLetterRecord) error {
	s.records = append(s.records, *record)
	return nil
}

type failingAuditSink struct{}

func (failingAuditSink) Log(_ context.Context, _ audit.Entry) error {
	return errors.New("audit sink unreachable")
}

func newTestIngestService(t *testing.T, policy Policy, sensors *memSensorRepo, readings *memReadingRepo, sink *memDeadLetterSink) *IngestService {
	t.Helper()
	service, err := NewIngestService(sensors, readings, sink, policy, zap.NewNop(),
		WithClock(fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}),
		WithAuditor(audit.NewRecorder(failingAuditSink{}, zap.NewNop())),
	)
	if err != nil {
		t.Fatalf("new ingest service: %v", err)
	}
	return service
}

func TestIngest_RegistersSensorAndInsertsReading(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyLenient, sensors, readings, sink)

	result, err := service.Ingest(context.Background(), "tenant-a", "user-1", "http", []IngestRow{
		{DeviceID: "dev-1", Class: "PARKING", Payload: "0155"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Accepted != 1 || result.DeadLetter != 0 || len(result.Errors) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sensors.created != 1 {
		t.Fatalf("expected sensor registration on first ingestion, created=%d", sensors.created)
	}
	if len(readings.inserted) != 1 {
		t.Fatalf("expected one reading, got %d", len(readings.inserted))
	}
	reading := readings.inserted[0]
	if reading.Raw != "0155" {
		t.Fatalf("raw payload not retained: %q", reading.Raw)
	}
	if occupied, _ := reading.Decoded["occupied"].(bool); !occupied {
		t.Fatalf("expected occupied reading, got %v", reading.Decoded)
	}
}

func TestIngest_SecondReadingTouchesLastSeen(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyLenient, sensors, readings, sink)

	rows := []IngestRow{{DeviceID: "dev-1", Class: "PARKING", Payload: "00"}}
	if _, err := service.Ingest(context.Background(), "tenant-a", "user-1", "http", rows); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	if _, err := service.Ingest(context.Background(), "tenant-a", "user-1", "http", rows); err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if sensors.created != 1 || sensors.touched != 1 {
		t.Fatalf("expected one create and one touch, got created=%d touched=%d", sensors.created, sensors.touched)
	}
}

func TestIngest_StrictPolicyDeadLettersWarnings(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyStrict, sensors, readings, sink)

	result, err := service.Ingest(context.Background(), "tenant-a", "", "queue", []IngestRow{
		{DeviceID: "dev-1", Class: "PARKING", Payload: "not json or hex!"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.DeadLetter != 1 || result.Accepted != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected one dead letter, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.Raw != "not json or hex!" || record.Reason == "" || record.TenantID != "tenant-a" {
		t.Fatalf("unexpected dead letter: %+v", record)
	}
	if len(readings.inserted) != 0 {
		t.Fatalf("expected no readings under strict policy, got %d", len(readings.inserted))
	}
}

func TestIngest_LenientPolicyAcceptsWithWarnings(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyLenient, sensors, readings, sink)

	result, err := service.Ingest(context.Background(), "tenant-a", "", "queue", []IngestRow{
		{DeviceID: "dev-1", Class: "PARKING", Payload: "01C8"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Accepted != 1 || result.DeadLetter != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(readings.inserted) != 1 || len(readings.inserted[0].Warnings) != 1 {
		t.Fatalf("expected reading with warning, got %+v", readings.inserted)
	}
}

func TestIngest_RowFailureDoesNotAbortBatch(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyLenient, sensors, readings, sink)

	result, err := service.Ingest(context.Background(), "tenant-a", "", "http", []IngestRow{
		{DeviceID: "", Class: "PARKING", Payload: "00"},
		{DeviceID: "dev-2", Class: "PARKING", Payload: "01"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Index != 0 {
		t.Fatalf("expected error for row 0, got %+v", result.Errors)
	}
	if result.Accepted != 1 {
		t.Fatalf("expected row 1 accepted, got %+v", result)
	}
}

func TestIngest_AuditFailureDoesNotSurface(t *testing.T) {
	sensors := newMemSensorRepo()
	readings := &memReadingRepo{}
	sink := &memDeadLetterSink{}
	service := newTestIngestService(t, PolicyLenient, sensors, readings, sink)

	// The audit recorder wraps a sink that always fails; ingest must still
	// report success.
	result, err := service.Ingest(context.Background(), "tenant-a", "user-1", "http", []IngestRow{
		{DeviceID: "dev-1", Class: "PARKING", Payload: "00"},
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if result.Accepted != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}
