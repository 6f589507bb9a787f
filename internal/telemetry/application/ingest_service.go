package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sensorfleet-cloud/internal/audit"
	"sensorfleet-cloud/internal/observability/metrics"
	"sensorfleet-cloud/internal/telemetry/decode"
	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// Policy decides what happens to payloads that decode with warnings.
type Policy string

const (
	// PolicyStrict redirects any payload with decode warnings to the
	// dead-letter sink.
	PolicyStrict Policy = "strict"
	// PolicyLenient accepts payloads with warnings attached to the reading.
	PolicyLenient Policy = "lenient"
)

// NormalizePolicy validates a policy string, defaulting to lenient.
func NormalizePolicy(value string) Policy {
	if Policy(value) == PolicyStrict {
		return PolicyStrict
	}
	return PolicyLenient
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// IngestRow is one raw payload submitted for ingestion.
type IngestRow struct {
	DeviceID   string    `json:"device_id"`
	Class      string    `json:"class"`
	Zone       string    `json:"zone"`
	Payload    string    `json:"payload"`
	CapturedAt time.Time `json:"captured_at"`
}

// RowError records a failed row without aborting the batch.
type RowError struct {
	Index int    `json:"index"`
	Err   string `json:"error"`
}

// IngestResult summarizes a batch.
type IngestResult struct {
	Accepted   int        `json:"accepted"`
	DeadLetter int        `json:"dead_letter"`
	Errors     []RowError `json:"errors,omitempty"`
}

// IngestService decodes raw payloads and persists readings. The tenant id is
// always supplied by the caller's resolved session or deployment binding,
// never taken from the payload itself.
type IngestService struct {
	sensors     telemetry.SensorRepository
	readings    telemetry.ReadingRepository
	deadLetters telemetry.DeadLetterSink
	auditor     *audit.Recorder
	policy      Policy
	clock       Clock
	logger      *zap.Logger
}

// IngestOption customizes the ingest service.
type IngestOption func(*IngestService)

// WithClock assigns a clock.
func WithClock(clock Clock) IngestOption {
	return func(s *IngestService) {
		s.clock = clock
	}
}

// WithAuditor assigns an audit recorder.
func WithAuditor(auditor *audit.Recorder) IngestOption {
	return func(s *IngestService) {
		s.auditor = auditor
	}
}

// NewIngestService constructs an ingest service.
func NewIngestService(
	sensors telemetry.SensorRepository,
	readings telemetry.ReadingRepository,
	deadLetters telemetry.DeadLetterSink,
	policy Policy,
	logger *zap.Logger,
	opts ...IngestOption,
) (*IngestService, error) {
	if sensors == nil || readings == nil {
		return nil, errors.New("ingest: nil repository")
	}
	if deadLetters == nil {
		return nil, errors.New("ingest: nil dead-letter sink")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &IngestService{
		sensors:     sensors,
		readings:    readings,
		deadLetters: deadLetters,
		policy:      NormalizePolicy(string(policy)),
		clock:       systemClock{},
		logger:      logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Ingest decodes and persists a batch of rows. Row failures are collected,
// not thrown; a row redirected to the dead-letter sink is not an error.
func (s *IngestService) Ingest(ctx context.Context, tenantID, actorUserID, source string, rows []IngestRow) (IngestResult, error) {
	if s == nil {
		return IngestResult{}, errors.New("ingest: nil service")
	}
	if tenantID == "" {
		return IngestResult{}, errors.New("ingest: empty tenant id")
	}

	started := s.clock.Now()
	var result IngestResult
	for index, row := range rows {
		if err := s.ingestRow(ctx, tenantID, source, index, row, &result); err != nil {
			metrics.IncIngestRow(metrics.ResultError)
			result.Errors = append(result.Errors, RowError{Index: index, Err: err.Error()})
			s.logger.Warn("ingest row failed",
				zap.String("tenant_id", tenantID),
				zap.String("device_id", row.DeviceID),
				zap.Int("index", index),
				zap.Error(err),
			)
		}
	}

	outcome := metrics.ResultSuccess
	if len(result.Errors) > 0 {
		outcome = metrics.ResultError
	}
	metrics.ObserveIngestLatency(outcome, s.clock.Now().Sub(started))

	s.recordAudit(ctx, tenantID, actorUserID, source, result)
	return result, nil
}

func (s *IngestService) ingestRow(ctx context.Context, tenantID, source string, index int, row IngestRow, result *IngestResult) error {
	if row.DeviceID == "" {
		return errors.New("missing device id")
	}
	class := telemetry.NormalizeClass(row.Class)
	decoded := decode.Decode(class, row.Payload)
	metrics.IncDecodeWarning(string(class), len(decoded.Warnings))

	if s.policy == PolicyStrict && len(decoded.Warnings) > 0 {
		record := telemetry.DeadLetterRecord{
			ID:        "dl-" + uuid.NewString(),
			TenantID:  tenantID,
			Source:    source,
			RowIndex:  index,
			Reason:    strings.Join(decoded.Warnings, "; "),
			Raw:       row.Payload,
			CreatedAt: s.clock.Now().UTC(),
		}
		if err := s.deadLetters.Record(ctx, &record); err != nil {
			return fmt.Errorf("dead-letter write: %w", err)
		}
		metrics.IncDeadLetter()
		result.DeadLetter++
		return nil
	}

	sensor, err := s.ensureSensor(ctx, tenantID, row, class)
	if err != nil {
		return err
	}

	capturedAt := row.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = s.clock.Now()
	}
	reading := telemetry.Reading{
		ID:         "rd-" + uuid.NewString(),
		TenantID:   tenantID,
		SensorID:   sensor.ID,
		Class:      class,
		CapturedAt: capturedAt.UTC(),
		Decoded:    decoded.Decoded,
		Raw:        row.Payload,
		Warnings:   decoded.Warnings,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.readings.Insert(ctx, &reading); err != nil {
		return fmt.Errorf("reading insert: %w", err)
	}
	metrics.IncIngestRow(metrics.ResultSuccess)
	result.Accepted++
	return nil
}

// ensureSensor registers a sensor on first ingestion and touches last-seen on
// every accepted reading.
func (s *IngestService) ensureSensor(ctx context.Context, tenantID string, row IngestRow, class telemetry.SensorClass) (*telemetry.Sensor, error) {
	sensor, err := s.sensors.FindByDevice(ctx, tenantID, row.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("sensor lookup: %w", err)
	}
	now := s.clock.Now().UTC()
	if sensor == nil {
		sensor = &telemetry.Sensor{
			ID:        "sensor-" + uuid.NewString(),
			TenantID:  tenantID,
			DeviceID:  row.DeviceID,
			Class:     class,
			Zone:      row.Zone,
			Status:    telemetry.SensorStatusActive,
			LastSeen:  now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.sensors.Create(ctx, sensor); err != nil {
			return nil, fmt.Errorf("sensor create: %w", err)
		}
		return sensor, nil
	}
	if err := s.sensors.TouchLastSeen(ctx, tenantID, sensor.ID, now); err != nil {
		return nil, fmt.Errorf("sensor touch: %w", err)
	}
	sensor.LastSeen = now
	return sensor, nil
}

func (s *IngestService) recordAudit(ctx context.Context, tenantID, actorUserID, source string, result IngestResult) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		TenantID:    tenantID,
		ActorUserID: actorUserID,
		Action:      "telemetry.ingest",
		EntityType:  "ingest_batch",
		EntityID:    source,
		After:       audit.Snapshot(result),
		CreatedAt:   s.clock.Now().UTC(),
	})
}
