package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	alerts "sensorfleet-cloud/internal/alerts/domain"
	"sensorfleet-cloud/internal/audit"
	"sensorfleet-cloud/internal/observability/metrics"
	telemetry "sensorfleet-cloud/internal/telemetry/domain"
)

// ErrScanBusy indicates an overlapping scan already holds the tenant lock.
var ErrScanBusy = errors.New("scan: already running for tenant")

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// ScanLocker serializes scans per tenant. Acquire returns a release func and
// whether the lock was obtained.
type ScanLocker interface {
	Acquire(ctx context.Context, tenantID string) (release func(), ok bool, err error)
}

// ScanError records a failed sensor/rule evaluation without aborting the scan.
type ScanError struct {
	SensorID string `json:"sensor_id"`
	RuleID   string `json:"rule_id,omitempty"`
	Err      string `json:"error"`
}

// Report summarizes one scan run.
type Report struct {
	Opened       int         `json:"opened"`
	Updated      int         `json:"updated"`
	AutoResolved int         `json:"auto_resolved"`
	Errors       []ScanError `json:"errors,omitempty"`
}

// ScanService evaluates recent readings against threshold rules and drives
// engine-side alert transitions. Scans are idempotent: rerunning against
// unchanged readings produces no additional side effects.
type ScanService struct {
	sensors  telemetry.SensorRepository
	readings telemetry.ReadingRepository
	rules    alerts.RuleRepository
	alerts   alerts.AlertRepository
	events   alerts.AlertEventRepository
	auditor  *audit.Recorder
	locker   ScanLocker
	clock    Clock
	logger   *zap.Logger
}

// ScanOption customizes the scan service.
type ScanOption func(*ScanService)

// WithScanClock assigns a clock.
func WithScanClock(clock Clock) ScanOption {
	return func(s *ScanService) {
		s.clock = clock
	}
}

// WithScanLocker assigns a per-tenant scan lock.
func WithScanLocker(locker ScanLocker) ScanOption {
	return func(s *ScanService) {
		s.locker = locker
	}
}

// WithScanAuditor assigns an audit recorder.
func WithScanAuditor(auditor *audit.Recorder) ScanOption {
	return func(s *ScanService) {
		s.auditor = auditor
	}
}

// NewScanService constructs a scan service.
func NewScanService(
	sensors telemetry.SensorRepository,
	readings telemetry.ReadingRepository,
	rules alerts.RuleRepository,
	alertRepo alerts.AlertRepository,
	events alerts.AlertEventRepository,
	logger *zap.Logger,
	opts ...ScanOption,
) (*ScanService, error) {
	if sensors == nil || readings == nil || rules == nil || alertRepo == nil || events == nil {
		return nil, errors.New("scan: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &ScanService{
		sensors:  sensors,
		readings: readings,
		rules:    rules,
		alerts:   alertRepo,
		events:   events,
		clock:    systemClock{},
		logger:   logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Scan evaluates one tenant's active sensors, optionally narrowed to a zone.
// Per-sensor failures are collected into the report so a scheduler can retry
// the failed subset without repeating successful work.
func (s *ScanService) Scan(ctx context.Context, tenantID, zone string) (Report, error) {
	if s == nil {
		return Report{}, errors.New("scan: nil service")
	}
	if tenantID == "" {
		return Report{}, errors.New("scan: empty tenant id")
	}

	if s.locker != nil {
		release, ok, err := s.locker.Acquire(ctx, tenantID)
		if err != nil {
			return Report{}, fmt.Errorf("scan lock: %w", err)
		}
		if !ok {
			return Report{}, ErrScanBusy
		}
		defer release()
	}

	started := s.clock.Now()
	var report Report

	sensors, err := s.sensors.ListActive(ctx, tenantID, zone)
	if err != nil {
		metrics.IncScan(metrics.ResultError)
		return report, fmt.Errorf("scan: list sensors: %w", err)
	}
	rules, err := s.rules.ListEnabled(ctx, tenantID)
	if err != nil {
		metrics.IncScan(metrics.ResultError)
		return report, fmt.Errorf("scan: list rules: %w", err)
	}

	for _, sensor := range sensors {
		s.scanSensor(ctx, tenantID, sensor, rules, &report)
	}

	outcome := metrics.ResultSuccess
	if len(report.Errors) > 0 {
		outcome = metrics.ResultError
	}
	metrics.IncScan(outcome)
	metrics.ObserveScanLatency(outcome, s.clock.Now().Sub(started))

	s.logger.Info("alert scan finished",
		zap.String("tenant_id", tenantID),
		zap.String("zone", zone),
		zap.Int("opened", report.Opened),
		zap.Int("updated", report.Updated),
		zap.Int("auto_resolved", report.AutoResolved),
		zap.Int("errors", len(report.Errors)),
	)
	return report, nil
}

func (s *ScanService) scanSensor(ctx context.Context, tenantID string, sensor telemetry.Sensor, rules []alerts.ThresholdRule, report *Report) {
	latest, err := s.readings.LatestBySensor(ctx, tenantID, sensor.ID)
	if err != nil {
		report.Errors = append(report.Errors, ScanError{SensorID: sensor.ID, Err: err.Error()})
		return
	}
	if latest == nil {
		return
	}

	for _, rule := range rules {
		if !rule.AppliesTo(sensor) {
			continue
		}
		if err := s.evaluateRule(ctx, tenantID, sensor, rule, latest, report); err != nil {
			report.Errors = append(report.Errors, ScanError{SensorID: sensor.ID, RuleID: rule.ID, Err: err.Error()})
		}
	}
}

func (s *ScanService) evaluateRule(ctx context.Context, tenantID string, sensor telemetry.Sensor, rule alerts.ThresholdRule, latest *telemetry.Reading, report *Report) error {
	value, ok := latest.Metric(rule.Metric)
	if !ok {
		// The latest reading carries no such metric; nothing to evaluate.
		return nil
	}

	open, err := s.alerts.FindOpenByRuleSensor(ctx, tenantID, rule.ID, sensor.ID)
	if err != nil {
		return err
	}

	if rule.Violated(value) {
		if open != nil {
			// Already open or acknowledged; no duplicate, no flapping.
			now := s.clock.Now().UTC()
			if err := s.alerts.UpdateLastValue(ctx, tenantID, open.ID, value, now); err != nil {
				return err
			}
			report.Updated++
			return nil
		}
		return s.openAlert(ctx, tenantID, sensor, rule, value, report)
	}

	if open != nil {
		return s.autoResolve(ctx, tenantID, open, value, report)
	}
	return nil
}

func (s *ScanService) openAlert(ctx context.Context, tenantID string, sensor telemetry.Sensor, rule alerts.ThresholdRule, value float64, report *Report) error {
	now := s.clock.Now().UTC()
	alert := alerts.Alert{
		ID:        alerts.NewAlertID(tenantID, rule.ID, sensor.ID, now),
		TenantID:  tenantID,
		SensorID:  sensor.ID,
		Zone:      sensor.Zone,
		RuleID:    rule.ID,
		Severity:  rule.Severity,
		Status:    alerts.StatusOpen,
		LastValue: value,
		OpenedAt:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.alerts.Create(ctx, &alert); err != nil {
		return err
	}
	if err := s.appendEvent(ctx, tenantID, alert.ID, alerts.ActionOpen); err != nil {
		return err
	}
	metrics.IncAlertTransition(alerts.ActionOpen)
	s.recordAudit(ctx, tenantID, "alert.open", alert.ID, nil, alert)
	report.Opened++
	return nil
}

func (s *ScanService) autoResolve(ctx context.Context, tenantID string, open *alerts.Alert, value float64, report *Report) error {
	now := s.clock.Now().UTC()
	before := *open
	if err := s.alerts.MarkResolved(ctx, tenantID, open.ID, value, now); err != nil {
		return err
	}
	open.Status = alerts.StatusResolved
	open.ResolvedAt = now
	open.LastValue = value
	open.UpdatedAt = now
	if err := s.appendEvent(ctx, tenantID, open.ID, alerts.ActionAutoResolve); err != nil {
		return err
	}
	metrics.IncAlertTransition(alerts.ActionAutoResolve)
	s.recordAudit(ctx, tenantID, "alert.auto_resolve", open.ID, before, *open)
	report.AutoResolved++
	return nil
}

func (s *ScanService) appendEvent(ctx context.Context, tenantID, alertID, action string) error {
	event := alerts.AlertEvent{
		ID:        "ev-" + uuid.NewString(),
		TenantID:  tenantID,
		AlertID:   alertID,
		Action:    action,
		CreatedAt: s.clock.Now().UTC(),
	}
	return s.events.Append(ctx, &event)
}

func (s *ScanService) recordAudit(ctx context.Context, tenantID, action, alertID string, before, after any) {
	if s.auditor == nil {
		return
	}
	s.auditor.Record(ctx, audit.Entry{
		TenantID:   tenantID,
		Action:     action,
		EntityType: "alert",
		EntityID:   alertID,
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(after),
		CreatedAt:  s.clock.Now().UTC(),
	})
}
