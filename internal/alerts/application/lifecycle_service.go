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
	"sensorfleet-cloud/internal/auth"
	"sensorfleet-cloud/internal/observability/metrics"
)

const maxNoteLength = 500

// LifecycleService validates and applies operator-driven transitions on
// engine-created alerts.
type LifecycleService struct {
	alerts  alerts.AlertRepository
	events  alerts.AlertEventRepository
	auditor *audit.Recorder
	clock   Clock
	logger  *zap.Logger
}

// LifecycleOption customizes the lifecycle service.
type LifecycleOption func(*LifecycleService)

// WithLifecycleClock assigns a clock.
func WithLifecycleClock(clock Clock) LifecycleOption {
	return func(s *LifecycleService) {
		s.clock = clock
	}
}

// WithLifecycleAuditor assigns an audit recorder.
func WithLifecycleAuditor(auditor *audit.Recorder) LifecycleOption {
	return func(s *LifecycleService) {
		s.auditor = auditor
	}
}

// NewLifecycleService constructs a lifecycle service.
func NewLifecycleService(
	alertRepo alerts.AlertRepository,
	events alerts.AlertEventRepository,
	logger *zap.Logger,
	opts ...LifecycleOption,
) (*LifecycleService, error) {
	if alertRepo == nil || events == nil {
		return nil, errors.New("lifecycle: nil repository")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	service := &LifecycleService{
		alerts: alertRepo,
		events: events,
		clock:  systemClock{},
		logger: logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// RequestContext carries request metadata into the audit trail.
type RequestContext struct {
	IP        string
	UserAgent string
}

// Apply runs one operator action against an alert. The alert is fetched
// tenant-scoped, so foreign alerts surface as ErrNotFound. Every call appends
// an AlertEvent, including acknowledged/resolved no-ops.
func (s *LifecycleService) Apply(ctx context.Context, session auth.Session, alertID, action, note string, req RequestContext) (*alerts.Alert, error) {
	if s == nil {
		return nil, errors.New("lifecycle: nil service")
	}
	if alertID == "" {
		return nil, fmt.Errorf("%w: empty alert id", alerts.ErrInvalidAction)
	}
	normalized, ok := alerts.OperatorAction(action)
	if !ok {
		return nil, fmt.Errorf("%w: %q", alerts.ErrInvalidAction, action)
	}
	if len(note) > maxNoteLength {
		return nil, fmt.Errorf("%w: note too long", alerts.ErrInvalidAction)
	}
	if err := auth.AssertRole(session, auth.MutatingRoles()...); err != nil {
		return nil, err
	}

	alert, err := s.alerts.GetByID(ctx, session.TenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}

	before := *alert
	now := s.clock.Now().UTC()

	switch normalized {
	case alerts.ActionAcknowledge:
		// No-op when already acknowledged or resolved; the event below is
		// still logged. First acknowledger wins the stamps.
		if alert.Status == alerts.StatusOpen {
			if err := s.alerts.MarkAcknowledged(ctx, session.TenantID, alert.ID, session.UserID, now); err != nil {
				return nil, err
			}
			alert.Status = alerts.StatusAcknowledged
			alert.AcknowledgedAt = now
			alert.AcknowledgedBy = session.UserID
			alert.UpdatedAt = now
		}
	case alerts.ActionAssignToMe:
		if alert.Terminal() {
			return nil, fmt.Errorf("%w: alert already resolved", alerts.ErrInvalidAction)
		}
		if err := s.alerts.MarkAssigned(ctx, session.TenantID, alert.ID, session.UserID, now); err != nil {
			return nil, err
		}
		alert.AssignedTo = session.UserID
		alert.UpdatedAt = now
	case alerts.ActionResolve:
		if alert.Status != alerts.StatusResolved {
			if err := s.alerts.MarkResolved(ctx, session.TenantID, alert.ID, alert.LastValue, now); err != nil {
				return nil, err
			}
			alert.Status = alerts.StatusResolved
			alert.ResolvedAt = now
			alert.UpdatedAt = now
		}
	}

	event := alerts.AlertEvent{
		ID:          "ev-" + uuid.NewString(),
		TenantID:    session.TenantID,
		AlertID:     alert.ID,
		ActorUserID: session.UserID,
		Action:      normalized,
		Note:        note,
		CreatedAt:   now,
	}
	if err := s.events.Append(ctx, &event); err != nil {
		return nil, err
	}

	metrics.IncAlertTransition(normalized)
	if s.auditor != nil {
		s.auditor.Record(ctx, audit.Entry{
			TenantID:    session.TenantID,
			ActorUserID: session.UserID,
			Action:      "alert." + normalized,
			EntityType:  "alert",
			EntityID:    alert.ID,
			Before:      audit.Snapshot(statusSnapshot(before)),
			After:       audit.Snapshot(statusSnapshot(*alert)),
			IP:          req.IP,
			UserAgent:   req.UserAgent,
			CreatedAt:   now,
		})
	}
	return alert, nil
}

// List returns alerts for the session's tenant.
func (s *LifecycleService) List(ctx context.Context, session auth.Session, status, zone string, from, to time.Time) ([]alerts.Alert, error) {
	return s.alerts.List(ctx, session.TenantID, status, zone, from.UTC(), to.UTC())
}

// Events returns the append-only ledger of one alert, tenant-scoped.
func (s *LifecycleService) Events(ctx context.Context, session auth.Session, alertID string) ([]alerts.AlertEvent, error) {
	alert, err := s.alerts.GetByID(ctx, session.TenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert == nil {
		return nil, alerts.ErrNotFound
	}
	return s.events.ListByAlert(ctx, session.TenantID, alertID)
}

func statusSnapshot(alert alerts.Alert) map[string]any {
	snapshot := map[string]any{
		"status":      alert.Status,
		"assigned_to": alert.AssignedTo,
	}
	if !alert.AcknowledgedAt.IsZero() {
		snapshot["acknowledged_at"] = alert.AcknowledgedAt
		snapshot["acknowledged_by"] = alert.AcknowledgedBy
	}
	if !alert.ResolvedAt.IsZero() {
		snapshot["resolved_at"] = alert.ResolvedAt
	}
	return snapshot
}
