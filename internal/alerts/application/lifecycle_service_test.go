package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	alerts "sensorfleet-cloud/internal/alerts/domain"
	"sensorfleet-cloud/internal/audit"
	"sensorfleet-cloud/internal/auth"
)

type failingAuditSink struct{}

func (failingAuditSink) Log(_ context.Context, _ audit.Entry) error {
	return errors.New("audit sink unreachable")
}

type lifecycleFixture struct {
	alerts  *memAlerts
	events  *memEvents
	clock   *fixedClock
	service *LifecycleService
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	fixture := &lifecycleFixture{
		alerts: newMemAlerts(),
		events: &memEvents{},
		clock:  &fixedClock{at: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
	}
	service, err := NewLifecycleService(fixture.alerts, fixture.events, zap.NewNop(),
		WithLifecycleClock(fixture.clock),
		WithLifecycleAuditor(audit.NewRecorder(failingAuditSink{}, zap.NewNop())),
	)
	if err != nil {
		t.Fatalf("new lifecycle service: %v", err)
	}
	fixture.service = service
	return fixture
}

func (f *lifecycleFixture) seedOpenAlert(id, tenantID string) {
	f.alerts.byID[id] = &alerts.Alert{
		ID: id, TenantID: tenantID, SensorID: "sensor-1", RuleID: "rule-1",
		Status: alerts.StatusOpen, OpenedAt: f.clock.at, CreatedAt: f.clock.at, UpdatedAt: f.clock.at,
	}
}

func opsSession(tenantID string) auth.Session {
	return auth.Session{UserID: "user-ops", TenantID: tenantID, EffectiveRole: auth.RoleCustomerOps}
}

func TestLifecycle_AcknowledgeIdempotentStamps(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-a")

	first, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAcknowledge, "", RequestContext{})
	if err != nil {
		t.Fatalf("first acknowledge: %v", err)
	}
	if first.Status != alerts.StatusAcknowledged || first.AcknowledgedAt.IsZero() {
		t.Fatalf("expected acknowledged alert, got %+v", first)
	}
	firstAckAt := first.AcknowledgedAt

	fixture.clock.at = fixture.clock.at.Add(10 * time.Minute)
	second, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAcknowledge, "", RequestContext{})
	if err != nil {
		t.Fatalf("second acknowledge: %v", err)
	}
	if !second.AcknowledgedAt.Equal(firstAckAt) {
		t.Fatalf("acknowledgedAt changed on second call: %v vs %v", second.AcknowledgedAt, firstAckAt)
	}

	events := fixture.events.forAlert("alert-1")
	if len(events) != 2 {
		t.Fatalf("expected two ACKNOWLEDGE events, got %d", len(events))
	}
	for _, event := range events {
		if event.Action != alerts.ActionAcknowledge || event.ActorUserID != "user-ops" {
			t.Fatalf("unexpected event: %+v", event)
		}
	}
}

func TestLifecycle_FirstAcknowledgerWins(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")

	first := auth.Session{UserID: "user-1", TenantID: "tenant-a", EffectiveRole: auth.RoleCustomerOps}
	second := auth.Session{UserID: "user-2", TenantID: "tenant-a", EffectiveRole: auth.RoleCustomerOps}

	if _, err := fixture.service.Apply(context.Background(), first, "alert-1", alerts.ActionAcknowledge, "", RequestContext{}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	alert, err := fixture.service.Apply(context.Background(), second, "alert-1", alerts.ActionAcknowledge, "", RequestContext{})
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if alert.AcknowledgedBy != "user-1" {
		t.Fatalf("expected first acknowledger to win, got %q", alert.AcknowledgedBy)
	}
}

func TestLifecycle_AssignToMe(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-a")

	alert, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAssignToMe, "taking this", RequestContext{})
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if alert.AssignedTo != "user-ops" {
		t.Fatalf("expected assignment, got %+v", alert)
	}
	if alert.Status != alerts.StatusOpen {
		t.Fatalf("assign must not change status, got %q", alert.Status)
	}
	events := fixture.events.forAlert("alert-1")
	if len(events) != 1 || events[0].Note != "taking this" {
		t.Fatalf("expected event with note, got %+v", events)
	}
}

func TestLifecycle_AssignOnResolvedInvalid(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	fixture.alerts.byID["alert-1"].Status = alerts.StatusResolved
	session := opsSession("tenant-a")

	_, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAssignToMe, "", RequestContext{})
	if !errors.Is(err, alerts.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestLifecycle_ResolveSetsResolvedAtOnce(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-a")

	first, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionResolve, "", RequestContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if first.Status != alerts.StatusResolved || first.ResolvedAt.IsZero() {
		t.Fatalf("expected resolved alert, got %+v", first)
	}
	resolvedAt := first.ResolvedAt

	fixture.clock.at = fixture.clock.at.Add(time.Hour)
	second, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionResolve, "", RequestContext{})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if !second.ResolvedAt.Equal(resolvedAt) {
		t.Fatalf("resolvedAt changed on second call")
	}
	if len(fixture.events.forAlert("alert-1")) != 2 {
		t.Fatalf("expected both resolve events logged")
	}
}

func TestLifecycle_AnalystForbidden(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := auth.Session{UserID: "user-ro", TenantID: "tenant-a", EffectiveRole: auth.RoleAnalyst}

	for _, action := range []string{alerts.ActionAcknowledge, alerts.ActionAssignToMe, alerts.ActionResolve} {
		if _, err := fixture.service.Apply(context.Background(), session, "alert-1", action, "", RequestContext{}); !errors.Is(err, auth.ErrForbidden) {
			t.Fatalf("expected ErrForbidden for %s, got %v", action, err)
		}
	}
	if len(fixture.events.events) != 0 {
		t.Fatalf("no events expected for forbidden calls, got %d", len(fixture.events.events))
	}
}

func TestLifecycle_TenantIsolation(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-b")

	_, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAcknowledge, "", RequestContext{})
	if !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign tenant, got %v", err)
	}

	if _, err := fixture.service.Events(context.Background(), session, "alert-1"); !errors.Is(err, alerts.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign ledger read, got %v", err)
	}
}

func TestLifecycle_UnknownAction(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-a")

	_, err := fixture.service.Apply(context.Background(), session, "alert-1", "ESCALATE", "", RequestContext{})
	if !errors.Is(err, alerts.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
}

func TestLifecycle_NoteTooLong(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	session := opsSession("tenant-a")

	note := make([]byte, maxNoteLength+1)
	for i := range note {
		note[i] = 'x'
	}
	_, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionResolve, string(note), RequestContext{})
	if !errors.Is(err, alerts.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction for oversized note, got %v", err)
	}
}

func TestLifecycle_LedgerReplayMatchesStatus(t *testing.T) {
	fixture := newLifecycleFixture(t)
	fixture.seedOpenAlert("alert-1", "tenant-a")
	fixture.events.events = append(fixture.events.events, alerts.AlertEvent{
		TenantID: "tenant-a", AlertID: "alert-1", Action: alerts.ActionOpen,
	})
	session := opsSession("tenant-a")

	if _, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionAcknowledge, "", RequestContext{}); err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	alert, err := fixture.service.Apply(context.Background(), session, "alert-1", alerts.ActionResolve, "", RequestContext{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	events, err := fixture.service.Events(context.Background(), opsSession("tenant-a"), "alert-1")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if replayed := alerts.ReplayStatus(events); replayed != alert.Status {
		t.Fatalf("replayed status %q does not match alert status %q", replayed, alert.Status)
	}
}
