package alerts

import (
	"context"
	"time"
)

// Actions recorded in the alert event ledger. OPEN and AUTO_RESOLVE are
// engine-driven; the rest are operator-driven.
const (
	ActionOpen        = "OPEN"
	ActionAcknowledge = "ACKNOWLEDGE"
	ActionAssignToMe  = "ASSIGN_TO_ME"
	ActionResolve     = "RESOLVE"
	ActionAutoResolve = "AUTO_RESOLVE"
)

// OperatorAction validates an operator-supplied action token.
func OperatorAction(value string) (string, bool) {
	switch value {
	case ActionAcknowledge, ActionAssignToMe, ActionResolve:
		return value, true
	default:
		return "", false
	}
}

// AlertEvent is one entry in the append-only ledger of an alert. An empty
// ActorUserID marks an engine-driven event. Replaying a ledger in order
// reconstructs the alert's current status.
type AlertEvent struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AlertID     string    `json:"alert_id"`
	ActorUserID string    `json:"actor_user_id,omitempty"`
	Action      string    `json:"action"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// AlertEventRepository appends and reads the event ledger.
type AlertEventRepository interface {
	Append(ctx context.Context, event *AlertEvent) error
	ListByAlert(ctx context.Context, tenantID, alertID string) ([]AlertEvent, error)
}

// ReplayStatus folds a ledger into the status it implies. Used by forensic
// tooling and tests to check ledger consistency against the alert row.
func ReplayStatus(events []AlertEvent) string {
	status := ""
	for _, event := range events {
		switch event.Action {
		case ActionOpen:
			status = StatusOpen
		case ActionAcknowledge:
			if status == StatusOpen {
				status = StatusAcknowledged
			}
		case ActionResolve, ActionAutoResolve:
			status = StatusResolved
		}
	}
	return status
}
