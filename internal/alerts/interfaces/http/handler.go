package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sensorfleet-cloud/internal/alerts/application"
	alerts "sensorfleet-cloud/internal/alerts/domain"
	"sensorfleet-cloud/internal/audit"
	"sensorfleet-cloud/internal/auth"
)

const defaultListWindow = 7 * 24 * time.Hour

// AlertHandler exposes the alert surface:
//
//	GET  /api/v1/alerts
//	POST /api/v1/alerts/scan
//	GET  /api/v1/alerts/{id}/events
//	POST /api/v1/alerts/{id}/{action}
type AlertHandler struct {
	lifecycle *application.LifecycleService
	scans     *application.ScanService
	logger    *zap.Logger
}

// NewAlertHandler constructs an alert handler.
func NewAlertHandler(lifecycle *application.LifecycleService, scans *application.ScanService, logger *zap.Logger) (*AlertHandler, error) {
	if lifecycle == nil || scans == nil {
		return nil, errors.New("alert handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertHandler{lifecycle: lifecycle, scans: scans, logger: logger}, nil
}

// ServeHTTP routes requests under /api/v1/alerts.
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/alerts"), "/")
	parts := []string{}
	if rest != "" {
		parts = strings.Split(rest, "/")
	}

	switch {
	case len(parts) == 0 && r.Method == http.MethodGet:
		h.list(w, r, session)
	case len(parts) == 1 && parts[0] == "scan" && r.Method == http.MethodPost:
		h.scan(w, r, session)
	case len(parts) == 2 && parts[1] == "events" && r.Method == http.MethodGet:
		h.events(w, r, session, parts[0])
	case len(parts) == 2 && r.Method == http.MethodPost:
		h.apply(w, r, session, parts[0], parts[1])
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *AlertHandler) list(w http.ResponseWriter, r *http.Request, session auth.Session) {
	query := r.URL.Query()
	from, to := listWindow(query.Get("from"), query.Get("to"))

	list, err := h.lifecycle.List(r.Context(), session, query.Get("status"), query.Get("zone"), from, to)
	if err != nil {
		h.logger.Error("list alerts failed", zap.String("tenant_id", session.TenantID), zap.Error(err))
		http.Error(w, "list error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []alerts.Alert{}
	}
	writeJSON(w, map[string]any{"alerts": list})
}

func (h *AlertHandler) scan(w http.ResponseWriter, r *http.Request, session auth.Session) {
	if err := auth.AssertRole(session, auth.MutatingRoles()...); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	report, err := h.scans.Scan(r.Context(), session.TenantID, r.URL.Query().Get("zone"))
	switch {
	case errors.Is(err, application.ErrScanBusy):
		http.Error(w, "scan already running", http.StatusConflict)
		return
	case err != nil:
		h.logger.Error("scan failed", zap.String("tenant_id", session.TenantID), zap.Error(err))
		http.Error(w, "scan error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, report)
}

type actionRequest struct {
	Note string `json:"note"`
}

func (h *AlertHandler) apply(w http.ResponseWriter, r *http.Request, session auth.Session, alertID, action string) {
	var req actionRequest
	if r.Body != nil {
		// An empty body is a valid action request.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	alert, err := h.lifecycle.Apply(r.Context(), session, alertID, strings.ToUpper(action), req.Note, application.RequestContext{
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		h.writeError(w, session, err)
		return
	}
	writeJSON(w, alert)
}

func (h *AlertHandler) events(w http.ResponseWriter, r *http.Request, session auth.Session, alertID string) {
	events, err := h.lifecycle.Events(r.Context(), session, alertID)
	if err != nil {
		h.writeError(w, session, err)
		return
	}
	if events == nil {
		events = []alerts.AlertEvent{}
	}
	writeJSON(w, map[string]any{"events": events})
}

func (h *AlertHandler) writeError(w http.ResponseWriter, session auth.Session, err error) {
	switch {
	case errors.Is(err, alerts.ErrNotFound):
		http.Error(w, "alert not found", http.StatusNotFound)
	case errors.Is(err, alerts.ErrInvalidAction):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, auth.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		h.logger.Error("alert request failed", zap.String("tenant_id", session.TenantID), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// listWindow parses RFC 3339 bounds, defaulting to the trailing week.
func listWindow(fromRaw, toRaw string) (time.Time, time.Time) {
	to := time.Now().UTC()
	if parsed, err := time.Parse(time.RFC3339, toRaw); err == nil {
		to = parsed.UTC()
	}
	from := to.Add(-defaultListWindow)
	if parsed, err := time.Parse(time.RFC3339, fromRaw); err == nil {
		from = parsed.UTC()
	}
	return from, to
}
