package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"sensorfleet-cloud/internal/auth"
	"sensorfleet-cloud/internal/telemetry/application"
)

// IngestHandler accepts raw payload batches over HTTP. The tenant always
// comes from the resolved session, never from the request body.
type IngestHandler struct {
	service *application.IngestService
	logger  *zap.Logger
}

// NewIngestHandler constructs an ingest handler.
func NewIngestHandler(service *application.IngestService, logger *zap.Logger) (*IngestHandler, error) {
	if service == nil {
		return nil, errors.New("ingest handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{service: service, logger: logger}, nil
}

type ingestRequest struct {
	Source string      `json:"source"`
	Rows   []ingestRow `json:"rows"`

	// Single-row shorthand.
	DeviceID string `json:"device_id"`
	Class    string `json:"class"`
	Zone     string `json:"zone"`
	Payload  string `json:"payload"`
	TS       int64  `json:"ts"`
}

type ingestRow struct {
	DeviceID string `json:"device_id"`
	Class    string `json:"class"`
	Zone     string `json:"zone"`
	Payload  string `json:"payload"`
	TS       int64  `json:"ts"`
}

// ServeHTTP handles POST /api/v1/ingest.
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	session, ok := auth.SessionFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if err := auth.AssertRole(session, auth.MutatingRoles()...); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req ingestRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	rows := req.toRows()
	if len(rows) == 0 {
		http.Error(w, "no rows", http.StatusBadRequest)
		return
	}
	source := req.Source
	if source == "" {
		source = "http"
	}

	result, err := h.service.Ingest(r.Context(), session.TenantID, session.UserID, source, rows)
	if err != nil {
		h.logger.Error("ingest failed", zap.String("tenant_id", session.TenantID), zap.Error(err))
		http.Error(w, "ingest error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (r ingestRequest) toRows() []application.IngestRow {
	source := r.Rows
	if len(source) == 0 && r.DeviceID != "" {
		source = []ingestRow{{DeviceID: r.DeviceID, Class: r.Class, Zone: r.Zone, Payload: r.Payload, TS: r.TS}}
	}
	rows := make([]application.IngestRow, 0, len(source))
	for _, row := range source {
		rows = append(rows, application.IngestRow{
			DeviceID:   row.DeviceID,
			Class:      row.Class,
			Zone:       row.Zone,
			Payload:    row.Payload,
			CapturedAt: parseTimestamp(row.TS),
		})
	}
	return rows
}

// parseTimestamp accepts milliseconds or seconds; zero means server time.
func parseTimestamp(value int64) time.Time {
	if value <= 0 {
		return time.Time{}
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC()
	}
	return time.Unix(value, 0).UTC()
}
