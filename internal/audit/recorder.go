package audit

import (
	"context"

	"go.uber.org/zap"

	"sensorfleet-cloud/internal/observability/metrics"
)

// Recorder issues best-effort audit writes. Failures are logged and counted
// but never surface to the originating operation.
type Recorder struct {
	logger  Logger
	zlogger *zap.Logger
}

// NewRecorder constructs a recorder. A nil logger disables auditing.
func NewRecorder(logger Logger, zlogger *zap.Logger) *Recorder {
	if zlogger == nil {
		zlogger = zap.NewNop()
	}
	return &Recorder{logger: logger, zlogger: zlogger}
}

// Record writes an audit entry, swallowing any failure.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil || r.logger == nil {
		return
	}
	if err := r.logger.Log(ctx, entry); err != nil {
		metrics.IncAuditWriteFailure()
		r.zlogger.Warn("audit write failed",
			zap.String("action", entry.Action),
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.Error(err),
		)
	}
}
