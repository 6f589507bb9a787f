package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Entry represents an audit log entry. Before and After are opaque snapshots
// of the affected entity; the writer stores them without interpreting them.
type Entry struct {
	ID          string
	TenantID    string
	ActorUserID string
	Action      string
	EntityType  string
	EntityID    string
	Before      json.RawMessage
	After       json.RawMessage
	IP          string
	UserAgent   string
	CreatedAt   time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// Snapshot marshals a value into an opaque snapshot blob. A nil value yields
// a nil snapshot.
func Snapshot(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// DigestJSON computes a SHA256 hex digest for snapshot payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
