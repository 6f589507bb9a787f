package telemetry

import (
	"context"
	"time"
)

// DeadLetterRecord retains a payload the ingestion policy rejected.
// Write-once, read-many; never mutated.
type DeadLetterRecord struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Source    string    `json:"source"`
	RowIndex  int       `json:"row_index"`
	Reason    string    `json:"reason"`
	Raw       string    `json:"raw"`
	CreatedAt time.Time `json:"created_at"`
}

// DeadLetterSink records rejected payloads for later inspection.
type DeadLetterSink interface {
	Record(ctx context.Context, record *DeadLetterRecord) error
}
