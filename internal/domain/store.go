package domain

import (
	"context"
	"time"
)

// AuditSink receives append-only audit entries. Implementations must be safe
// for concurrent appends from multiple pipeline tasks; entries for the same
// correlation id are appended in order by the single task that owns it.
type AuditSink interface {
	Append(ctx context.Context, entry AuditEntry) error
}

// OrderLedgerStore persists append-only order ledger records.
type OrderLedgerStore interface {
	Append(ctx context.Context, rec OrderLedgerRecord) error
	ListByCorrelation(ctx context.Context, correlationID string) ([]OrderLedgerRecord, error)
}

// PositionLedgerStore persists append-only position ledger records.
type PositionLedgerStore interface {
	Append(ctx context.Context, rec PositionLedgerRecord) error
}

// ResultCache mirrors pipeline results keyed by idempotency key so duplicate
// intents collapse onto the recorded outcome across restarts.
type ResultCache interface {
	Get(ctx context.Context, idempotencyKey string) (*PipelineResult, error)
	Set(ctx context.Context, idempotencyKey string, result PipelineResult, ttl time.Duration) error
}

// ReconPublisher hands recon payloads to the downstream reconciliation engine.
type ReconPublisher interface {
	Publish(ctx context.Context, payload ReconPayload) error
}

// BlobWriter uploads serialized blobs to object storage.
type BlobWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// SnapshotSource yields the latest fully-published portfolio snapshot.
type SnapshotSource interface {
	Snapshot() PortfolioSnapshot
}
