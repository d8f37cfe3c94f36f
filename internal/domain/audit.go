package domain

import "time"

// AuditKind classifies audit entries.
type AuditKind string

const (
	AuditKindIntent     AuditKind = "INTENT"
	AuditKindStage      AuditKind = "STAGE"
	AuditKindRisk       AuditKind = "RISK_DECISION"
	AuditKindKillSwitch AuditKind = "KILL_SWITCH"
	AuditKindResult     AuditKind = "RESULT"
)

// AuditEntry is one append-only audit record. Entries are never mutated or
// deleted by the pipeline; compaction is an external housekeeping concern.
type AuditEntry struct {
	TS            time.Time      `json:"ts"`
	Kind          AuditKind      `json:"kind"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// OrderLedgerRecord is one append-only order-ledger row, keyed by order and
// correlation id for downstream reconciliation.
type OrderLedgerRecord struct {
	OrderID       string
	CorrelationID string
	Symbol        string
	Side          Side
	Quantity      float64
	State         OrderState
	ReasonCode    ReasonCode
	FillPrice     float64
	FillFee       float64
	RecordedAt    time.Time
}

// PositionLedgerRecord is one append-only position-delta row produced when an
// order fills.
type PositionLedgerRecord struct {
	OrderID       string
	CorrelationID string
	Symbol        string
	UnitsDelta    float64 // signed: sells are negative
	Price         float64
	RecordedAt    time.Time
}

// ReconPayload packages an order and its ledger deltas for the external
// reconciliation engine. Stage 8 publishes it and never blocks on consumers.
type ReconPayload struct {
	Order          Order                  `json:"order"`
	OrderLedger    []OrderLedgerRecord    `json:"order_ledger"`
	PositionLedger []PositionLedgerRecord `json:"position_ledger"`
	ExecutionMode  string                 `json:"execution_mode"`
	HandedOffAt    time.Time              `json:"handed_off_at"`
}
