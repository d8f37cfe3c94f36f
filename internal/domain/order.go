package domain

import "time"

// OrderState tracks the order lifecycle through the pipeline stages.
type OrderState string

const (
	OrderStateCreated     OrderState = "CREATED"
	OrderStateRiskAllowed OrderState = "RISK_ALLOWED"
	OrderStateRouted      OrderState = "ROUTED"
	OrderStateDispatched  OrderState = "DISPATCHED"
	OrderStateAcked       OrderState = "ACKED"
	OrderStateFilled      OrderState = "FILLED"
	OrderStateRejected    OrderState = "REJECTED"
	OrderStateFailed      OrderState = "FAILED"
)

// Terminal reports whether the state admits no further transitions.
func (s OrderState) Terminal() bool {
	switch s {
	case OrderStateFilled, OrderStateRejected, OrderStateFailed:
		return true
	default:
		return false
	}
}

// Fill carries the execution economics of a filled order.
type Fill struct {
	Quantity float64
	Price    float64
	Fee      float64
}

// Order is the mutable state machine derived from an OrderIntent during
// contract validation. It is mutated exclusively by the pipeline orchestrator
// as stages complete; for a given idempotency key at most one pipeline task
// ever owns the order (single-writer invariant).
type Order struct {
	OrderID        string
	CorrelationID  string
	IdempotencyKey string
	Intent         OrderIntent
	State          OrderState
	Fill           *Fill // present only once filled
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ExecutionEventKind classifies adapter responses.
type ExecutionEventKind string

const (
	ExecutionEventAck    ExecutionEventKind = "ACK"
	ExecutionEventReject ExecutionEventKind = "REJECT"
	ExecutionEventFill   ExecutionEventKind = "FILL"
)

// ExecutionEvent is the normalized adapter response for one dispatch, keyed by
// the order's idempotency key.
type ExecutionEvent struct {
	Kind           ExecutionEventKind
	IdempotencyKey string
	AdapterOrderID string
	Reason         string // populated on REJECT
	Fill           *Fill  // populated on FILL
	At             time.Time
}
