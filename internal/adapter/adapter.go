// Package adapter defines the execution adapter contract and the dispatcher
// that guarantees at-most-once submission per idempotency key with bounded,
// backed-off retries.
package adapter

import (
	"context"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// ExecutionAdapter submits an order to one execution venue. A returned error
// marks a transient transport failure the dispatcher may retry; venue-level
// rejections come back as a REJECT event with a nil error and are terminal.
// Adapters must treat the idempotency key as the dedup token: re-submitting
// the same key must never produce a second working order.
type ExecutionAdapter interface {
	Name() string
	Submit(ctx context.Context, order domain.Order) (domain.ExecutionEvent, error)
}
