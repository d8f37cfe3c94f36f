package adapter

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// ShadowAdapter acknowledges orders without executing them. It is used to run
// the full pipeline against live decision flow while producing no fills, so
// the risk gate and routing behavior can be observed safely.
type ShadowAdapter struct {
	logger *slog.Logger
}

// NewShadowAdapter creates a shadow adapter.
func NewShadowAdapter(logger *slog.Logger) *ShadowAdapter {
	return &ShadowAdapter{logger: logger.With(slog.String("component", "shadow_adapter"))}
}

// Name implements ExecutionAdapter.
func (a *ShadowAdapter) Name() string { return "shadow" }

// Submit implements ExecutionAdapter. Every order is ACKed, never filled.
func (a *ShadowAdapter) Submit(ctx context.Context, order domain.Order) (domain.ExecutionEvent, error) {
	a.logger.InfoContext(ctx, "shadow ack",
		slog.String("symbol", order.Intent.Symbol),
		slog.String("side", string(order.Intent.Side)),
		slog.Float64("quantity", order.Intent.Quantity),
	)
	return domain.ExecutionEvent{
		Kind:           domain.ExecutionEventAck,
		IdempotencyKey: order.IdempotencyKey,
		AdapterOrderID: "shadow-" + uuid.New().String(),
		At:             time.Now().UTC(),
	}, nil
}
