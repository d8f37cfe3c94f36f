package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// PriceSource yields the most recent traded price for a symbol. Implemented
// by the market-data feed.
type PriceSource interface {
	LastPrice(symbol string) (float64, bool)
}

// PaperAdapter simulates executions locally: every accepted order fills
// immediately at the last feed price (falling back to the limit price),
// charged a configurable fee rate. Submissions are deduplicated by
// idempotency key so a dispatcher retry after a simulated fault cannot double
// fill.
type PaperAdapter struct {
	prices  PriceSource
	feeRate float64
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]domain.ExecutionEvent
}

// NewPaperAdapter creates a paper trading adapter. feeRate is applied to the
// filled notional.
func NewPaperAdapter(prices PriceSource, feeRate float64, logger *slog.Logger) *PaperAdapter {
	return &PaperAdapter{
		prices:  prices,
		feeRate: feeRate,
		logger:  logger.With(slog.String("component", "paper_adapter")),
		seen:    make(map[string]domain.ExecutionEvent),
	}
}

// Name implements ExecutionAdapter.
func (a *PaperAdapter) Name() string { return "paper" }

// Submit implements ExecutionAdapter. A repeated idempotency key returns the
// originally recorded event.
func (a *PaperAdapter) Submit(ctx context.Context, order domain.Order) (domain.ExecutionEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if evt, ok := a.seen[order.IdempotencyKey]; ok {
		a.logger.DebugContext(ctx, "duplicate submission, replaying recorded event",
			slog.String("idempotency_key", order.IdempotencyKey),
		)
		return evt, nil
	}

	price := a.fillPrice(order)
	if price <= 0 {
		evt := domain.ExecutionEvent{
			Kind:           domain.ExecutionEventReject,
			IdempotencyKey: order.IdempotencyKey,
			Reason:         fmt.Sprintf("no price available for %s", order.Intent.Symbol),
			At:             time.Now().UTC(),
		}
		a.seen[order.IdempotencyKey] = evt
		return evt, nil
	}

	notional := math.Abs(order.Intent.Quantity) * price
	evt := domain.ExecutionEvent{
		Kind:           domain.ExecutionEventFill,
		IdempotencyKey: order.IdempotencyKey,
		AdapterOrderID: "paper-" + uuid.New().String(),
		Fill: &domain.Fill{
			Quantity: order.Intent.Quantity,
			Price:    price,
			Fee:      notional * a.feeRate,
		},
		At: time.Now().UTC(),
	}
	a.seen[order.IdempotencyKey] = evt

	a.logger.InfoContext(ctx, "paper fill",
		slog.String("symbol", order.Intent.Symbol),
		slog.String("side", string(order.Intent.Side)),
		slog.Float64("quantity", order.Intent.Quantity),
		slog.Float64("price", price),
	)
	return evt, nil
}

func (a *PaperAdapter) fillPrice(order domain.Order) float64 {
	if a.prices != nil {
		if px, ok := a.prices.LastPrice(order.Intent.Symbol); ok && px > 0 {
			return px
		}
	}
	return order.Intent.LimitPrice
}
