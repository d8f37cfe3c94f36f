package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// DispatchConfig bounds the retry behavior for one dispatch.
type DispatchConfig struct {
	MaxAttempts    int           // total attempts including the first
	AttemptTimeout time.Duration // per-attempt deadline
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Dispatcher sends orders to an execution adapter. Transient adapter errors
// (timeouts, connection failures) are retried with exponential backoff up to
// the configured attempt bound; venue rejections are returned as events and
// never retried.
type Dispatcher struct {
	cfg    DispatchConfig
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher with the given retry policy.
func NewDispatcher(cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch submits the order through target, retrying transient failures.
// When every attempt fails it returns domain.ErrDispatchTimeout wrapped with
// the last error; the caller maps that to DISPATCH_EXHAUSTED. Once the
// adapter has returned an event, the dispatch is committed: the caller must
// not re-enter for the same idempotency key.
func (d *Dispatcher) Dispatch(ctx context.Context, target ExecutionAdapter, order domain.Order) (domain.ExecutionEvent, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.cfg.InitialBackoff
	policy.MaxInterval = d.cfg.MaxBackoff
	policy.MaxElapsedTime = 0 // bounded by attempt count, not wall-clock

	maxRetries := uint64(0)
	if d.cfg.MaxAttempts > 1 {
		maxRetries = uint64(d.cfg.MaxAttempts - 1)
	}

	var evt domain.ExecutionEvent
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()

		var err error
		evt, err = target.Submit(attemptCtx, order)
		if err != nil {
			d.logger.WarnContext(ctx, "adapter submit failed",
				slog.String("adapter", target.Name()),
				slog.String("idempotency_key", order.IdempotencyKey),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return err
		}
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(policy, maxRetries), ctx))
	if err != nil {
		return domain.ExecutionEvent{}, fmt.Errorf("dispatcher: %d attempts exhausted: %w (%w)",
			attempt, err, domain.ErrDispatchTimeout)
	}
	return evt, nil
}
