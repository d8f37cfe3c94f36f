package adapter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// flakyAdapter fails a configured number of submissions before succeeding.
type flakyAdapter struct {
	mu       sync.Mutex
	failures int
	calls    int
	event    domain.ExecutionEvent
}

func (a *flakyAdapter) Name() string { return "flaky" }

func (a *flakyAdapter) Submit(ctx context.Context, order domain.Order) (domain.ExecutionEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.calls <= a.failures {
		return domain.ExecutionEvent{}, errors.New("connection reset")
	}
	return a.event, nil
}

func (a *flakyAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func fastDispatchConfig() DispatchConfig {
	return DispatchConfig{
		MaxAttempts:    3,
		AttemptTimeout: time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	}
}

func dispatchOrder() domain.Order {
	return domain.Order{
		OrderID:        "ord-1",
		IdempotencyKey: "key-1",
		Intent: domain.OrderIntent{
			Symbol:   "BTC-USD",
			Side:     domain.SideBuy,
			Quantity: 1,
		},
		State: domain.OrderStateRouted,
	}
}

func TestDispatchSucceedsFirstAttempt(t *testing.T) {
	target := &flakyAdapter{
		event: domain.ExecutionEvent{Kind: domain.ExecutionEventAck, IdempotencyKey: "key-1"},
	}
	d := NewDispatcher(fastDispatchConfig(), testLogger())

	evt, err := d.Dispatch(context.Background(), target, dispatchOrder())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionEventAck, evt.Kind)
	assert.Equal(t, 1, target.callCount())
}

func TestDispatchRetriesTransientFailures(t *testing.T) {
	target := &flakyAdapter{
		failures: 2,
		event:    domain.ExecutionEvent{Kind: domain.ExecutionEventFill, IdempotencyKey: "key-1"},
	}
	d := NewDispatcher(fastDispatchConfig(), testLogger())

	evt, err := d.Dispatch(context.Background(), target, dispatchOrder())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionEventFill, evt.Kind)
	assert.Equal(t, 3, target.callCount())
}

func TestDispatchExhaustionReturnsTimeout(t *testing.T) {
	target := &flakyAdapter{failures: 100}
	d := NewDispatcher(fastDispatchConfig(), testLogger())

	_, err := d.Dispatch(context.Background(), target, dispatchOrder())
	require.ErrorIs(t, err, domain.ErrDispatchTimeout)
	assert.Equal(t, 3, target.callCount(), "attempt bound must include the first attempt")
}

func TestDispatchRejectEventIsNotRetried(t *testing.T) {
	target := &flakyAdapter{
		event: domain.ExecutionEvent{
			Kind:           domain.ExecutionEventReject,
			IdempotencyKey: "key-1",
			Reason:         "symbol halted",
		},
	}
	d := NewDispatcher(fastDispatchConfig(), testLogger())

	evt, err := d.Dispatch(context.Background(), target, dispatchOrder())
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionEventReject, evt.Kind)
	assert.Equal(t, 1, target.callCount())
}

func TestDispatchStopsOnCancelledContext(t *testing.T) {
	target := &flakyAdapter{failures: 100}
	cfg := fastDispatchConfig()
	cfg.InitialBackoff = 50 * time.Millisecond
	d := NewDispatcher(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := d.Dispatch(ctx, target, dispatchOrder())
	require.Error(t, err)
	assert.LessOrEqual(t, target.callCount(), 1)
}
