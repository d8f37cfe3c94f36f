package killswitch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/tradexec/internal/notify"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (n *recordingNotifier) Publish(ctx context.Context, alert notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func newTestMonitor(t *testing.T) (*Monitor, *Switch, *recordingNotifier) {
	t.Helper()
	sw, _, _ := newTestSwitch(t)
	notifier := &recordingNotifier{}
	m := NewMonitor(sw, &stubHealth{}, notifier, MonitorConfig{
		Interval:            10 * time.Millisecond,
		MaxDispatchFailures: 3,
	}, testLogger())
	return m, sw, notifier
}

func TestMonitorTriggersAfterConsecutiveDispatchFailures(t *testing.T) {
	m, sw, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordDispatchFailure(ctx, "connection reset")
	m.RecordDispatchFailure(ctx, "connection reset")
	assert.Equal(t, StateActive, sw.CurrentState())

	m.RecordDispatchFailure(ctx, "connection reset")
	assert.Equal(t, StateKilled, sw.CurrentState())
	assert.Contains(t, sw.StateSnapshot().TriggerReason, "dispatch failures")
}

func TestMonitorSuccessResetsFailureCount(t *testing.T) {
	m, sw, _ := newTestMonitor(t)
	ctx := context.Background()

	m.RecordDispatchFailure(ctx, "connection reset")
	m.RecordDispatchFailure(ctx, "connection reset")
	m.RecordDispatchSuccess()
	m.RecordDispatchFailure(ctx, "connection reset")
	m.RecordDispatchFailure(ctx, "connection reset")

	assert.Equal(t, StateActive, sw.CurrentState(), "reset count must not accumulate across successes")
}

func TestMonitorHardBreachTriggersImmediately(t *testing.T) {
	m, sw, notifier := newTestMonitor(t)

	m.RecordHardBreach(context.Background(), "VAR_LIMIT: portfolio VaR 0.0700 exceeds limit 0.0500")

	assert.Equal(t, StateKilled, sw.CurrentState())
	assert.Contains(t, sw.StateSnapshot().TriggerReason, "hard risk breach")
	require.Equal(t, 1, notifier.count(), "operators must be told about the state change")
	assert.Equal(t, notify.SeverityCritical, notifier.alerts[0].Severity)
	assert.Equal(t, "kill_switch", notifier.alerts[0].Event)
}

func TestMonitorEscalatesDuringRecovery(t *testing.T) {
	sw, _, _ := newTestSwitch(t)
	ctx := context.Background()
	require.NoError(t, sw.Trigger(ctx, "feed loss"))
	require.NoError(t, sw.RequestRecovery(ctx, "secret-token"))

	// Stage-2 threshold already passed relative to a backdated recovery start.
	started := sw.StateSnapshot().RecoveryRequestedAt
	sw.nowFn = func() time.Time { return started.Add(time.Hour + time.Minute) }

	m := NewMonitor(sw, &stubHealth{checks: []Check{{Name: "memory", OK: true}}}, nil, MonitorConfig{
		Interval:            5 * time.Millisecond,
		MaxDispatchFailures: 3,
	}, testLogger())

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Run(runCtx)
	}()

	require.Eventually(t, func() bool {
		return sw.StateSnapshot().RecoveryStage == RecoveryStage2
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, 0.75, sw.PositionLimitFactor())
}
