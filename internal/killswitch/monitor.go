package killswitch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/tradexec/internal/notify"
)

// Notifier delivers operator alerts. Implemented by the notify package.
type Notifier interface {
	Publish(ctx context.Context, alert notify.Alert) error
}

// MonitorConfig holds the background monitor parameters.
type MonitorConfig struct {
	Interval            time.Duration // health poll cadence
	MaxDispatchFailures int           // consecutive adapter failures before auto-trigger
}

// Monitor runs the kill-switch housekeeping off the request path: it polls
// the health checks, advances the graduated recovery ramp, and fires the
// switch automatically on repeated adapter failures or reported hard
// breaches. The order pipeline only ever reads the switch; all automatic
// mutation funnels through here.
type Monitor struct {
	sw       *Switch
	health   HealthChecker
	notifier Notifier
	cfg      MonitorConfig
	logger   *slog.Logger

	dispatchFailures atomic.Int64

	mu           sync.Mutex
	healthySince time.Time
	lastState    State
}

// NewMonitor creates a Monitor for the given switch.
func NewMonitor(sw *Switch, health HealthChecker, notifier Notifier, cfg MonitorConfig, logger *slog.Logger) *Monitor {
	return &Monitor{
		sw:       sw,
		health:   health,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "killswitch_monitor")),
	}
}

// Run polls until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("kill switch monitor started", slog.Duration("interval", m.cfg.Interval))
	defer m.logger.Info("kill switch monitor stopped")

	m.mu.Lock()
	m.healthySince = time.Now()
	m.lastState = m.sw.CurrentState()
	m.mu.Unlock()

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Monitor) tick(ctx context.Context) {
	healthy := true
	for _, c := range m.health.Check(ctx) {
		if !c.OK {
			healthy = false
			m.logger.Warn("health check failing",
				slog.String("check", c.Name),
				slog.String("detail", c.Detail),
			)
		}
	}

	m.mu.Lock()
	if !healthy {
		m.healthySince = time.Now()
	}
	healthySince := m.healthySince
	m.mu.Unlock()

	if m.sw.CurrentState() == StateRecovering {
		if err := m.sw.Escalate(ctx, healthySince); err != nil {
			m.logger.Warn("recovery escalation failed", slog.String("error", err.Error()))
		}
	}

	m.announceStateChange(ctx)
}

// RecordDispatchFailure counts one adapter dispatch exhaustion. Once the
// consecutive count reaches the configured maximum the switch is triggered.
func (m *Monitor) RecordDispatchFailure(ctx context.Context, detail string) {
	n := m.dispatchFailures.Add(1)
	if m.cfg.MaxDispatchFailures > 0 && n >= int64(m.cfg.MaxDispatchFailures) {
		reason := fmt.Sprintf("repeated adapter dispatch failures (%d consecutive): %s", n, detail)
		if err := m.sw.Trigger(ctx, reason); err != nil {
			m.logger.Error("auto-trigger failed", slog.String("error", err.Error()))
		}
		m.announceStateChange(ctx)
	}
}

// RecordDispatchSuccess resets the consecutive failure count.
func (m *Monitor) RecordDispatchSuccess() {
	m.dispatchFailures.Store(0)
}

// RecordHardBreach triggers the switch for a risk HALT.
func (m *Monitor) RecordHardBreach(ctx context.Context, detail string) {
	if err := m.sw.Trigger(ctx, "hard risk breach: "+detail); err != nil {
		m.logger.Error("auto-trigger failed", slog.String("error", err.Error()))
	}
	m.announceStateChange(ctx)
}

// announceStateChange notifies operators when the switch state changed since
// the last observation.
func (m *Monitor) announceStateChange(ctx context.Context) {
	state := m.sw.CurrentState()

	m.mu.Lock()
	changed := state != m.lastState
	m.lastState = state
	m.mu.Unlock()

	if !changed || m.notifier == nil {
		return
	}
	snap := m.sw.StateSnapshot()
	severity := notify.SeverityInfo
	switch state {
	case StateKilled:
		severity = notify.SeverityCritical
	case StateRecovering:
		severity = notify.SeverityWarning
	}
	alert := notify.Alert{
		Event:    "kill_switch",
		Severity: severity,
		Title:    "Kill switch " + string(state),
		Fields: []notify.Field{
			{Key: "stage", Value: string(snap.RecoveryStage)},
			{Key: "limit_factor", Value: fmt.Sprintf("%.2f", snap.PositionLimitFactor)},
		},
	}
	if snap.TriggerReason != "" {
		alert.Body = snap.TriggerReason
	}
	if err := m.notifier.Publish(ctx, alert); err != nil {
		m.logger.Warn("kill switch notification failed", slog.String("error", err.Error()))
	}
}
