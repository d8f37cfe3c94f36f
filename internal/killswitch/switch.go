// Package killswitch implements the process-wide trading circuit breaker: an
// ACTIVE/KILLED/RECOVERING state machine with durable persistence, health-
// gated recovery, and staged restoration of position limits.
package killswitch

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// State is the kill-switch state.
type State string

const (
	StateActive     State = "ACTIVE"
	StateKilled     State = "KILLED"
	StateRecovering State = "RECOVERING"
)

// RecoveryStage tracks progress through the graduated position-limit ramp.
type RecoveryStage string

const (
	RecoveryStageNone RecoveryStage = "NONE"
	RecoveryStage1    RecoveryStage = "STAGE_1"
	RecoveryStage2    RecoveryStage = "STAGE_2"
	RecoveryStageDone RecoveryStage = "DONE"
)

// Position-limit factors for each recovery stage.
const (
	factorStage1 = 0.5
	factorStage2 = 0.75
	factorFull   = 1.0
)

// Snapshot is a point-in-time copy of the switch state. It is also the
// persisted representation.
type Snapshot struct {
	State               State         `json:"state"`
	TriggeredAt         time.Time     `json:"triggered_at,omitzero"`
	TriggerReason       string        `json:"trigger_reason,omitempty"`
	RecoveryRequestedAt time.Time     `json:"recovery_requested_at,omitzero"`
	PositionLimitFactor float64       `json:"position_limit_factor"`
	RecoveryStage       RecoveryStage `json:"recovery_stage"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// Persister durably records switch state. Persist must complete before the
// in-memory state is considered committed (write-then-commit).
type Persister interface {
	Persist(snap Snapshot) error
	Load() (Snapshot, bool, error)
}

// HealthChecker reports the current health dimensions. Any failing check
// blocks recovery transitions.
type HealthChecker interface {
	Check(ctx context.Context) []Check
}

// Config holds the operator-facing switch parameters.
type Config struct {
	ApprovalToken string        // secret required by RequestRecovery
	Cooldown      time.Duration // minimum time in RECOVERING before completion
	Stage2After   time.Duration // continuous healthy time before factor 0.75
	FullAfter     time.Duration // continuous healthy time before factor 1.0
}

// Switch is the kill-switch state machine. All mutation goes through its
// transition methods under a single mutex; at most one transition is in
// flight at a time. Reads never block longer than an in-flight transition.
type Switch struct {
	mu      sync.Mutex
	snap    Snapshot
	cfg     Config
	store   Persister
	health  HealthChecker
	audit   domain.AuditSink
	logger  *slog.Logger
	nowFn   func() time.Time
}

// New creates a Switch, restoring persisted state when present. A state file
// that exists but cannot be read fails closed: the switch starts KILLED until
// an operator intervenes. A missing file starts ACTIVE.
func New(cfg Config, store Persister, health HealthChecker, audit domain.AuditSink, logger *slog.Logger) (*Switch, error) {
	s := &Switch{
		cfg:    cfg,
		store:  store,
		health: health,
		audit:  audit,
		logger: logger.With(slog.String("component", "kill_switch")),
		nowFn:  time.Now,
	}

	snap, found, err := store.Load()
	switch {
	case err != nil:
		s.logger.Error("persisted state unreadable, failing closed",
			slog.String("error", err.Error()),
		)
		s.snap = Snapshot{
			State:         StateKilled,
			TriggeredAt:   s.nowFn().UTC(),
			TriggerReason: "persisted state unreadable: " + err.Error(),
			RecoveryStage: RecoveryStageNone,
			UpdatedAt:     s.nowFn().UTC(),
		}
		if perr := store.Persist(s.snap); perr != nil {
			return nil, fmt.Errorf("killswitch: persist fail-safe state: %w", perr)
		}
	case found:
		s.snap = snap
	default:
		s.snap = Snapshot{
			State:               StateActive,
			PositionLimitFactor: factorFull,
			RecoveryStage:       RecoveryStageNone,
			UpdatedAt:           s.nowFn().UTC(),
		}
		if perr := store.Persist(s.snap); perr != nil {
			return nil, fmt.Errorf("killswitch: persist initial state: %w", perr)
		}
	}

	return s, nil
}

// CurrentState returns the current state. This is the pipeline's only
// interaction with the switch.
func (s *Switch) CurrentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap.State
}

// StateSnapshot returns a copy of the full switch state.
func (s *Switch) StateSnapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// PositionLimitFactor returns the factor applied to position limits, in
// [0.0, 1.0]. KILLED reports 0.
func (s *Switch) PositionLimitFactor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap.State == StateKilled {
		return 0
	}
	return s.snap.PositionLimitFactor
}

// Trigger moves the switch to KILLED from any state. Triggering an already
// KILLED switch is a no-op that still re-records the reason when it differs.
func (s *Switch) Trigger(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State == StateKilled {
		if s.snap.TriggerReason == reason {
			return nil
		}
		next := s.snap
		next.TriggerReason = reason
		next.UpdatedAt = s.nowFn().UTC()
		return s.commit(ctx, next, "re-trigger")
	}

	next := Snapshot{
		State:               StateKilled,
		TriggeredAt:         s.nowFn().UTC(),
		TriggerReason:       reason,
		PositionLimitFactor: 0,
		RecoveryStage:       RecoveryStageNone,
		UpdatedAt:           s.nowFn().UTC(),
	}
	s.logger.WarnContext(ctx, "kill switch triggered", slog.String("reason", reason))
	return s.commit(ctx, next, "trigger")
}

// RequestRecovery moves KILLED to RECOVERING. It requires the configured
// approval token and a passing health check; either failing leaves the state
// untouched. Recovery starts at stage 1 with half position limits.
func (s *Switch) RequestRecovery(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != StateKilled {
		return fmt.Errorf("killswitch: request recovery from %s: only KILLED may recover", s.snap.State)
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.ApprovalToken)) != 1 {
		s.logger.WarnContext(ctx, "recovery request with invalid approval token")
		return fmt.Errorf("killswitch: INVALID_APPROVAL: %w", domain.ErrInvalidApproval)
	}
	if err := s.checkHealth(ctx); err != nil {
		return fmt.Errorf("killswitch: request recovery: %w", err)
	}

	next := s.snap
	next.State = StateRecovering
	next.RecoveryRequestedAt = s.nowFn().UTC()
	next.PositionLimitFactor = factorStage1
	next.RecoveryStage = RecoveryStage1
	next.UpdatedAt = s.nowFn().UTC()

	s.logger.InfoContext(ctx, "kill switch recovery requested",
		slog.Duration("cooldown", s.cfg.Cooldown),
	)
	return s.commit(ctx, next, "request_recovery")
}

// Escalate advances the position-limit ramp while RECOVERING. healthySince is
// the instant from which health checks have passed continuously; the monitor
// supplies it. Escalation never lowers the factor.
func (s *Switch) Escalate(ctx context.Context, healthySince time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != StateRecovering {
		return nil
	}

	healthyFor := s.nowFn().Sub(laterOf(healthySince, s.snap.RecoveryRequestedAt))
	next := s.snap
	switch s.snap.RecoveryStage {
	case RecoveryStage1:
		if healthyFor < s.cfg.Stage2After {
			return nil
		}
		next.PositionLimitFactor = factorStage2
		next.RecoveryStage = RecoveryStage2
	case RecoveryStage2:
		if healthyFor < s.cfg.FullAfter {
			return nil
		}
		next.PositionLimitFactor = factorFull
		next.RecoveryStage = RecoveryStageDone
	default:
		return nil
	}
	next.UpdatedAt = s.nowFn().UTC()

	s.logger.InfoContext(ctx, "kill switch recovery stage advanced",
		slog.String("stage", string(next.RecoveryStage)),
		slog.Float64("position_limit_factor", next.PositionLimitFactor),
	)
	return s.commit(ctx, next, "escalate")
}

// CompleteRecovery moves RECOVERING to ACTIVE once the cooldown has elapsed
// and every health check passes. The trigger reason is cleared.
func (s *Switch) CompleteRecovery(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap.State != StateRecovering {
		return fmt.Errorf("killswitch: complete recovery from %s: only RECOVERING may complete", s.snap.State)
	}
	if since := s.nowFn().Sub(s.snap.RecoveryRequestedAt); since < s.cfg.Cooldown {
		return fmt.Errorf("killswitch: cooldown not elapsed (%s of %s)", since.Round(time.Second), s.cfg.Cooldown)
	}
	if err := s.checkHealth(ctx); err != nil {
		return fmt.Errorf("killswitch: complete recovery: %w", err)
	}

	next := s.snap
	next.State = StateActive
	next.TriggerReason = ""
	next.UpdatedAt = s.nowFn().UTC()

	s.logger.InfoContext(ctx, "kill switch recovery completed",
		slog.Float64("position_limit_factor", next.PositionLimitFactor),
	)
	return s.commit(ctx, next, "complete_recovery")
}

// checkHealth runs every health dimension and reports each failing one by
// name, never a generic failure.
func (s *Switch) checkHealth(ctx context.Context) error {
	if s.health == nil {
		return nil
	}
	var failing []string
	for _, c := range s.health.Check(ctx) {
		if !c.OK {
			failing = append(failing, fmt.Sprintf("%s (%s)", c.Name, c.Detail))
		}
	}
	if len(failing) > 0 {
		return fmt.Errorf("%w: %v", domain.ErrHealthCheck, failing)
	}
	return nil
}

// commit persists the candidate state, then adopts it in memory and appends
// an audit entry. Persist failure aborts the transition entirely.
func (s *Switch) commit(ctx context.Context, next Snapshot, transition string) error {
	if err := s.store.Persist(next); err != nil {
		return fmt.Errorf("killswitch: persist %s: %w", transition, err)
	}
	prev := s.snap
	s.snap = next

	if s.audit != nil {
		entry := domain.AuditEntry{
			TS:   next.UpdatedAt,
			Kind: domain.AuditKindKillSwitch,
			Payload: map[string]any{
				"transition":            transition,
				"from":                  string(prev.State),
				"to":                    string(next.State),
				"trigger_reason":        next.TriggerReason,
				"recovery_stage":        string(next.RecoveryStage),
				"position_limit_factor": next.PositionLimitFactor,
			},
		}
		if err := s.audit.Append(ctx, entry); err != nil {
			s.logger.WarnContext(ctx, "kill switch audit append failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
