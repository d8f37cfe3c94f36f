package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/alanyoungcy/tradexec/internal/cache/redis"
	"github.com/alanyoungcy/tradexec/internal/domain"
	"github.com/alanyoungcy/tradexec/internal/killswitch"
)

// killSwitchCommand is the wire shape of one operator command.
type killSwitchCommand struct {
	// Action is "trigger", "request_recovery", or "complete_recovery".
	Action string `json:"action"`
	// Reason is required for trigger.
	Reason string `json:"reason,omitempty"`
	// Token is the approval token for request_recovery.
	Token string `json:"token,omitempty"`
}

// Admin consumes operator commands for the kill switch from the durable
// command stream. Commands are acknowledged whether they succeed or not; the
// switch is idempotent for triggers, and a failed recovery request must be
// re-issued deliberately rather than replayed.
type Admin struct {
	bus    *redis.StreamConsumer
	safety *killswitch.Switch
	logger *slog.Logger
}

// NewAdmin creates an Admin over the given consumer and switch.
func NewAdmin(bus *redis.StreamConsumer, safety *killswitch.Switch, logger *slog.Logger) *Admin {
	return &Admin{
		bus:    bus,
		safety: safety,
		logger: logger.With(slog.String("component", "killswitch_admin")),
	}
}

// Run consumes commands until the context is cancelled.
func (ad *Admin) Run(ctx context.Context) error {
	if err := ad.bus.EnsureGroup(ctx); err != nil {
		return err
	}
	ad.logger.Info("kill switch admin started")
	defer ad.logger.Info("kill switch admin stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := ad.bus.Read(ctx, 1)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			ad.logger.Warn("command read failed", slog.String("error", err.Error()))
			continue
		}

		for _, msg := range msgs {
			ad.handle(ctx, msg)
		}
	}
}

func (ad *Admin) handle(ctx context.Context, msg redis.StreamMessage) {
	defer func() {
		if err := ad.bus.Ack(ctx, msg.ID); err != nil {
			ad.logger.Warn("command ack failed",
				slog.String("stream_id", msg.ID),
				slog.String("error", err.Error()),
			)
		}
	}()

	var cmd killSwitchCommand
	if err := json.Unmarshal(msg.Payload, &cmd); err != nil {
		ad.logger.Warn("dropping malformed command",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	var err error
	switch cmd.Action {
	case "trigger":
		reason := cmd.Reason
		if reason == "" {
			reason = "operator trigger"
		}
		err = ad.safety.Trigger(ctx, reason)
	case "request_recovery":
		err = ad.safety.RequestRecovery(ctx, cmd.Token)
	case "complete_recovery":
		err = ad.safety.CompleteRecovery(ctx)
	default:
		ad.logger.Warn("unknown command action", slog.String("action", cmd.Action))
		return
	}

	if err != nil {
		// Invalid approval tokens are logged without detail beyond the
		// sentinel so the log never hints at the expected token.
		if errors.Is(err, domain.ErrInvalidApproval) {
			ad.logger.Warn("recovery request denied", slog.String("action", cmd.Action))
			return
		}
		ad.logger.Warn("command failed",
			slog.String("action", cmd.Action),
			slog.String("error", err.Error()),
		)
		return
	}
	ad.logger.Info("command applied",
		slog.String("action", cmd.Action),
		slog.String("state", string(ad.safety.CurrentState())),
	)
}
