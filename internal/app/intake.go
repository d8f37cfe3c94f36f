package app

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/tradexec/internal/cache/redis"
	"github.com/alanyoungcy/tradexec/internal/domain"
	"github.com/alanyoungcy/tradexec/internal/pipeline"
)

// intakeBatch bounds how many intents one read pulls off the stream.
const intakeBatch = 16

// Intake consumes order intents from the durable intent stream and runs each
// through the pipeline. Every message is acknowledged after its result is
// produced; a crash between execution and ack replays the intent, which then
// collapses onto the recorded result via its idempotency key.
type Intake struct {
	bus    *redis.StreamConsumer
	orch   *pipeline.Orchestrator
	logger *slog.Logger
}

// NewIntake creates an Intake over the given consumer and orchestrator.
func NewIntake(bus *redis.StreamConsumer, orch *pipeline.Orchestrator, logger *slog.Logger) *Intake {
	return &Intake{
		bus:    bus,
		orch:   orch,
		logger: logger.With(slog.String("component", "intent_intake")),
	}
}

// Run consumes intents until the context is cancelled.
func (in *Intake) Run(ctx context.Context) error {
	if err := in.bus.EnsureGroup(ctx); err != nil {
		return err
	}
	in.logger.Info("intent intake started")
	defer in.logger.Info("intent intake stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := in.bus.Read(ctx, intakeBatch)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			in.logger.Warn("intent read failed", slog.String("error", err.Error()))
			continue
		}

		for _, msg := range msgs {
			in.handle(ctx, msg)
		}
	}
}

// handle executes one raw intent and acknowledges it. Malformed payloads are
// acknowledged too; replaying them can never succeed.
func (in *Intake) handle(ctx context.Context, msg redis.StreamMessage) {
	var intent domain.OrderIntent
	if err := json.Unmarshal(msg.Payload, &intent); err != nil {
		in.logger.Warn("dropping malformed intent",
			slog.String("stream_id", msg.ID),
			slog.String("error", err.Error()),
		)
		in.ack(ctx, msg.ID)
		return
	}

	result := in.orch.Execute(ctx, intent)

	in.logger.Info("intent processed",
		slog.String("intent_id", intent.IntentID),
		slog.String("correlation_id", result.CorrelationID),
		slog.Bool("success", result.Success),
		slog.String("stage_reached", result.StageReached.String()),
		slog.String("reason_code", string(result.ReasonCode)),
	)

	in.ack(ctx, msg.ID)
}

func (in *Intake) ack(ctx context.Context, id string) {
	if err := in.bus.Ack(ctx, id); err != nil {
		in.logger.Warn("intent ack failed",
			slog.String("stream_id", id),
			slog.String("error", err.Error()),
		)
	}
}
