package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// reconStream is the stream name consumed by the external reconciliation
// engine.
const reconStream = "recon:handoff"

// ReconBus implements domain.ReconPublisher using Redis Streams: durable,
// ordered delivery with approximate MAXLEN trimming.
type ReconBus struct {
	rdb    *redis.Client
	maxLen int64
}

// NewReconBus creates a ReconBus backed by the given Client. maxLen bounds
// the stream length via XADD MAXLEN ~.
func NewReconBus(c *Client, maxLen int64) *ReconBus {
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &ReconBus{rdb: c.rdb, maxLen: maxLen}
}

// Publish appends the recon payload to the hand-off stream.
func (b *ReconBus) Publish(ctx context.Context, payload domain.ReconPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("redis: encode recon payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: reconStream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: map[string]any{
			"correlation_id": payload.Order.CorrelationID,
			"payload":        data,
		},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: recon stream append: %w", err)
	}
	return nil
}

var _ domain.ReconPublisher = (*ReconBus)(nil)
