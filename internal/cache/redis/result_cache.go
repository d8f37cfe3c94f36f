package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/tradexec/internal/domain"
)

// ResultCache implements domain.ResultCache on Redis. Recorded pipeline
// results are keyed by idempotency key with a TTL, so duplicate intents
// collapse onto the first execution even across process restarts.
type ResultCache struct {
	rdb *redis.Client
}

// NewResultCache creates a ResultCache backed by the given Client.
func NewResultCache(c *Client) *ResultCache {
	return &ResultCache{rdb: c.rdb}
}

func resultKey(idempotencyKey string) string {
	return "result:" + idempotencyKey
}

// Get returns the recorded result for the key, or nil when none exists.
func (rc *ResultCache) Get(ctx context.Context, idempotencyKey string) (*domain.PipelineResult, error) {
	data, err := rc.rdb.Get(ctx, resultKey(idempotencyKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get result %s: %w", idempotencyKey, err)
	}

	var res domain.PipelineResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("redis: decode result %s: %w", idempotencyKey, err)
	}
	return &res, nil
}

// Set records the result under the key with the given TTL. SETNX semantics
// keep the first recorded result authoritative.
func (rc *ResultCache) Set(ctx context.Context, idempotencyKey string, result domain.PipelineResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("redis: encode result %s: %w", idempotencyKey, err)
	}
	if err := rc.rdb.SetNX(ctx, resultKey(idempotencyKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set result %s: %w", idempotencyKey, err)
	}
	return nil
}

var _ domain.ResultCache = (*ResultCache)(nil)
