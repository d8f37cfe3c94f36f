package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

const (
	// IntentStream is the stream upstream strategies append order intents to.
	IntentStream = "intents:incoming"

	// CommandStream is the stream operators append kill-switch commands to.
	CommandStream = "killswitch:commands"
)

// StreamMessage is one raw entry read from a stream. Payload is the JSON body
// as appended by the producer.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// StreamConsumer reads a Redis stream through a consumer group, so entries
// that were delivered but never acknowledged are redelivered after a crash.
type StreamConsumer struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

// NewStreamConsumer creates a StreamConsumer for the given stream reading as
// the group/consumer pair.
func NewStreamConsumer(c *Client, stream, group, consumer string) *StreamConsumer {
	return &StreamConsumer{rdb: c.rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup creates the consumer group at the start of the stream if it
// does not exist yet.
func (sc *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := sc.rdb.XGroupCreateMkStream(ctx, sc.stream, sc.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redis: create group for %s: %w", sc.stream, err)
	}
	return nil
}

// Read blocks until up to count entries are available and returns them. It
// returns an empty slice (not an error) when the blocking read is interrupted.
func (sc *StreamConsumer) Read(ctx context.Context, count int64) ([]StreamMessage, error) {
	args := &redis.XReadGroupArgs{
		Group:    sc.group,
		Consumer: sc.consumer,
		Streams:  []string{sc.stream, ">"},
		Count:    count,
		Block:    0,
	}

	results, err := sc.rdb.XReadGroup(ctx, args).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read stream %s: %w", sc.stream, err)
	}

	var out []StreamMessage
	for _, s := range results {
		for _, msg := range s.Messages {
			payload, ok := msg.Values["payload"]
			if !ok {
				continue
			}
			var data []byte
			switch v := payload.(type) {
			case string:
				data = []byte(v)
			case []byte:
				data = v
			default:
				continue
			}
			out = append(out, StreamMessage{ID: msg.ID, Payload: data})
		}
	}
	return out, nil
}

// Ack marks an entry as processed. Intent replays after a lost ack collapse
// onto the recorded pipeline result via the idempotency key, so Ack failures
// are safe to retry.
func (sc *StreamConsumer) Ack(ctx context.Context, id string) error {
	if err := sc.rdb.XAck(ctx, sc.stream, sc.group, id).Err(); err != nil {
		return fmt.Errorf("redis: ack %s on %s: %w", id, sc.stream, err)
	}
	return nil
}
