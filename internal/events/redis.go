package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher appends outcome events to a Redis stream.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// NewRedisPublisher constructs a Redis stream publisher. maxLen <= 0 leaves
// the stream unbounded.
func NewRedisPublisher(client redis.Cmdable, stream string, maxLen int64) *RedisPublisher {
	if stream == "" {
		stream = "purchase_outcomes"
	}
	return &RedisPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
	}
}

// Publish appends the event to the stream.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"saga_id":           ev.SagaID,
			"user":              ev.User,
			"product_id":        ev.ProductID,
			"quantity":          ev.Quantity,
			"success":           ev.Success,
			"reason":            ev.Reason,
			"steps_compensated": ev.StepsCompensated,
			"finished_at":       ev.FinishedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	return p.client.XAdd(ctx, args).Err()
}
