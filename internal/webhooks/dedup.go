package webhooks

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const TTLProcessedEvent = 48 * time.Hour

// Deduper remembers processor event ids that were fully handled. It is an
// optimization only: the state machines stay idempotent without it.
type Deduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: TTLProcessedEvent}
}

func (d *RedisDeduper) Seen(ctx context.Context, eventID string) (bool, error) {
	n, err := d.rdb.Exists(ctx, processedKey(eventID)).Result()
	return n > 0, err
}

func (d *RedisDeduper) MarkProcessed(ctx context.Context, eventID string) error {
	return d.rdb.Set(ctx, processedKey(eventID), time.Now().UTC().Format(time.RFC3339), d.ttl).Err()
}

func processedKey(eventID string) string {
	return "webhook:event:" + eventID
}
