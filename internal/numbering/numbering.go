package numbering

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter issues display ticket numbers from a per-(organization, service,
// date) Redis sequence. Numbers are presentation only; queue order lives in
// the aggregate.
type Counter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCounter(client *redis.Client) *Counter {
	return &Counter{client: client, ttl: 48 * time.Hour}
}

func (c *Counter) Next(ctx context.Context, organizationID, serviceID, date string) (int64, error) {
	key := "queue:ticketno:" + organizationID + ":" + serviceID + ":" + date
	seq, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if seq == 1 {
		// Day sequences expire on their own; the key never needs cleanup.
		_ = c.client.Expire(ctx, key, c.ttl).Err()
	}
	return seq, nil
}
