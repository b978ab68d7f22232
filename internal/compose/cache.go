package compose

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DraftCache stores composed drafts.
type DraftCache interface {
	Get(ctx context.Context, key string) (Draft, bool, error)
	Set(ctx context.Context, key string, draft Draft, ttl time.Duration) error
}

// RedisDraftCache keeps drafts as JSON strings in Redis.
type RedisDraftCache struct {
	client redis.Cmdable
}

// NewRedisDraftCache wraps a go-redis client.
func NewRedisDraftCache(client redis.Cmdable) *RedisDraftCache {
	return &RedisDraftCache{client: client}
}

// Get returns ok=false on a miss.
func (c *RedisDraftCache) Get(ctx context.Context, key string) (Draft, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Draft{}, false, nil
	}
	if err != nil {
		return Draft{}, false, err
	}
	var draft Draft
	if err := json.Unmarshal(raw, &draft); err != nil {
		return Draft{}, false, err
	}
	return draft, true, nil
}

// Set stores draft for ttl. A zero ttl keeps it until evicted.
func (c *RedisDraftCache) Set(ctx context.Context, key string, draft Draft, ttl time.Duration) error {
	raw, err := json.Marshal(draft)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, ttl).Err()
}
