package ragcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is the Redis-backed context cache used in multi-worker
// deployments: an in-process map cannot be shared across workers, so the
// extracted context lives in an external key-value store with TTL.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an open Redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, chatID, categoryID string) (ContextMap, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(chatID, categoryID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var m ContextMap
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}
	return m, true, nil
}

func (c *RedisCache) Set(ctx context.Context, chatID, categoryID string, m ContextMap, ttl time.Duration) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(chatID, categoryID), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, chatID, categoryID string) error {
	if err := c.client.Del(ctx, cacheKey(chatID, categoryID)).Err(); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}
