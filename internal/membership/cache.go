package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-dm/internal/roomid"
)

const pairKeyPrefix = "membership:pair:"

// Cache stores guard answers per unordered pair.
type Cache interface {
	// Get returns (connected, true, nil) on hit and (false, false, nil) on miss.
	Get(ctx context.Context, a, b string) (bool, bool, error)
	Set(ctx context.Context, a, b string, connected bool) error
	Invalidate(ctx context.Context, a, b string) error
}

// RedisCache implements Cache with one string key per pair.
type RedisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// pairKey reuses the room hash so that both orders share one key.
func pairKey(a, b string) (string, error) {
	id, err := roomid.Compute(a, b)
	if err != nil {
		return "", err
	}
	return pairKeyPrefix + id, nil
}

func (c *RedisCache) Get(ctx context.Context, a, b string) (bool, bool, error) {
	key, err := pairKey(a, b)
	if err != nil {
		return false, false, err
	}
	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil
		}
		return false, false, fmt.Errorf("redis get membership: %w", err)
	}
	return val == "1", true, nil
}

func (c *RedisCache) Set(ctx context.Context, a, b string, connected bool) error {
	key, err := pairKey(a, b)
	if err != nil {
		return err
	}
	val := "0"
	if connected {
		val = "1"
	}
	if err := c.client.Set(ctx, key, val, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set membership: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, a, b string) error {
	key, err := pairKey(a, b)
	if err != nil {
		return err
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del membership: %w", err)
	}
	return nil
}
