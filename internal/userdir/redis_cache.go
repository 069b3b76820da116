package userdir

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProfileCache stores static profile fields. Presence is never cached.
type ProfileCache interface {
	// GetMany returns the cached profiles and the ids that missed.
	GetMany(ctx context.Context, ids []string) (map[string]Profile, []string, error)
	SetMany(ctx context.Context, profiles map[string]Profile) error
}

type RedisProfileCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisProfileCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisProfileCache {
	if prefix == "" {
		prefix = "userdir"
	}
	return &RedisProfileCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisProfileCache) BuildKeyByID(userID string) string {
	return fmt.Sprintf("%s:id:%s", c.prefix, userID)
}

func (c *RedisProfileCache) GetMany(ctx context.Context, ids []string) (map[string]Profile, []string, error) {
	if len(ids) == 0 {
		return map[string]Profile{}, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = c.BuildKeyByID(id)
	}

	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, ids, fmt.Errorf("failed to get from redis: %w", err)
	}
	return decodeProfiles(ids, vals)
}

func (c *RedisProfileCache) SetMany(ctx context.Context, profiles map[string]Profile) error {
	if len(profiles) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for id, p := range profiles {
		p.IsOnline = false
		p.LastActive = time.Time{}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("failed to marshal profile: %w", err)
		}
		pipe.Set(ctx, c.BuildKeyByID(id), data, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

// decodeProfiles pairs MGET results with ids. Undecodable entries count as
// misses.
func decodeProfiles(ids []string, vals []any) (map[string]Profile, []string, error) {
	hits := make(map[string]Profile, len(ids))
	var missing []string
	for i, id := range ids {
		var raw string
		if i < len(vals) {
			raw, _ = vals[i].(string)
		}
		if raw == "" {
			missing = append(missing, id)
			continue
		}
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			missing = append(missing, id)
			continue
		}
		hits[id] = p
	}
	return hits, missing, nil
}
