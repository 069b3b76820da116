package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

// Redis key pattern:
// presence:user:{user_id}   HASH
//   - is_online: "1" | "0"
//   - last_active: unix milliseconds

const (
	fieldIsOnline   = "is_online"
	fieldLastActive = "last_active"
)

func userKey(userID string) string {
	return fmt.Sprintf("presence:user:%s", userID)
}

// RedisStore keeps presence in one hash per user. An optional TTL lets
// records of users who vanish without a disconnect expire.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Set(ctx context.Context, userID string, rec Record) error {
	key := userKey(userID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, recordToHash(rec))
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return chaterr.StoreUnavailable("set presence", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, userKey(userID)).Result()
	if err != nil {
		return Record{}, chaterr.StoreUnavailable("get presence", err)
	}
	return recordFromHash(fields)
}

func recordToHash(rec Record) map[string]any {
	online := "0"
	if rec.IsOnline {
		online = "1"
	}
	return map[string]any{
		fieldIsOnline:   online,
		fieldLastActive: rec.LastActive.UnixMilli(),
	}
}

func recordFromHash(fields map[string]string) (Record, error) {
	var rec Record
	if len(fields) == 0 {
		return rec, nil
	}
	rec.IsOnline = fields[fieldIsOnline] == "1"
	if raw := fields[fieldLastActive]; raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse %s %q: %w", fieldLastActive, raw, err)
		}
		rec.LastActive = time.UnixMilli(ms).UTC()
	}
	return rec, nil
}
