package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// recordIfAllowedScript trims expired members, checks the window count and
// records the new timestamps in a single atomic evaluation. Scores are
// nanosecond timestamps; member values carry a unique suffix so concurrent
// requests landing on the same nanosecond never collapse into one member.
var recordIfAllowedScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local member = ARGV[5]

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)
if count + n > limit then
  return {0, count}
end
for i = 1, n do
  redis.call("ZADD", key, now, member .. ":" .. i)
end
redis.call("PEXPIRE", key, math.ceil(window / 1000000))
return {1, count + n}
`)

// RedisStore is a sliding window store shared across processes, backed by a
// Redis sorted set per key.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore creates a Redis-backed store. All keys are namespaced under
// the given prefix (default "ratelimit").
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	p := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if p == "" {
		p = "ratelimit"
	}
	return &RedisStore{
		client: client,
		prefix: p,
	}
}

// RecordIfAllowed atomically checks and records via a Lua script.
func (s *RedisStore) RecordIfAllowed(ctx context.Context, key string, now time.Time, window time.Duration, limit, n int) (bool, int64, error) {
	raw, err := recordIfAllowedScript.Run(ctx, s.client,
		[]string{s.key(key)},
		now.UnixNano(),
		window.Nanoseconds(),
		limit,
		n,
		uuid.NewString(),
	).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := raw.([]any)
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected limiter script response shape: %T", raw)
	}

	allowed, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected limiter script allowed type: %T", values[0])
	}
	count, ok := values[1].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected limiter script count type: %T", values[1])
	}

	return allowed == 1, count, nil
}

// CountInWindow trims expired members and returns the remaining count.
func (s *RedisStore) CountInWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	now := time.Now()
	rkey := s.key(key)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, rkey, "-inf", fmt.Sprintf("%d", now.Add(-window).UnixNano()))
	card := pipe.ZCard(ctx, rkey)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return card.Val(), nil
}

// Delete removes all state for the given key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}

func (s *RedisStore) key(key string) string {
	return s.prefix + ":" + key
}

var _ Store = (*RedisStore)(nil)
