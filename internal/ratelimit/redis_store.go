// Package ratelimit: Redis-backed counter store.
//
// This file implements CounterStore on Redis for deployments where the
// SQLite document store is not shared across instances. It also implements
// AtomicCounterStore via a Lua script, which the limiter prefers because it
// closes the read-then-write overshoot race.
package ratelimit

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// incrIfBelowScript atomically checks the current count against the limit
// and increments only when still below it. Returns 1 when the slot was
// consumed, 0 when the quota is exhausted.
var incrIfBelowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
  return 0
end
redis.call("INCR", KEYS[1])
return 1
`)

// RedisCounterStore keeps quota counters in Redis. Keys embed the window so
// a new daily window naturally starts from an absent (zero) key; stale
// windows age out via TTL instead of lingering like document rows.
type RedisCounterStore struct {
	client *redis.Client
	prefix string
}

// NewRedisCounterStore connects a counter store to the given Redis address.
func NewRedisCounterStore(addr, password, prefix string) (*RedisCounterStore, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("redis counter store requires an address")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "genbackend:quota"
	}
	return &RedisCounterStore{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
	}, nil
}

func (s *RedisCounterStore) redisKey(key, window string) string {
	if window == "" {
		return s.prefix + ":" + key
	}
	return s.prefix + ":" + key + ":" + window
}

// Count returns the stored count for (key, window), zero when absent.
func (s *RedisCounterStore) Count(ctx context.Context, key, window string) (int64, error) {
	n, err := s.client.Get(ctx, s.redisKey(key, window)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Put overwrites the counter for (key, window).
func (s *RedisCounterStore) Put(ctx context.Context, key, window string, count int64) error {
	return s.client.Set(ctx, s.redisKey(key, window), count, 0).Err()
}

// IncrementIfBelow implements AtomicCounterStore with a single script call.
func (s *RedisCounterStore) IncrementIfBelow(ctx context.Context, key, window string, limit int64) (bool, error) {
	res, err := incrIfBelowScript.Run(ctx, s.client, []string{s.redisKey(key, window)}, limit).Int64()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Decrement releases one consumed slot for (key, window).
func (s *RedisCounterStore) Decrement(ctx context.Context, key, window string) error {
	return s.client.Decr(ctx, s.redisKey(key, window)).Err()
}

// Close releases the underlying Redis connection.
func (s *RedisCounterStore) Close() error { return s.client.Close() }
