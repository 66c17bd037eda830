package counter

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrWithExpiry increments the counter and attaches the TTL only when the
// increment created the key. Running as a Lua script keeps the pair atomic, so
// concurrent first-increments cannot race to set conflicting TTLs or leave a
// counter without an expiry.
var incrWithExpiry = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// RedisCounterStore is the production implementation of ports.CounterStore,
// sharing counters across instances.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore constructs a Redis-backed counter store.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Increment atomically bumps the counter, setting the window TTL on creation.
func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	count, err := incrWithExpiry.Run(ctx, s.client, []string{key}, window.Milliseconds()).Int()
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Count returns the current counter value, zero if the key is absent.
func (s *RedisCounterStore) Count(ctx context.Context, key string) (int, error) {
	count, err := s.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Reset clears the counter for a key.
func (s *RedisCounterStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
