package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript increments the window counter and sets its expiry on first use,
// in one round trip.
var incrScript = redis.NewScript(`
    local n = redis.call('INCR', KEYS[1])
    if n == 1 then
        redis.call('PEXPIRE', KEYS[1], ARGV[1])
    end
    return n
`)

// RedisStore shares counters between API instances. Each window gets its own
// key suffixed with the window start in unix milliseconds, which expires once
// the window is over. Millisecond suffixes keep sub-second windows apart.
type RedisStore struct {
	rdb redis.Scripter
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb redis.Scripter) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Increment runs the counter script for the window starting at windowStart.
func (s *RedisStore) Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := key + ":" + strconv.FormatInt(windowStart.UnixMilli(), 10)
	return incrScript.Run(ctx, s.rdb, []string{k}, window.Milliseconds()).Int64()
}
