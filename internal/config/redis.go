package config

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig locates the Redis server used for shared rate limiting and the
// response cache.
type RedisConfig struct {
	URL            string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"2s"`
}

var ErrRedisNotReady = errors.New("redis did not answer ping")

// NewRedisClient parses the connection URL and pings the server once with
// ConnectTimeout. Callers decide whether a failure is fatal; the response
// cache degrades to a no-op while a redis-backed limiter cannot start.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrRedisNotReady, err)
	}
	return client, nil
}
