package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/support-desk/internal/ratelimit"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// RateLimitConfig configures the login limiter. Defaults allow 100 attempts
// per client IP in each 15 minute window.
type RateLimitConfig struct {
	Enabled    bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Window     time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"15m"`
	Max        int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	Store      string        `env:"RATE_LIMIT_STORE" envDefault:"memory"`
	FailPolicy string        `env:"RATE_LIMIT_FAIL_POLICY" envDefault:"closed"`
	Prefix     string        `env:"RATE_LIMIT_PREFIX" envDefault:"rl:login"`
}

var ErrInvalidRateLimitStore = errors.New("RATE_LIMIT_STORE must be memory or redis")

func (c RateLimitConfig) validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW: %w", ratelimit.ErrInvalidWindow)
	}
	if c.Max <= 0 {
		return fmt.Errorf("RATE_LIMIT_MAX: %w", ratelimit.ErrInvalidMax)
	}
	if c.Store != StoreMemory && c.Store != StoreRedis {
		return ErrInvalidRateLimitStore
	}
	if _, err := ratelimit.ParseFailPolicy(c.FailPolicy); err != nil {
		return fmt.Errorf("RATE_LIMIT_FAIL_POLICY: %w", err)
	}
	return nil
}

// Limiter converts the environment settings into a ratelimit.Config.
func (c RateLimitConfig) Limiter() ratelimit.Config {
	policy, _ := ratelimit.ParseFailPolicy(c.FailPolicy)
	return ratelimit.Config{
		Window:     c.Window,
		Max:        c.Max,
		FailPolicy: policy,
		Prefix:     c.Prefix,
	}
}
