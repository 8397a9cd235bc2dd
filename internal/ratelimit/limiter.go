// Package ratelimit implements the fixed-window request limiter placed in
// front of the login route. Counters live in a pluggable Store so several
// API processes can share one window through Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// FailPolicy decides what happens to a request when the Store errors.
type FailPolicy string

const (
	// FailOpen lets the request through.
	FailOpen FailPolicy = "open"
	// FailClosed rejects the request.
	FailClosed FailPolicy = "closed"
)

// ParseFailPolicy accepts "open" or "closed" in any case.
func ParseFailPolicy(s string) (FailPolicy, error) {
	switch p := FailPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case FailOpen, FailClosed:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolicy, s)
}

// Store keeps per-key counters. Increment must be atomic: concurrent callers
// for the same key and window each observe a distinct post-increment count.
type Store interface {
	Increment(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// Config describes one limiter.
type Config struct {
	Window     time.Duration
	Max        int
	FailPolicy FailPolicy
	Prefix     string
}

// Decision is the outcome of a single check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	ResetIn    time.Duration
	RetryAfter time.Duration
}

// Limiter counts requests per client key inside fixed windows aligned to
// multiples of Config.Window.
type Limiter struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// New validates cfg and returns a Limiter backed by store.
func New(store Store, cfg Config, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Window <= 0 {
		return nil, ErrInvalidWindow
	}
	if cfg.Max <= 0 {
		return nil, ErrInvalidMax
	}
	if cfg.FailPolicy == "" {
		cfg.FailPolicy = FailClosed
	}
	if _, err := ParseFailPolicy(string(cfg.FailPolicy)); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	l := &Limiter{store: store, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Limit returns the configured cap per window.
func (l *Limiter) Limit() int { return l.cfg.Max }

// FailPolicy returns the configured store failure policy.
func (l *Limiter) FailPolicy() FailPolicy { return l.cfg.FailPolicy }

// Allow increments the counter for clientKey and reports whether the request
// fits in the current window. When the store fails the returned error wraps
// ErrStoreUnavailable and the decision reflects the fail policy.
func (l *Limiter) Allow(ctx context.Context, clientKey string) (Decision, error) {
	clientKey = strings.TrimSpace(clientKey)
	if clientKey == "" {
		return Decision{}, ErrKeyRequired
	}

	now := l.now()
	start := now.Truncate(l.cfg.Window)
	resetAt := start.Add(l.cfg.Window)
	d := Decision{Limit: l.cfg.Max, ResetAt: resetAt, ResetIn: resetAt.Sub(now)}

	count, err := l.store.Increment(ctx, l.key(clientKey), start, l.cfg.Window)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
		if l.cfg.FailPolicy == FailOpen {
			d.Allowed = true
			d.Remaining = l.cfg.Max
			return d, err
		}
		d.RetryAfter = resetAt.Sub(now)
		return d, err
	}

	if count > int64(l.cfg.Max) {
		d.RetryAfter = resetAt.Sub(now)
		return d, nil
	}
	d.Allowed = true
	d.Remaining = l.cfg.Max - int(count)
	return d, nil
}

func (l *Limiter) key(clientKey string) string {
	return l.cfg.Prefix + ":" + clientKey
}
