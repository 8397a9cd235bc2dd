package ratelimit

import (
	"context"
	"sync"
	"time"
)

type record struct {
	windowStart time.Time
	expiresAt   time.Time
	count       int64
}

// MemoryStore keeps counters in process memory. It suits a single API
// instance; use RedisStore when several instances must share limits.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record

	cleanupInterval time.Duration
	now             func() time.Time
	stop            chan struct{}
	stopOnce        sync.Once
}

// MemoryStoreOption configures a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithCleanupInterval sets how often expired windows are evicted.
func WithCleanupInterval(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// NewMemoryStore starts a store with a background janitor. Call Close to stop it.
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records:         make(map[string]*record),
		cleanupInterval: time.Minute,
		now:             time.Now,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.janitor()
	return s
}

// Increment bumps the counter for key in the window starting at windowStart.
// A record left over from an earlier window is reset first.
func (s *MemoryStore) Increment(_ context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[key]
	if !ok || windowStart.After(r.windowStart) {
		r = &record{windowStart: windowStart, expiresAt: windowStart.Add(window)}
		s.records[key] = r
	}
	r.count++
	return r.count, nil
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Close stops the janitor goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

func (s *MemoryStore) janitor() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.evictExpired()
		case <-s.stop:
			return
		}
	}
}

func (s *MemoryStore) evictExpired() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.records {
		if !now.Before(r.expiresAt) {
			delete(s.records, k)
		}
	}
}
