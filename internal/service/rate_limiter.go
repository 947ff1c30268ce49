package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/convexbot/internal/clock"
	"github.com/alanyoungcy/convexbot/internal/domain"
)

// LocalRateLimiter is an in-process sliding-window limiter used when Redis is
// not configured. It reads time from an injected clock.
type LocalRateLimiter struct {
	clock clock.Clock
	mu    sync.Mutex
	hits  map[string][]time.Time
}

var _ domain.RateLimiter = (*LocalRateLimiter)(nil)

// NewLocalRateLimiter creates a LocalRateLimiter.
func NewLocalRateLimiter(c clock.Clock) *LocalRateLimiter {
	return &LocalRateLimiter{clock: c, hits: make(map[string][]time.Time)}
}

// Allow records a hit for key and reports whether it fits within limit hits
// per window.
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := l.clock.Now()
	cutoff := now.Add(-window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := l.hits[key]
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) >= limit {
		l.hits[key] = hits
		return false, nil
	}
	l.hits[key] = append(hits, now)
	return true, nil
}

// Forget drops all state for key.
func (l *LocalRateLimiter) Forget(key string) {
	l.mu.Lock()
	delete(l.hits, key)
	l.mu.Unlock()
}
