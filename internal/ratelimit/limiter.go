// Package ratelimit enforces the per-visit ring cooldown.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter admits at most one event per key within window.
type Limiter interface {
	// Allow records an attempt for key and reports whether it was admitted.
	Allow(ctx context.Context, key string, window time.Duration) (bool, error)
}

// RingKey is the limiter key for one visit.
func RingKey(visitUUID string) string {
	return "doorbell:ring:" + visitUUID
}

// MemoryLimiter keeps cooldowns in process memory. It is only correct for a
// single instance.
type MemoryLimiter struct {
	mu    sync.Mutex
	until map[string]time.Time
	now   func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		until: make(map[string]time.Time),
		now:   time.Now,
	}
}

// SetClock overrides time.Now.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, ok := l.until[key]; ok && now.Before(until) {
		return false, nil
	}
	l.until[key] = now.Add(window)
	l.prune(now)
	return true, nil
}

// prune drops elapsed entries so visits that are never rung again do not leak.
func (l *MemoryLimiter) prune(now time.Time) {
	for k, until := range l.until {
		if !now.Before(until) {
			delete(l.until, k)
		}
	}
}
