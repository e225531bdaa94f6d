package limiter

import (
	"context"
	"sync"
	"time"
)

// InMemory is a single-process limiter for tests and development.
type InMemory struct {
	mu     sync.Mutex
	counts map[string]*windowCount
	window time.Duration
	max    int
	now    func() time.Time
}

type windowCount struct {
	count int
	start time.Time
}

var _ Limiter = (*InMemory)(nil)

func NewInMemory(window time.Duration, max int) *InMemory {
	return &InMemory{
		counts: make(map[string]*windowCount),
		window: window,
		max:    max,
		now:    time.Now,
	}
}

// SetNow overrides the clock; test hook.
func (l *InMemory) SetNow(now func() time.Time) { l.now = now }

func (l *InMemory) Allow(ctx context.Context, wallet string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	wc, ok := l.counts[wallet]
	if !ok || now.Sub(wc.start) > l.window {
		l.counts[wallet] = &windowCount{count: 1, start: now}
		return true, 0, nil
	}
	wc.count++
	if wc.count > l.max {
		retryAfter := wc.start.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return false, retryAfter, nil
	}
	return true, 0, nil
}
