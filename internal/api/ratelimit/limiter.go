package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a fixed-window request limit per identifier (e.g., IP address).
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	now    func() time.Time
	store  map[string]*window
}

type window struct {
	count int
	reset time.Time
}

type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates a Limiter allowing limit requests per window and identifier.
func New(limit int, per time.Duration, opts ...Option) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if per <= 0 {
		per = time.Hour
	}

	l := &Limiter{
		limit:  limit,
		window: per,
		now:    time.Now,
		store:  make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow reports whether the identifier may proceed, and how long until its
// window resets.
func (l *Limiter) Allow(id string) (bool, time.Duration) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.store[id]
	if !ok || !now.Before(w.reset) {
		l.store[id] = &window{count: 1, reset: now.Add(l.window)}
		return true, l.window
	}

	if w.count >= l.limit {
		return false, w.reset.Sub(now)
	}

	w.count++
	return true, w.reset.Sub(now)
}

// Cleanup drops identifiers whose window has passed.
func (l *Limiter) Cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for id, w := range l.store {
		if !now.Before(w.reset) {
			delete(l.store, id)
		}
	}
}

// Len returns the number of tracked identifiers.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.store)
}
