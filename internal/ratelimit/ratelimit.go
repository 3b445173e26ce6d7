// Package ratelimit implements the per-client fixed-window limiter used on
// the submission and login endpoints.
package ratelimit

import (
	"math/rand"
	"sync"
	"time"
)

// DefaultSweepProbability is the chance an allowed request sweeps stale windows.
const DefaultSweepProbability = 0.01

type bucket struct {
	count     int
	expiresAt time.Time
}

// FixedWindow allows limit requests per key in each window. State is kept in
// process memory.
type FixedWindow struct {
	limit            int
	window           time.Duration
	sweepProbability float64
	now              func() time.Time
	random           func() float64

	mu      sync.Mutex
	entries map[string]*bucket
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithSweepProbability sets the chance in [0,1] that an allowed request sweeps.
func WithSweepProbability(p float64) Option {
	return func(f *FixedWindow) { f.sweepProbability = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(f *FixedWindow) { f.now = now }
}

// WithRandom replaces the sweep decision source.
func WithRandom(random func() float64) Option {
	return func(f *FixedWindow) { f.random = random }
}

// New creates a limiter allowing limit requests per window.
func New(limit int, window time.Duration, opts ...Option) *FixedWindow {
	f := &FixedWindow{
		limit:            limit,
		window:           window,
		sweepProbability: DefaultSweepProbability,
		now:              time.Now,
		random:           rand.Float64,
		entries:          make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Allow records a request for key and reports whether it is within the limit.
func (f *FixedWindow) Allow(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.now()
	w, ok := f.entries[key]
	switch {
	case !ok || now.After(w.expiresAt):
		f.entries[key] = &bucket{count: 1, expiresAt: now.Add(f.window)}
	case w.count >= f.limit:
		return false
	default:
		w.count++
	}

	if f.random() < f.sweepProbability {
		f.sweepLocked(now)
	}
	return true
}

// RetryAfter returns how long until key's window resets, or zero.
func (f *FixedWindow) RetryAfter(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.entries[key]
	if !ok {
		return 0
	}
	if d := w.expiresAt.Sub(f.now()); d > 0 {
		return d
	}
	return 0
}

// Sweep removes every window that has expired and returns how many it removed.
func (f *FixedWindow) Sweep() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sweepLocked(f.now())
}

func (f *FixedWindow) sweepLocked(now time.Time) int {
	n := 0
	for k, w := range f.entries {
		if now.After(w.expiresAt) {
			delete(f.entries, k)
			n++
		}
	}
	return n
}

// Reset forgets key's window.
func (f *FixedWindow) Reset(key string) {
	f.mu.Lock()
	delete(f.entries, key)
	f.mu.Unlock()
}

// Len returns the number of tracked keys.
func (f *FixedWindow) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// Limit returns the per-window request limit.
func (f *FixedWindow) Limit() int {
	return f.limit
}
