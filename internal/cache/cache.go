// Package cache fronts expensive statistics queries with a TTL cache.
//
// Expired entries are removed lazily when read, and a small fraction of hits
// also sweep every expired entry from the backing store. Store failures never
// reach callers: they are logged and treated as misses.
package cache

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/JonMunkholm/sanandem/internal/logging"
)

// DefaultTTL applies when Set is called with a non-positive ttl.
const DefaultTTL = time.Hour

// DefaultSweepProbability is the chance that a hit sweeps expired entries.
const DefaultSweepProbability = 0.01

// Entry is a stored value and its expiry. TTL is the lifetime the entry was
// written with; stores with native expiry use it instead of reading the wall
// clock.
type Entry struct {
	Data      []byte
	ExpiresAt time.Time
	TTL       time.Duration
}

// Expired reports whether the entry is no longer valid at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store is the persistence behind a Cache.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, keys ...string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	Clear(ctx context.Context) error
}

// Observer receives one call per cache operation, e.g. ("get", "hit").
type Observer func(op, result string)

// Cache is a JSON value cache over a Store.
type Cache struct {
	store            Store
	ttl              time.Duration
	sweepProbability float64
	now              func() time.Time
	random           func() float64
	observe          Observer
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the default lifetime of entries.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithSweepProbability sets the chance in [0,1] that a hit sweeps expired entries.
func WithSweepProbability(p float64) Option {
	return func(c *Cache) { c.sweepProbability = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithRandom replaces the source used for the sweep decision.
func WithRandom(random func() float64) Option {
	return func(c *Cache) { c.random = random }
}

// WithObserver reports each operation outcome, typically to metrics.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observe = o }
}

// New creates a Cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:            store,
		ttl:              DefaultTTL,
		sweepProbability: DefaultSweepProbability,
		now:              time.Now,
		random:           rand.Float64,
		observe:          func(string, string) {},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the value stored under key into dst and reports whether it was
// a hit. Expired entries are deleted and reported as misses.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Warn("cache get failed", "key", key, "error", err)
		c.observe("get", "error")
		return false
	}
	if !ok {
		c.observe("get", "miss")
		return false
	}

	now := c.now()
	if entry.Expired(now) {
		if err := c.store.Delete(ctx, key); err != nil {
			logging.FromContext(ctx).Warn("cache delete of expired entry failed", "key", key, "error", err)
		}
		c.observe("get", "expired")
		return false
	}

	if err := json.Unmarshal(entry.Data, dst); err != nil {
		logging.FromContext(ctx).Warn("cache entry decode failed", "key", key, "error", err)
		c.observe("get", "error")
		return false
	}

	c.observe("get", "hit")
	if c.random() < c.sweepProbability {
		c.sweep(ctx, now)
	}
	return true
}

// Set stores value under key for ttl, or the default TTL when ttl <= 0.
// Failures are logged.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	data, err := json.Marshal(value)
	if err != nil {
		logging.FromContext(ctx).Warn("cache encode failed", "key", key, "error", err)
		c.observe("set", "error")
		return
	}
	if err := c.store.Set(ctx, key, Entry{Data: data, ExpiresAt: c.now().Add(ttl), TTL: ttl}); err != nil {
		logging.FromContext(ctx).Warn("cache set failed", "key", key, "error", err)
		c.observe("set", "error")
		return
	}
	c.observe("set", "ok")
}

// Invalidate deletes the given keys. Failures are logged.
func (c *Cache) Invalidate(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		logging.FromContext(ctx).Warn("cache invalidate failed", "keys", keys, "error", err)
		c.observe("invalidate", "error")
		return
	}
	c.observe("invalidate", "ok")
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		c.observe("clear", "error")
		return err
	}
	c.observe("clear", "ok")
	return nil
}

// DeleteExpired removes all expired entries and returns how many were removed.
func (c *Cache) DeleteExpired(ctx context.Context) (int64, error) {
	return c.store.DeleteExpired(ctx, c.now())
}

func (c *Cache) sweep(ctx context.Context, now time.Time) {
	n, err := c.store.DeleteExpired(ctx, now)
	if err != nil {
		logging.FromContext(ctx).Warn("cache sweep failed", "error", err)
		c.observe("sweep", "error")
		return
	}
	logging.FromContext(ctx).Debug("cache sweep", "removed", n)
	c.observe("sweep", "ok")
}

// Fetch returns the cached value for key, or calls load and caches its result.
// Load errors are returned and nothing is cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	value, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(ctx, key, value, ttl)
	return value, nil
}
