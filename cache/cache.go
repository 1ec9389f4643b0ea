// Package cache implements a TTL-bounded read-through cache on top of the
// storage contract. It shields the remote server from request storms driven
// by frequent UI polling while bounding how stale a displayed value can be.
package cache

import (
	"encoding/json"
	"time"

	"github.com/kbaldwin/punchclock/storage"
)

// envelope is the serialized form of a cached value. Validity is
// now - Timestamp < TTL; entries are replaced wholesale on every refresh.
type envelope[T any] struct {
	Value T `json:"value"`
	// Timestamp is the creation time in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Cache binds one storage key to a value type and a TTL.
type Cache[T any] struct {
	store storage.Store
	key   string
	ttl   time.Duration
	now   func() time.Time
}

// New creates a cache over store at key with the given TTL.
func New[T any](store storage.Store, key string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{store: store, key: key, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source. For tests.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Read returns the cached value when one exists and is younger than the
// TTL. A corrupt stored blob or an expired entry is a miss, never an error.
func (c *Cache[T]) Read() (T, bool) {
	var zero T
	raw, ok := c.store.Get(c.key)
	if !ok {
		return zero, false
	}
	var env envelope[T]
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return zero, false
	}
	age := c.now().Sub(time.UnixMilli(env.Timestamp))
	if age < 0 || age >= c.ttl {
		return zero, false
	}
	return env.Value, true
}

// Write stores value with the current timestamp, replacing any entry.
func (c *Cache[T]) Write(value T) {
	raw, err := json.Marshal(envelope[T]{Value: value, Timestamp: c.now().UnixMilli()})
	if err != nil {
		return
	}
	_ = c.store.Set(c.key, string(raw))
}

// Invalidate removes the entry immediately rather than waiting for the TTL.
func (c *Cache[T]) Invalidate() {
	_ = c.store.Remove(c.key)
}
