// Package cache provides the read-through TTL cache used by all read paths.
// Entries carry explicit expiry instants; entries past expiry are treated as
// absent and evicted lazily on read. Population always happens on the call
// path immediately after a miss-triggered read, never by pre-warming.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"openfinance/internal/clock"
)

// Store persists opaque cache payloads keyed by a composed string.
type Store interface {
	// Get returns the payload for key when a live entry exists at now.
	Get(ctx context.Context, key string, now time.Time) ([]byte, bool, error)
	// Put writes the payload with an explicit expiry instant. Concurrent
	// writers for the same key are last-write-wins.
	Put(ctx context.Context, key string, payload []byte, expiresAt time.Time) error
}

// Cache is a typed TTL cache over a Store.
type Cache[T any] struct {
	store Store
	clock clock.Clock
	ttl   time.Duration
}

// New creates a cache whose entries live for ttl from the moment they are put.
func New[T any](store Store, clk clock.Clock, ttl time.Duration) *Cache[T] {
	return &Cache[T]{store: store, clock: clk, ttl: ttl}
}

// Get returns the cached value and whether it was a hit.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var value T
	raw, ok, err := c.store.Get(ctx, key, c.clock.Now())
	if err != nil || !ok {
		return value, false, err
	}
	if err := json.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("failed to decode cache entry %q: %w", key, err)
	}
	return value, true, nil
}

// Put stores value under key with the cache's TTL.
func (c *Cache[T]) Put(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %q: %w", key, err)
	}
	return c.store.Put(ctx, key, raw, c.clock.Now().Add(c.ttl))
}

// Key composes a cache key from fixed parts. Parts are joined with ':' so
// equivalent lookups collide on the same entry.
func Key(parts ...string) string {
	return strings.Join(parts, ":")
}

// NormalizedKey composes a cache key from fixed parts plus free-form filter
// values. Filters are trimmed, uppercased, and sorted so equivalent queries
// produce identical keys regardless of incidental formatting or order.
func NormalizedKey(parts []string, filters ...string) string {
	normalized := make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.ToUpper(strings.TrimSpace(f))
		if f == "" {
			f = "-"
		}
		normalized = append(normalized, f)
	}
	sort.Strings(normalized)
	return Key(append(append([]string{}, parts...), normalized...)...)
}
