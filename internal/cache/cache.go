package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Resource cache keys. The key space is fixed and small: one slot per
// resource type.
const (
	KeyBulletin = "bulletin"
	KeyWarnings = "warnings"
	KeyForecast = "forecast"
)

// Entry is a cached resource payload together with its fetch time. Entries
// are overwritten wholesale on every store and judged stale only by age.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Cache is the freshness gate in front of the acquisition pipeline.
// Get returns a hit only while the entry is younger than the TTL; Set
// unconditionally overwrites (last-writer-wins, no merge). LastFetched
// reports the slot's fetch time regardless of freshness, for /api/health.
type Cache interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, payload json.RawMessage) error
	LastFetched(ctx context.Context, key string) (time.Time, bool)
}

// InMemoryCache implements Cache with a mutex-guarded map. The clock is
// injected so TTL behaviour is deterministic under test.
type InMemoryCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	clock   clockwork.Clock
	entries map[string]Entry
}

// NewInMemoryCache creates an in-memory cache with the given TTL. A nil
// clock uses real time.
func NewInMemoryCache(ttl time.Duration, clock clockwork.Clock) *InMemoryCache {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InMemoryCache{
		ttl:     ttl,
		clock:   clock,
		entries: make(map[string]Entry),
	}
}

// Get returns the entry for key if present and younger than the TTL.
func (c *InMemoryCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	if c.clock.Since(entry.FetchedAt) >= c.ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores the payload under key with the current clock time, overwriting
// any prior entry including one that was still fresh.
func (c *InMemoryCache) Set(ctx context.Context, key string, payload json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = Entry{Payload: payload, FetchedAt: c.clock.Now()}
	return nil
}

// LastFetched returns the fetch time of the slot, even when the entry has
// gone stale. False means the slot was never populated.
func (c *InMemoryCache) LastFetched(ctx context.Context, key string) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok {
		return time.Time{}, false
	}
	return entry.FetchedAt, true
}
