package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const keyPrefix = "meteo-vanoise:"

// MemcachedCache implements Cache using memcached, for deployments running
// more than one replica behind a load balancer. The whole Entry envelope is
// stored so LastFetched keeps working across replicas.
type MemcachedCache struct {
	client *memcache.Client
	ttl    time.Duration
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated
// list (e.g. "host1:11211,host2:11211"). timeout and maxIdleConns use
// package defaults when zero.
func NewMemcachedCache(addrs string, ttl, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: client, ttl: ttl}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (c *MemcachedCache) key(k string) string {
	return keyPrefix + k
}

// Get implements Cache.Get. Freshness is re-checked against FetchedAt even
// though memcached also expires the item, so both backends judge staleness
// identically.
func (c *MemcachedCache) Get(ctx context.Context, key string) (Entry, bool, error) {
	if ctx.Err() != nil {
		return Entry{}, false, ctx.Err()
	}
	item, err := c.client.Get(c.key(key))
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return Entry{}, false, err
	}
	if time.Since(entry.FetchedAt) >= c.ttl {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set implements Cache.Set.
func (c *MemcachedCache) Set(ctx context.Context, key string, payload json.RawMessage) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	raw, err := json.Marshal(Entry{Payload: payload, FetchedAt: time.Now()})
	if err != nil {
		return err
	}
	expSec := int32(c.ttl.Seconds())
	const maxRelativeExp = 30 * 24 * 60 * 60 // 30 days
	if expSec <= 0 || expSec > maxRelativeExp {
		expSec = 6 * 3600
	}
	return c.client.Set(&memcache.Item{
		Key:        c.key(key),
		Value:      raw,
		Expiration: expSec,
	})
}

// LastFetched implements Cache.LastFetched. A slot whose item has been
// expired by memcached reports as never populated.
func (c *MemcachedCache) LastFetched(ctx context.Context, key string) (time.Time, bool) {
	item, err := c.client.Get(c.key(key))
	if err != nil {
		return time.Time{}, false
	}
	var entry Entry
	if err := json.Unmarshal(item.Value, &entry); err != nil {
		return time.Time{}, false
	}
	return entry.FetchedAt, true
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
