package quote

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"marketproxy/internal/cache"
)

// Cache memoizes resolver outcomes, including explicit absences, so a
// known-bad symbol is not hammered again until its TTL lapses. Concurrent
// fetches for the same key are coalesced into one upstream call.
type Cache struct {
	store cache.Store
	sf    singleflight.Group
	log   *slog.Logger
}

func NewCache(store cache.Store, log *slog.Logger) *Cache {
	return &Cache{store: store, log: log}
}

// GetOrFetch returns the live cached resolution for key, or invokes fetch,
// stores its outcome for ttl, and returns it.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) Resolution) Resolution {
	if res, ok := c.lookup(ctx, key); ok {
		return res
	}
	v, _, _ := c.sf.Do(key, func() (any, error) {
		// another caller may have stored it while we queued
		if res, ok := c.lookup(ctx, key); ok {
			return res, nil
		}
		res := fetch(ctx)
		if b, err := json.Marshal(res); err == nil {
			c.store.Set(ctx, key, b, ttl)
		}
		return res, nil
	})
	return v.(Resolution)
}

func (c *Cache) lookup(ctx context.Context, key string) (Resolution, bool) {
	b, ok := c.store.Get(ctx, key)
	if !ok {
		return Resolution{}, false
	}
	var res Resolution
	if err := json.Unmarshal(b, &res); err != nil {
		c.log.Warn("discarding undecodable cache entry", "key", key, "err", err)
		return Resolution{}, false
	}
	return res, true
}

// Stats reports the backing store's activity.
func (c *Cache) Stats() cache.Stats { return c.store.Stats() }
