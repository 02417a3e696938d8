package cache

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a Store backed by a shared Redis instance so overlapping server
// replicas share one upstream budget. Redis errors are absorbed: a failing
// Redis behaves like an empty cache.
type Redis struct {
	client *redis.Client
	log    *slog.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{client: client, log: log}
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("redis get failed", "key", key, "err", err)
		}
		r.misses.Add(1)
		return nil, false
	}
	r.hits.Add(1)
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "key", key, "err", err)
	}
}

func (r *Redis) Stats() Stats {
	n, err := r.client.DBSize(context.Background()).Result()
	if err != nil {
		n = 0
	}
	return Stats{Hits: r.hits.Load(), Misses: r.misses.Load(), Items: int(n)}
}
