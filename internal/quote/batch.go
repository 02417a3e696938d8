package quote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketproxy/internal/symbol"
)

// PriceResolver is what batch processing needs from the resolver.
type PriceResolver interface {
	ResolveEntry(ctx context.Context, symbol string, ref time.Time) Resolution
	ResolveLatest(ctx context.Context, symbol string) Resolution
}

// Config tunes batch processing.
type Config struct {
	// EntryTTL is long: a past session's price never changes.
	EntryTTL time.Duration
	// LatestTTL is short: "yesterday's close" moves daily.
	LatestTTL time.Duration
	// MaxConcurrency bounds parallel resolution of distinct dedup keys.
	MaxConcurrency int
}

// Service collapses a batch into unique lookups, resolves each through the
// result cache, and fans the outcomes back out to every original request.
type Service struct {
	resolver PriceResolver
	cache    *Cache
	cfg      Config
	log      *slog.Logger
}

func NewService(resolver PriceResolver, cache *Cache, cfg Config, log *slog.Logger) *Service {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	return &Service{resolver: resolver, cache: cache, cfg: cfg, log: log}
}

// latestBucket is the date-bucket sentinel for latest requests, which carry
// no reference date of their own.
const latestBucket = "-"

// dedupKey identifies requests that must yield identical results within a
// batch: normalized symbol, kind, and the reference calendar date in UTC.
func dedupKey(r Request) string {
	bucket := latestBucket
	if r.Kind == KindEntry && r.TweetTimestamp != nil {
		bucket = r.TweetTimestamp.UTC().Format(dateLayout)
	}
	return fmt.Sprintf("quote:%s:%s:%s", symbol.Normalize(r.Symbol), r.Kind, bucket)
}

// ProcessBatch turns a batch of requests into exactly one Result or Error
// per input. Invalid requests are rejected before any upstream work; one
// symbol's failure never blocks the others.
func (s *Service) ProcessBatch(ctx context.Context, reqs []Request) ([]Result, []Error) {
	results := make([]Result, 0, len(reqs))
	errs := make([]Error, 0)

	unique := make(map[string]Request, len(reqs))
	keyByIndex := make([]string, len(reqs))
	for i, r := range reqs {
		switch r.Kind {
		case KindEntry:
			if r.TweetTimestamp == nil {
				errs = append(errs, Error{Symbol: r.Symbol, Kind: r.Kind,
					Message: "tweetTimestamp required for entry price"})
				continue
			}
		case KindLatest:
		default:
			errs = append(errs, Error{Symbol: r.Symbol, Kind: r.Kind,
				Message: fmt.Sprintf("unknown type: %s", r.Kind)})
			continue
		}
		k := dedupKey(r)
		keyByIndex[i] = k
		if _, ok := unique[k]; !ok {
			unique[k] = r
		}
	}

	// resolve distinct keys with a bounded fan-out; no ordering dependency
	resolved := make(map[string]Resolution, len(unique))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.cfg.MaxConcurrency)
	for k, rep := range unique {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			res := s.resolveCached(ctx, k, rep)
			mu.Lock()
			resolved[k] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	// fan back out: every surviving input gets the result of its key
	for i, r := range reqs {
		k := keyByIndex[i]
		if k == "" {
			continue // rejected during validation
		}
		res := resolved[k]
		if res.Absent {
			errs = append(errs, Error{Symbol: r.Symbol, Kind: r.Kind, Message: couldNotFetch(r.Kind)})
			continue
		}
		results = append(results, Result{Symbol: r.Symbol, Kind: r.Kind, Price: res.Price, AsOf: res.AsOf})
	}

	s.log.Info("batch complete",
		"requests", len(reqs), "unique", len(unique), "results", len(results), "errors", len(errs))
	return results, errs
}

func (s *Service) resolveCached(ctx context.Context, key string, r Request) Resolution {
	ttl := s.cfg.LatestTTL
	if r.Kind == KindEntry {
		ttl = s.cfg.EntryTTL
	}
	return s.cache.GetOrFetch(ctx, key, ttl, func(ctx context.Context) Resolution {
		if r.Kind == KindEntry {
			return s.resolver.ResolveEntry(ctx, r.Symbol, *r.TweetTimestamp)
		}
		return s.resolver.ResolveLatest(ctx, r.Symbol)
	})
}

func couldNotFetch(k Kind) string {
	if k == KindEntry {
		return "Could not fetch entry price"
	}
	return "Could not fetch latest price"
}
