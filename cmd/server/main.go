package main

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"marketproxy/internal/cache"
	"marketproxy/internal/config"
	"marketproxy/internal/eodhd"
	"marketproxy/internal/httpx"
	"marketproxy/internal/profile"
	"marketproxy/internal/quote"
	"marketproxy/internal/retry"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Error("config", "err", err)
		os.Exit(1)
	}
	if cfg.EODHD.APIToken == "" {
		log.Warn("EODHD_API_TOKEN not set; upstream quote calls will be rejected")
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)

	eodOpts := []eodhd.Option{eodhd.WithHTTPClient(httpClient)}
	if cfg.EODHD.Endpoint != "" {
		eodOpts = append(eodOpts, eodhd.WithBaseURL(cfg.EODHD.Endpoint))
	}
	if cfg.EODHD.MaxRequestsPerMinute > 0 {
		rate := float64(cfg.EODHD.MaxRequestsPerMinute) / 60.0
		eodOpts = append(eodOpts, eodhd.WithLimiter(eodhd.NewTokenBucket(rate, cfg.EODHD.Burst)))
	}
	eodClient, err := eodhd.NewClient(cfg.EODHD.APIToken, eodOpts...)
	if err != nil {
		log.Error("eodhd client", "err", err)
		os.Exit(1)
	}

	var store cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		store = cache.NewRedis(rdb, log)
		log.Info("cache backend", "backend", "redis", "addr", cfg.Cache.RedisAddr)
	default:
		store = cache.NewMemory(cfg.Cache.MaxItems)
	}

	policy := retry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if len(cfg.Retry.DelaysMS) > 0 {
		policy.Delays = policy.Delays[:0]
		for _, ms := range cfg.Retry.DelaysMS {
			policy.Delays = append(policy.Delays, time.Duration(ms)*time.Millisecond)
		}
	}

	resolver := quote.NewResolver(eodClient, policy, log)
	resolver.LatestFromRealTime = cfg.EODHD.LatestFromRealTime

	resultCache := quote.NewCache(store, log)
	quotes := quote.NewService(resolver, resultCache, quote.Config{
		EntryTTL:       time.Duration(cfg.Cache.EntryTTLHours) * time.Hour,
		LatestTTL:      time.Duration(cfg.Cache.LatestTTLMinutes) * time.Minute,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
	}, log)
	dividends := quote.NewDividendService(eodClient, policy, log)
	profiles := profile.NewFetcher(profile.Config{
		APIKey:   cfg.Twitter.APIKey,
		BaseURL:  cfg.Twitter.Endpoint,
		CacheTTL: time.Duration(cfg.Cache.ProfileTTLHours) * time.Hour,
	}, httpClient, store, log)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth(resultCache, cfg.EODHD.APIToken != ""))
	mux.HandleFunc("POST /api/quotes/batch", handleBatchQuotes(quotes, cfg.Batch.MaxRequests, log))
	mux.HandleFunc("GET /api/dividends", handleDividends(dividends))
	mux.HandleFunc("GET /api/profile/{handle}", handleProfile(profiles))

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           withRequestID(log, withJSONHeaders(withGzip(recoverPanic(log, limitBody(mux))))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// batches run to completion: worst case is per-attempt timeout times
		// retries for every unique key that misses the cache
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server listening", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server", "err", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func withRequestID(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Info("request", "id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func withJSONHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withGzip compresses responses when the client supports gzip.
func withGzip(next http.Handler) http.Handler {
	var gzPool = sync.Pool{New: func() any {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.BestSpeed)
		return w
	}}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			next.ServeHTTP(w, r)
			return
		}
		gz := gzPool.Get().(*gzip.Writer)
		gz.Reset(w)
		defer func() {
			_ = gz.Close()
			gz.Reset(io.Discard)
			gzPool.Put(gz)
		}()
		w.Header().Set("Content-Encoding", "gzip")
		w.Header().Add("Vary", "Accept-Encoding")
		gw := gzipResponseWriter{ResponseWriter: w, Writer: gz}
		next.ServeHTTP(gw, r)
	})
}

type gzipResponseWriter struct {
	http.ResponseWriter
	Writer io.Writer
}

func (g gzipResponseWriter) Write(b []byte) (int, error) {
	return g.Writer.Write(b)
}

// limitBody caps request body size to avoid memory abuse.
func limitBody(next http.Handler) http.Handler {
	const maxBody = 1 << 20 // 1MB
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBody)
		}
		next.ServeHTTP(w, r)
	})
}

// recoverPanic protects handlers from panics.
func recoverPanic(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in handler", "path", r.URL.Path, "panic", rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
