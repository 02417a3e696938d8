// Command fetch is a one-shot CLI for poking the upstream without running
// the server: resolve a batch of quotes, list dividends, or fetch a profile.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"marketproxy/internal/cache"
	"marketproxy/internal/config"
	"marketproxy/internal/eodhd"
	"marketproxy/internal/httpx"
	"marketproxy/internal/profile"
	"marketproxy/internal/quote"
	"marketproxy/internal/retry"
)

func main() {
	var (
		symbolsCSV string
		kind       string
		tweetTS    string
		divRange   string
		handle     string
		configPath string
		timeout    int
	)
	flag.StringVar(&symbolsCSV, "symbols", "AAPL", "comma-separated symbols")
	flag.StringVar(&kind, "type", "latest", "price kind: entry or latest")
	flag.StringVar(&tweetTS, "tweet-ts", "", "RFC3339 reference timestamp (required for -type entry)")
	flag.StringVar(&divRange, "dividends", "", "fetch dividend history instead, e.g. 5y or 6mo")
	flag.StringVar(&handle, "profile", "", "fetch a social profile instead")
	flag.StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "path to config.json (optional)")
	flag.IntVar(&timeout, "timeout", 0, "per-attempt timeout seconds (overrides config)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if timeout > 0 {
		cfg.Server.RequestTimeoutSec = timeout
	}

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	ctx := context.Background()

	if handle != "" {
		f := profile.NewFetcher(profile.Config{
			APIKey:   cfg.Twitter.APIKey,
			BaseURL:  cfg.Twitter.Endpoint,
			CacheTTL: time.Hour,
		}, httpClient, cache.NewMemory(0), slogger)
		printJSON(f.Fetch(ctx, handle))
		return
	}

	eodOpts := []eodhd.Option{eodhd.WithHTTPClient(httpClient)}
	if cfg.EODHD.Endpoint != "" {
		eodOpts = append(eodOpts, eodhd.WithBaseURL(cfg.EODHD.Endpoint))
	}
	client, err := eodhd.NewClient(cfg.EODHD.APIToken, eodOpts...)
	if err != nil {
		log.Fatalf("eodhd client: %v", err)
	}
	policy := retry.DefaultPolicy()

	symbols := splitCSV(symbolsCSV)
	if len(symbols) == 0 {
		log.Fatal("no symbols provided")
	}

	if divRange != "" {
		svc := quote.NewDividendService(client, policy, slogger)
		rows, err := svc.History(ctx, symbols[0], divRange)
		if err != nil {
			log.Fatalf("dividends: %v", err)
		}
		printJSON(rows)
		return
	}

	var ts *time.Time
	if tweetTS != "" {
		parsed, err := time.Parse(time.RFC3339, tweetTS)
		if err != nil {
			log.Fatalf("bad -tweet-ts: %v", err)
		}
		ts = &parsed
	}
	reqs := make([]quote.Request, 0, len(symbols))
	for _, s := range symbols {
		reqs = append(reqs, quote.Request{Symbol: s, Kind: quote.Kind(kind), TweetTimestamp: ts})
	}

	resolver := quote.NewResolver(client, policy, slogger)
	resolver.LatestFromRealTime = cfg.EODHD.LatestFromRealTime
	svc := quote.NewService(resolver, quote.NewCache(cache.NewMemory(0), slogger), quote.Config{
		EntryTTL:       time.Hour,
		LatestTTL:      time.Hour,
		MaxConcurrency: cfg.Batch.MaxConcurrency,
	}, slogger)

	results, errs := svc.ProcessBatch(ctx, reqs)
	out := struct {
		Data   []quote.Result `json:"data"`
		Errors []quote.Error  `json:"errors"`
	}{Data: results, Errors: errs}
	printJSON(out)
	if len(results) == 0 && len(errs) > 0 {
		os.Exit(1)
	}
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
