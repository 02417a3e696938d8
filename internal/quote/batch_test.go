package quote

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketproxy/internal/cache"
)

// fakeResolver serves canned resolutions per symbol and counts calls.
type fakeResolver struct {
	mu          sync.Mutex
	entryCalls  int
	latestCalls int
	bySymbol    map[string]Resolution // raw (pre-normalization) symbol
}

func (f *fakeResolver) ResolveEntry(_ context.Context, symbol string, _ time.Time) Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entryCalls++
	return f.resolution(symbol)
}

func (f *fakeResolver) ResolveLatest(_ context.Context, symbol string) Resolution {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestCalls++
	return f.resolution(symbol)
}

func (f *fakeResolver) resolution(symbol string) Resolution {
	if res, ok := f.bySymbol[symbol]; ok {
		return res
	}
	return Resolution{Price: decimal.NewFromFloat(100), AsOf: "2024-08-15"}
}

func (f *fakeResolver) calls() (entry, latest int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entryCalls, f.latestCalls
}

func newTestService(r PriceResolver) *Service {
	c := NewCache(cache.NewMemory(0), discard)
	return NewService(r, c, Config{
		EntryTTL:       time.Hour,
		LatestTTL:      time.Hour,
		MaxConcurrency: 4,
	}, discard)
}

func ts(t *testing.T, s string) *time.Time {
	t.Helper()
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("bad test timestamp %q: %v", s, err)
	}
	return &v
}

func TestProcessBatch_OneOutputPerInput(t *testing.T) {
	svc := newTestService(&fakeResolver{})
	reqs := []Request{
		{Symbol: "AAPL", Kind: KindLatest},
		{Symbol: "SPY", Kind: KindEntry, TweetTimestamp: ts(t, "2024-08-15T14:23:00Z")},
		{Symbol: "TSLA", Kind: KindEntry}, // invalid: no timestamp
		{Symbol: "NVDA", Kind: Kind("weird")},
	}

	results, errs := svc.ProcessBatch(t.Context(), reqs)
	if len(results)+len(errs) != len(reqs) {
		t.Fatalf("want %d outputs, got %d results + %d errors", len(reqs), len(results), len(errs))
	}
	if len(results) != 2 || len(errs) != 2 {
		t.Fatalf("want 2 results and 2 errors, got %d/%d", len(results), len(errs))
	}
}

func TestProcessBatch_DedupSingleResolutionCall(t *testing.T) {
	r := &fakeResolver{}
	svc := newTestService(r)
	reqs := []Request{
		{Symbol: "AAPL", Kind: KindLatest},
		{Symbol: "AAPL", Kind: KindLatest},
	}

	results, errs := svc.ProcessBatch(t.Context(), reqs)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if len(results) != 2 {
		t.Fatalf("want 2 results, got %d", len(results))
	}
	if _, latest := r.calls(); latest != 1 {
		t.Fatalf("want exactly 1 upstream resolution, got %d", latest)
	}
	if !results[0].Price.Equal(results[1].Price) || results[0].AsOf != results[1].AsOf {
		t.Fatalf("duplicated requests got different results: %+v", results)
	}
}

func TestProcessBatch_DedupIsCaseAndSuffixInsensitive(t *testing.T) {
	r := &fakeResolver{}
	svc := newTestService(r)
	reqs := []Request{
		{Symbol: "aapl", Kind: KindLatest},
		{Symbol: "AAPL.US", Kind: KindLatest},
	}

	svc.ProcessBatch(t.Context(), reqs)
	if _, latest := r.calls(); latest != 1 {
		t.Fatalf("normalized duplicates should share one call, got %d", latest)
	}
}

func TestProcessBatch_EntrySameDayDifferentTimesShareBucket(t *testing.T) {
	r := &fakeResolver{}
	svc := newTestService(r)
	reqs := []Request{
		{Symbol: "AAPL", Kind: KindEntry, TweetTimestamp: ts(t, "2024-08-15T09:00:00Z")},
		{Symbol: "AAPL", Kind: KindEntry, TweetTimestamp: ts(t, "2024-08-15T15:30:00Z")},
	}

	svc.ProcessBatch(t.Context(), reqs)
	if entry, _ := r.calls(); entry != 1 {
		t.Fatalf("same date bucket should share one call, got %d", entry)
	}
}

func TestProcessBatch_EntryAndLatestDoNotCollide(t *testing.T) {
	r := &fakeResolver{}
	svc := newTestService(r)
	reqs := []Request{
		{Symbol: "AAPL", Kind: KindEntry, TweetTimestamp: ts(t, "2024-08-15T09:00:00Z")},
		{Symbol: "AAPL", Kind: KindLatest},
	}

	svc.ProcessBatch(t.Context(), reqs)
	entry, latest := r.calls()
	if entry != 1 || latest != 1 {
		t.Fatalf("want one call per kind, got entry=%d latest=%d", entry, latest)
	}
}

func TestProcessBatch_MissingTimestampRejectedBeforeUpstream(t *testing.T) {
	r := &fakeResolver{}
	svc := newTestService(r)

	results, errs := svc.ProcessBatch(t.Context(), []Request{{Symbol: "AAPL", Kind: KindEntry}})
	if len(results) != 0 || len(errs) != 1 {
		t.Fatalf("want single error, got %d/%d", len(results), len(errs))
	}
	if errs[0].Message != "tweetTimestamp required for entry price" {
		t.Fatalf("unexpected message: %q", errs[0].Message)
	}
	entry, latest := r.calls()
	if entry != 0 || latest != 0 {
		t.Fatalf("want zero upstream calls, got entry=%d latest=%d", entry, latest)
	}
}

func TestProcessBatch_AbsentYieldsPerRequestError(t *testing.T) {
	r := &fakeResolver{bySymbol: map[string]Resolution{"GONE": MarkAbsent()}}
	svc := newTestService(r)
	reqs := []Request{
		{Symbol: "GONE", Kind: KindLatest},
		{Symbol: "AAPL", Kind: KindLatest},
	}

	results, errs := svc.ProcessBatch(t.Context(), reqs)
	if len(results) != 1 || len(errs) != 1 {
		t.Fatalf("one failure must not block siblings: %d/%d", len(results), len(errs))
	}
	if errs[0].Symbol != "GONE" || errs[0].Message != "Could not fetch latest price" {
		t.Fatalf("unexpected error: %+v", errs[0])
	}
	if results[0].Symbol != "AAPL" {
		t.Fatalf("unexpected result: %+v", results[0])
	}
}

func TestProcessBatch_SecondBatchServedFromCache(t *testing.T) {
	r := &fakeResolver{}
	c := NewCache(cache.NewMemory(0), discard)
	svc := NewService(r, c, Config{EntryTTL: time.Hour, LatestTTL: time.Hour, MaxConcurrency: 2}, discard)

	svc.ProcessBatch(t.Context(), []Request{{Symbol: "AAPL", Kind: KindLatest}})
	svc.ProcessBatch(t.Context(), []Request{{Symbol: "AAPL", Kind: KindLatest}})
	if _, latest := r.calls(); latest != 1 {
		t.Fatalf("want cache hit on second batch, got %d calls", latest)
	}
}

func TestProcessBatch_EmptyInput(t *testing.T) {
	svc := newTestService(&fakeResolver{})
	results, errs := svc.ProcessBatch(t.Context(), nil)
	if len(results) != 0 || len(errs) != 0 {
		t.Fatalf("want empty outputs, got %d/%d", len(results), len(errs))
	}
}
