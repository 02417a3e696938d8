package quote

import (
	"context"
	"log/slog"
	"time"

	"marketproxy/internal/eodhd"
	"marketproxy/internal/retry"
	"marketproxy/internal/symbol"
)

// MarketData is the slice of the upstream client the resolver needs.
type MarketData interface {
	DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]eodhd.Bar, error)
	RealTime(ctx context.Context, symbol string) (eodhd.RealTimeQuote, error)
}

// entryWindowDays bounds the forward scan for the next trading session.
// Wide enough to jump any weekend or holiday gap.
const entryWindowDays = 10

// latestWindowDays covers the trailing week of sessions for latest lookups.
const latestWindowDays = 7

const dateLayout = "2006-01-02"

// Resolver turns (symbol, kind) lookups into price points against the
// daily-bar upstream, normalizing symbols first and retrying transient
// failures. All upstream failures surface as absence, never as an error.
type Resolver struct {
	md     MarketData
	policy retry.Policy
	log    *slog.Logger

	// LatestFromRealTime switches latest lookups to the real-time quote
	// endpoint instead of the prior session's close.
	LatestFromRealTime bool
}

func NewResolver(md MarketData, policy retry.Policy, log *slog.Logger) *Resolver {
	return &Resolver{md: md, policy: policy, log: log}
}

// ResolveEntry returns the opening price of the first session whose trading
// date is strictly after ref. Bar dates carry no clock and are taken as UTC
// midnight; ref is compared in UTC.
func (r *Resolver) ResolveEntry(ctx context.Context, sym string, ref time.Time) Resolution {
	canonical := symbol.Normalize(sym)
	ref = ref.UTC()
	from := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, entryWindowDays)

	bars, ok := retry.Do(ctx, r.log, r.policy, "eod:"+canonical, func(ctx context.Context) ([]eodhd.Bar, error) {
		return r.md.DailyBars(ctx, canonical, from, to)
	})
	if !ok {
		return MarkAbsent()
	}
	for _, b := range bars {
		d, err := time.ParseInLocation(dateLayout, b.Date, time.UTC)
		if err != nil {
			r.log.Warn("skipping bar with unparseable date", "symbol", canonical, "date", b.Date)
			continue
		}
		if d.After(ref) {
			return Resolution{Price: b.Open, AsOf: b.Date}
		}
	}
	// holiday gap, delisting, or end of data inside the window
	return MarkAbsent()
}

// ResolveLatest returns the closing price of the prior completed session:
// the second-to-last bar of the trailing window, so an in-progress session
// is never reported.
func (r *Resolver) ResolveLatest(ctx context.Context, sym string) Resolution {
	canonical := symbol.Normalize(sym)
	if r.LatestFromRealTime {
		return r.resolveRealTime(ctx, canonical)
	}

	now := time.Now().UTC()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -latestWindowDays)

	bars, ok := retry.Do(ctx, r.log, r.policy, "eod:"+canonical, func(ctx context.Context) ([]eodhd.Bar, error) {
		return r.md.DailyBars(ctx, canonical, from, to)
	})
	if !ok {
		return MarkAbsent()
	}
	if len(bars) < 2 {
		return MarkAbsent()
	}
	prior := bars[len(bars)-2]
	return Resolution{Price: prior.Close, AsOf: prior.Date}
}

func (r *Resolver) resolveRealTime(ctx context.Context, canonical string) Resolution {
	q, ok := retry.Do(ctx, r.log, r.policy, "realtime:"+canonical, func(ctx context.Context) (eodhd.RealTimeQuote, error) {
		return r.md.RealTime(ctx, canonical)
	})
	if !ok || q.Close.IsZero() {
		return MarkAbsent()
	}
	asof := time.Now().UTC().Format(dateLayout)
	if q.Timestamp > 0 {
		asof = time.Unix(q.Timestamp, 0).UTC().Format(dateLayout)
	}
	return Resolution{Price: q.Close, AsOf: asof}
}
