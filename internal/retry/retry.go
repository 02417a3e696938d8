package retry

import (
	"context"
	"log/slog"
	"time"
)

// Policy bounds the attempts of a fallible upstream call. Delays are applied
// between failed attempts; when attempts outnumber entries the last entry
// repeats.
type Policy struct {
	MaxAttempts int
	Delays      []time.Duration
}

// DefaultPolicy matches the upstream providers' documented flakiness:
// three attempts with increasing waits.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second},
	}
}

// Do invokes op up to p.MaxAttempts times, waiting per the delay schedule
// after each failure except the last. All failures are treated alike and
// logged with the attempt index. Do never returns an error: the boolean is
// false when every attempt failed or the context expired while waiting.
func Do[T any](ctx context.Context, log *slog.Logger, p Policy, name string, op func(ctx context.Context) (T, error)) (T, bool) {
	var zero T
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, true
		}
		log.Warn("upstream attempt failed",
			"op", name, "attempt", attempt, "max_attempts", p.MaxAttempts, "err", err)
		if attempt == p.MaxAttempts {
			break
		}
		if !sleep(ctx, delayFor(p.Delays, attempt-1)) {
			log.Warn("retry abandoned", "op", name, "err", ctx.Err())
			return zero, false
		}
	}
	return zero, false
}

func delayFor(delays []time.Duration, i int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if i >= len(delays) {
		i = len(delays) - 1
	}
	return delays[i]
}

// sleep waits d, or returns false early if the context finishes first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
