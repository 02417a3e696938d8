package retry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var errBoom = errors.New("boom")

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, Delays: []time.Duration{time.Millisecond}}
}

func TestDo_FirstAttemptSucceeds(t *testing.T) {
	calls := 0
	v, ok := Do(t.Context(), discard, fastPolicy(3), "op", func(context.Context) (int, error) {
		calls++
		return 42, nil
	})
	if !ok || v != 42 {
		t.Fatalf("want (42,true), got (%d,%v)", v, ok)
	}
	if calls != 1 {
		t.Fatalf("want 1 call, got %d", calls)
	}
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	v, ok := Do(t.Context(), discard, fastPolicy(3), "op", func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errBoom
		}
		return "ok", nil
	})
	if !ok || v != "ok" {
		t.Fatalf("want (ok,true), got (%q,%v)", v, ok)
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}
}

func TestDo_AllAttemptsFail(t *testing.T) {
	calls := 0
	v, ok := Do(t.Context(), discard, fastPolicy(4), "op", func(context.Context) (int, error) {
		calls++
		return 7, errBoom
	})
	if ok {
		t.Fatal("want absence, got success")
	}
	if v != 0 {
		t.Fatalf("want zero value, got %d", v)
	}
	if calls != 4 {
		t.Fatalf("want 4 calls, got %d", calls)
	}
}

func TestDo_ZeroAttemptsTreatedAsOne(t *testing.T) {
	calls := 0
	_, ok := Do(t.Context(), discard, Policy{}, "op", func(context.Context) (int, error) {
		calls++
		return 0, errBoom
	})
	if ok || calls != 1 {
		t.Fatalf("want 1 failed call, got ok=%v calls=%d", ok, calls)
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	calls := 0
	start := time.Now()
	_, ok := Do(ctx, discard, Policy{MaxAttempts: 3, Delays: []time.Duration{time.Hour}}, "op",
		func(context.Context) (int, error) {
			calls++
			return 0, errBoom
		})
	if ok {
		t.Fatal("want absence on canceled context")
	}
	if calls != 1 {
		t.Fatalf("want 1 call before abandoning, got %d", calls)
	}
	if time.Since(start) > time.Second {
		t.Fatal("wait did not honor cancellation")
	}
}
