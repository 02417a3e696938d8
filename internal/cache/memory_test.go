package cache

import (
	"testing"
	"time"
)

func TestMemory_SetGet(t *testing.T) {
	m := NewMemory(0)
	m.Set(t.Context(), "k", []byte("v"), time.Minute)
	got, ok := m.Get(t.Context(), "k")
	if !ok || string(got) != "v" {
		t.Fatalf("want v, got %q ok=%v", got, ok)
	}
}

func TestMemory_MissOnUnknownKey(t *testing.T) {
	m := NewMemory(0)
	if _, ok := m.Get(t.Context(), "nope"); ok {
		t.Fatal("want miss")
	}
}

func TestMemory_ExpiredEntryTreatedAsAbsent(t *testing.T) {
	m := NewMemory(0)
	m.Set(t.Context(), "k", []byte("v"), 10*time.Millisecond)
	time.Sleep(25 * time.Millisecond)
	if _, ok := m.Get(t.Context(), "k"); ok {
		t.Fatal("want expired entry to read as absent")
	}
}

func TestMemory_NonPositiveTTLNotStored(t *testing.T) {
	m := NewMemory(0)
	m.Set(t.Context(), "k", []byte("v"), 0)
	if _, ok := m.Get(t.Context(), "k"); ok {
		t.Fatal("want no entry for zero ttl")
	}
}

func TestMemory_EvictsWhenOverCap(t *testing.T) {
	m := NewMemory(2)
	m.Set(t.Context(), "a", []byte("1"), time.Minute)
	m.Set(t.Context(), "b", []byte("2"), time.Minute)
	m.Set(t.Context(), "c", []byte("3"), time.Minute)
	if n := m.Stats().Items; n > 2 {
		t.Fatalf("want at most 2 items after eviction, got %d", n)
	}
}

func TestMemory_Stats(t *testing.T) {
	m := NewMemory(0)
	m.Set(t.Context(), "k", []byte("v"), time.Minute)
	m.Get(t.Context(), "k")
	m.Get(t.Context(), "missing")
	s := m.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Items != 1 {
		t.Fatalf("unexpected stats: %+v", s)
	}
}
