package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type entry struct {
	expiresAt time.Time
	value     []byte
}

// Memory is an in-process Store with per-entry expiry and a best-effort
// item cap.
type Memory struct {
	maxItems int

	mu    sync.RWMutex
	items map[string]entry

	hits   atomic.Uint64
	misses atomic.Uint64
}

func NewMemory(maxItems int) *Memory {
	return &Memory{maxItems: maxItems, items: make(map[string]entry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.items[key]
	m.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		m.misses.Add(1)
		return nil, false
	}
	m.hits.Add(1)
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := time.Now()
	m.mu.Lock()
	m.items[key] = entry{expiresAt: now.Add(ttl), value: value}
	// best-effort cap: drop expired entries first, then arbitrary keys
	if m.maxItems > 0 && len(m.items) > m.maxItems {
		for k, e := range m.items {
			if now.After(e.expiresAt) {
				delete(m.items, k)
			}
			if len(m.items) <= m.maxItems {
				break
			}
		}
		for k := range m.items {
			if len(m.items) <= m.maxItems {
				break
			}
			delete(m.items, k)
		}
	}
	m.mu.Unlock()
}

func (m *Memory) Stats() Stats {
	m.mu.RLock()
	n := len(m.items)
	m.mu.RUnlock()
	return Stats{Hits: m.hits.Load(), Misses: m.misses.Load(), Items: n}
}
