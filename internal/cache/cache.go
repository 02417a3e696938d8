package cache

import (
	"context"
	"time"
)

// Stats is a best-effort activity snapshot for the health endpoint.
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Items  int    `json:"items"`
}

// Store is a TTL'd byte-valued cache. Values are immutable once written, so
// concurrent duplicate writes for the same key are harmless overwrites and
// no locking beyond basic map safety is needed on the caller side.
type Store interface {
	// Get returns the live (non-expired) value for key, if any.
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores value under key for ttl. Non-positive ttl is a no-op.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	Stats() Stats
}
