package cache

import (
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUTierFactory builds hashicorp/golang-lru-backed Local Tier
// instances. Offered for hosts that want strict bounded-entry-count
// eviction over Ristretto's probabilistic cost-based admission.
type LRUTierFactory struct {
	maxSize int
}

// NewLRUTierFactory creates an LRU tier factory bounded to maxSize
// entries.
func NewLRUTierFactory(maxSize int) LocalTierFactory {
	return &LRUTierFactory{maxSize: maxSize}
}

// Create builds a new LRUTier.
func (f *LRUTierFactory) Create() (LocalTier, error) {
	return newLRUTier(f.maxSize)
}

type lruEntry struct {
	value     any
	expiresAt time.Time // zero means no expiry
}

// LRUTier is a LocalTier implementation over hashicorp/golang-lru/v2.
// golang-lru has no native per-entry TTL, so each entry additionally
// carries the wall-clock instant it expires; Get checks it lazily
// rather than running a background reaper, and Rebuild drops every
// entry regardless of expiry.
type LRUTier struct {
	maxSize   int
	cache     atomic.Pointer[lru.Cache[string, lruEntry]]
	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

func newLRUTier(maxSize int) (*LRUTier, error) {
	t := &LRUTier{maxSize: maxSize}
	c, err := t.build()
	if err != nil {
		return nil, err
	}
	t.cache.Store(c)
	return t, nil
}

func (t *LRUTier) build() (*lru.Cache[string, lruEntry], error) {
	return lru.NewWithEvict[string, lruEntry](t.maxSize, func(_ string, _ lruEntry) {
		t.evictions.Add(1)
	})
}

// Get retrieves a value, treating an entry past its expiresAt as a
// miss and evicting it.
func (t *LRUTier) Get(key string) (any, bool) {
	c := t.cache.Load()
	entry, found := c.Get(key)
	if !found {
		t.misses.Add(1)
		return nil, false
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		c.Remove(key)
		t.misses.Add(1)
		return nil, false
	}
	t.hits.Add(1)
	return entry.value, true
}

// Set stores a value with a per-entry TTL. A zero TTL means the entry
// never expires on its own.
func (t *LRUTier) Set(key string, value any, ttl time.Duration) {
	entry := lruEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	t.cache.Load().Add(key, entry)
}

// Remove deletes one key.
func (t *LRUTier) Remove(key string) {
	t.cache.Load().Remove(key)
}

// Rebuild atomically drops and recreates the underlying cache.
func (t *LRUTier) Rebuild() {
	old := t.cache.Load()
	fresh, err := t.build()
	if err != nil {
		return
	}
	t.cache.Store(fresh)
	old.Purge()
}

// Close purges the underlying cache.
func (t *LRUTier) Close() {
	t.cache.Load().Purge()
}

// Metrics reports hit/miss/eviction counters and current entry count.
func (t *LRUTier) Metrics() LocalTierMetrics {
	return LocalTierMetrics{
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
		Evictions: t.evictions.Load(),
		Size:      int64(t.cache.Load().Len()),
	}
}
