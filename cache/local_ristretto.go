package cache

import (
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// RistrettoTierFactory builds Ristretto-backed Local Tier instances.
// It is the default LocalTierFactory: Ristretto natively supports
// per-entry TTL via SetWithTTL and uses probabilistic admission to
// bound memory under MaxCost rather than a hard entry count.
type RistrettoTierFactory struct {
	config LocalCacheConfig
}

// NewRistrettoTierFactory creates a Ristretto tier factory.
func NewRistrettoTierFactory(config LocalCacheConfig) LocalTierFactory {
	return &RistrettoTierFactory{config: config}
}

// Create builds a new Ristretto-backed LocalTier.
func (f *RistrettoTierFactory) Create() (LocalTier, error) {
	return newRistrettoTier(f.config)
}

// RistrettoTier is a LocalTier implementation over dgraph-io/ristretto.
// Rebuild swaps in a freshly constructed underlying cache rather than
// clearing the existing one in place, so admission/eviction state
// never carries stale history across a rebuild.
type RistrettoTier struct {
	config    LocalCacheConfig
	cache     atomic.Pointer[ristretto.Cache]
	evictions atomic.Int64
}

func newRistrettoTier(config LocalCacheConfig) (*RistrettoTier, error) {
	t := &RistrettoTier{config: config}
	c, err := t.build()
	if err != nil {
		return nil, err
	}
	t.cache.Store(c)
	return t, nil
}

func (t *RistrettoTier) build() (*ristretto.Cache, error) {
	return ristretto.NewCache(&ristretto.Config{
		NumCounters:        t.config.NumCounters,
		MaxCost:            t.config.MaxCost,
		BufferItems:        t.config.BufferItems,
		IgnoreInternalCost: t.config.IgnoreInternalCost,
		Metrics:            true,
		OnEvict: func(item *ristretto.Item) {
			t.evictions.Add(1)
		},
	})
}

// Get retrieves a value.
func (t *RistrettoTier) Get(key string) (any, bool) {
	return t.cache.Load().Get(key)
}

// Set stores a value with a per-entry TTL. A zero TTL means the entry
// never expires locally on its own; callers should still remove it
// explicitly or rely on the next rebuild.
func (t *RistrettoTier) Set(key string, value any, ttl time.Duration) {
	c := t.cache.Load()
	if ttl > 0 {
		c.SetWithTTL(key, value, 1, ttl)
	} else {
		c.Set(key, value, 1)
	}
}

// Remove deletes one key.
func (t *RistrettoTier) Remove(key string) {
	t.cache.Load().Del(key)
}

// Rebuild atomically drops and recreates the underlying cache. Any
// reference obtained from Get before Rebuild is a value copy and
// remains valid; the tier itself starts empty.
func (t *RistrettoTier) Rebuild() {
	old := t.cache.Load()
	fresh, err := t.build()
	if err != nil {
		// Constructing with the same config that already succeeded
		// once should not fail; if it does, keep serving the old
		// cache rather than leaving the tier without one.
		return
	}
	t.cache.Store(fresh)
	old.Close()
}

// Close releases the underlying cache.
func (t *RistrettoTier) Close() {
	t.cache.Load().Close()
}

// Metrics reports Ristretto's own hit/miss/eviction counters.
func (t *RistrettoTier) Metrics() LocalTierMetrics {
	m := t.cache.Load().Metrics
	if m == nil {
		return LocalTierMetrics{Evictions: t.evictions.Load()}
	}
	return LocalTierMetrics{
		Hits:      int64(m.Hits()),
		Misses:    int64(m.Misses()),
		Evictions: t.evictions.Load(),
		Size:      int64(m.CostAdded() - m.CostEvicted()),
	}
}
