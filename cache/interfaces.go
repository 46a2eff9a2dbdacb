package cache

import (
	"context"
	"iter"
	"time"

	"github.com/relaycache/hybridcache/bus"
	"github.com/relaycache/hybridcache/storage"
)

// Logger is the diagnostic logging surface the engine writes through.
// Its method set is a superset of bus.Logger's, so every
// implementation here also satisfies the bus package without the bus
// importing cache.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Marshaller serializes values and bus control messages. It is the
// same contract storage.Marshaller implements; the alias lets callers
// configure cache.Options without importing storage directly.
type Marshaller = storage.Marshaller

// LocalTier is the per-process, per-entry-TTL memory store backing one
// engine. Implementations must tolerate concurrent Set/Get/Remove from
// arbitrary goroutines; Rebuild is serialized by the engine against
// bus-driven mutation, not by the tier itself.
type LocalTier interface {
	Set(key string, value any, ttl time.Duration)
	Get(key string) (any, bool)
	Remove(key string)
	Rebuild()
	Close()
	Metrics() LocalTierMetrics
}

// LocalTierMetrics reports counters for one LocalTier instance.
type LocalTierMetrics struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int64
}

// LocalTierFactory builds LocalTier instances. Create is called once
// per engine; a tier's own Rebuild constructs a fresh underlying cache
// rather than clearing in place, so eviction/cost state always starts
// fresh.
type LocalTierFactory interface {
	Create() (LocalTier, error)
}

// Retriever loads a value on a cache miss. Errors follow the engine's
// throw/swallow policy (Options.ThrowIfDistributedCacheError).
type Retriever func(ctx context.Context, key string) (any, error)

// Store is the engine's view of the Redis transport: string GET/SET
// with TTL, multi-key DELETE, TTL lookup, server FLUSHDB, pattern scan
// across non-replica endpoints, and reconnect notification.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, fireAndForget bool) error
	DeleteMany(ctx context.Context, keys []string, fireAndForget bool) error
	TTLOf(ctx context.Context, key string) (time.Duration, error)
	FlushDB(ctx context.Context) error
	ScanPattern(ctx context.Context, pattern string) ([]string, error)
	OnReconnect(fn func())
	Close() error
}

// Bus is the engine's view of the coherence bus: subscribe once,
// register callbacks for messages not originated by this instance,
// and publish fire-and-forget invalidation/sync messages.
type Bus interface {
	Subscribe(ctx context.Context) error
	OnInvalidate(fn func(bus.InvalidationMessage))
	OnSync(fn func(bus.SyncMessage))
	PublishInvalidation(ctx context.Context, keys []string)
	PublishSync(ctx context.Context, key string, value []byte, localExpiryAt time.Time)
	Close() error
}

// Cache is the public, any-typed surface of the Hybrid Engine.
// Generic wrappers in the root package add compile-time typed access
// without changing these coherence semantics.
type Cache interface {
	Exists(ctx context.Context, key string) (bool, error)

	Set(ctx context.Context, key string, value any, opts ...SetOption) error
	SetAll(ctx context.Context, items map[string]any, opts ...SetOption) error

	Get(ctx context.Context, key string, opts ...GetOption) (any, error)
	TryGet(ctx context.Context, key string, opts ...GetOption) (any, bool, error)

	Remove(ctx context.Context, keys []string, fireAndForget bool) error
	RemoveWithPattern(ctx context.Context, pattern string, fireAndForget bool, cancel <-chan struct{}) ([]string, error)
	KeysAsync(ctx context.Context, pattern string) iter.Seq2[string, error]

	GetExpiration(ctx context.Context, key string) (time.Duration, error)

	ClearAll(ctx context.Context) error
	FlushLocalCaches() error

	Close() error
	Stats() Stats
}

// Stats reports cumulative counters for one Engine instance.
type Stats struct {
	LocalHits     int64
	LocalMisses   int64
	RemoteHits    int64
	RemoteMisses  int64
	Invalidations int64
}
