// Package hybridcache is the root entry point for the two-tier
// (in-process + Redis) coherence cache: it wires cache.Options into a
// running cache.Engine and re-exports the pieces a host typically
// only needs from one import.
package hybridcache

import (
	"context"
	"time"

	"github.com/relaycache/hybridcache/cache"
)

// Config configures a hybrid cache instance. Field names mirror
// cache.Options; New converts this into cache.Options before
// constructing the engine.
type Config struct {
	// InstanceID is this process's opaque, stable-for-lifetime
	// identity, used to suppress self-echo on the coherence bus. If
	// empty, one is generated.
	InstanceID string

	// RedisConnectString, RedisPassword, and RedisDB configure the
	// Redis transport.
	RedisConnectString string
	RedisPassword      string
	RedisDB            int

	// InstancesSharedName namespaces keys shared by every cooperating
	// instance.
	InstancesSharedName string

	// RedisBackChannelName is the literal pub/sub channel used for
	// warm-sync propagation.
	RedisBackChannelName string

	// DefaultLocalExpirationTime and DefaultDistributedExpirationTime
	// are the fallback TTLs applied when a call omits one.
	DefaultLocalExpirationTime       time.Duration
	DefaultDistributedExpirationTime time.Duration

	// ConnectRetry bounds the initial Redis connect attempts and the
	// bus publish-retry ceiling.
	ConnectRetry int

	// AbortOnConnectFail makes New fail if the initial Redis connect
	// does not succeed within ConnectRetry attempts.
	AbortOnConnectFail bool

	// ThrowIfDistributedCacheError controls whether Redis-side
	// transport errors surface to the caller or are swallowed and
	// degraded.
	ThrowIfDistributedCacheError bool

	// FlushLocalCacheOnBusReconnection rebuilds the Local Tier
	// whenever the Redis transport reports a restored connection.
	FlushLocalCacheOnBusReconnection bool

	// EnableLogging gates whether diagnostic output is emitted at all.
	EnableLogging bool

	// LocalCacheConfig sizes the local tier.
	LocalCacheConfig LocalCacheConfig

	// LocalTierFactory builds the Local Tier. If nil, defaults to a
	// Ristretto-backed tier.
	LocalTierFactory LocalTierFactory

	// SerializationFormat selects the wire codec ("json" or "msgpack")
	// when Marshaller is nil.
	SerializationFormat string

	// Marshaller overrides SerializationFormat with a specific codec.
	Marshaller Marshaller

	// Logger receives diagnostic output when EnableLogging is true.
	Logger Logger

	// DebugMode is passed through to cache.Options, where the engine
	// does not read it; it adds no logging.
	DebugMode bool

	// OnError, when set, is called with every Redis transport error,
	// write-side serialization error, and retriever error the engine
	// reports; decode failures on read are logged only.
	OnError func(error)
}

// New constructs a running hybrid cache: it dials Redis, opens the
// coherence bus subscription, and returns a ready-to-use Cache. ctx
// bounds the initial connect and subscribe only.
func New(ctx context.Context, cfg Config) (Cache, error) {
	opts := cache.Options{
		InstanceID:                       cfg.InstanceID,
		RedisConnectString:               cfg.RedisConnectString,
		RedisPassword:                    cfg.RedisPassword,
		RedisDB:                          cfg.RedisDB,
		InstancesSharedName:              cfg.InstancesSharedName,
		RedisBackChannelName:             cfg.RedisBackChannelName,
		DefaultLocalExpirationTime:       cfg.DefaultLocalExpirationTime,
		DefaultDistributedExpirationTime: cfg.DefaultDistributedExpirationTime,
		ConnectRetry:                     cfg.ConnectRetry,
		AbortOnConnectFail:               cfg.AbortOnConnectFail,
		ThrowIfDistributedCacheError:     cfg.ThrowIfDistributedCacheError,
		FlushLocalCacheOnBusReconnection: cfg.FlushLocalCacheOnBusReconnection,
		EnableLogging:                    cfg.EnableLogging,
		LocalCacheConfig:                 cfg.LocalCacheConfig,
		LocalTierFactory:                 cfg.LocalTierFactory,
		SerializationFormat:              cfg.SerializationFormat,
		Marshaller:                       cfg.Marshaller,
		Logger:                           cfg.Logger,
		DebugMode:                        cfg.DebugMode,
		OnError:                          cfg.OnError,
	}

	return cache.New(ctx, opts)
}

// DefaultConfig returns default hybrid cache configuration. Callers
// must still set InstancesSharedName and typically
// RedisConnectString.
func DefaultConfig() Config {
	d := cache.DefaultOptions()
	return Config{
		RedisConnectString:               d.RedisConnectString,
		RedisDB:                          d.RedisDB,
		InstancesSharedName:              d.InstancesSharedName,
		RedisBackChannelName:             d.RedisBackChannelName,
		DefaultLocalExpirationTime:       d.DefaultLocalExpirationTime,
		DefaultDistributedExpirationTime: d.DefaultDistributedExpirationTime,
		ConnectRetry:                     d.ConnectRetry,
		AbortOnConnectFail:               d.AbortOnConnectFail,
		ThrowIfDistributedCacheError:     d.ThrowIfDistributedCacheError,
		FlushLocalCacheOnBusReconnection: d.FlushLocalCacheOnBusReconnection,
		EnableLogging:                    d.EnableLogging,
		LocalCacheConfig:                 d.LocalCacheConfig,
		SerializationFormat:              d.SerializationFormat,
	}
}

// Cache is an alias for cache.Cache.
type Cache = cache.Cache

// Stats is an alias for cache.Stats.
type Stats = cache.Stats
