package hybridcache

import "github.com/relaycache/hybridcache/cache"

// Logger is an alias for cache.Logger.
type Logger = cache.Logger

// Marshaller is an alias for cache.Marshaller.
type Marshaller = cache.Marshaller

// LocalTier is an alias for cache.LocalTier.
type LocalTier = cache.LocalTier

// LocalTierMetrics is an alias for cache.LocalTierMetrics.
type LocalTierMetrics = cache.LocalTierMetrics

// LocalTierFactory is an alias for cache.LocalTierFactory.
type LocalTierFactory = cache.LocalTierFactory

// LocalCacheConfig is an alias for cache.LocalCacheConfig.
type LocalCacheConfig = cache.LocalCacheConfig

// Retriever is an alias for cache.Retriever.
type Retriever = cache.Retriever

// SetOption is an alias for cache.SetOption.
type SetOption = cache.SetOption

// GetOption is an alias for cache.GetOption.
type GetOption = cache.GetOption

// DefaultLocalCacheConfig returns default local tier sizing.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return cache.DefaultLocalCacheConfig()
}

// The With* option constructors are re-exported verbatim so callers
// depending only on the root package never need to import cache
// directly.
var (
	WithLocalTTL         = cache.WithLocalTTL
	WithRedisTTL         = cache.WithRedisTTL
	WithFireAndForget    = cache.WithFireAndForget
	WithLocalEnable      = cache.WithLocalEnable
	WithRedisEnable      = cache.WithRedisEnable
	WithRetriever        = cache.WithRetriever
	WithGetLocalTTL      = cache.WithGetLocalTTL
	WithGetRedisTTL      = cache.WithGetRedisTTL
	WithGetFireAndForget = cache.WithGetFireAndForget
	DecodeInto           = cache.DecodeInto
)
