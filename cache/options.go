package cache

import "time"

// LocalCacheConfig configures the local tier implementations.
type LocalCacheConfig struct {
	// NumCounters sizes the Ristretto admission sketch (Ristretto only).
	// Recommended: 10 * expected item count.
	NumCounters int64

	// MaxCost is the maximum total cost of items in the cache
	// (Ristretto only). Recommended: 1 << 30 for a 1GB budget.
	MaxCost int64

	// BufferItems is the Ristretto set-buffer size (Ristretto only).
	// Recommended: 64.
	BufferItems int64

	// IgnoreInternalCost ignores Ristretto's own per-entry bookkeeping
	// cost when accounting against MaxCost (Ristretto only).
	IgnoreInternalCost bool

	// MaxSize holds an entry-count bound for the LRU tier. No tier
	// reads it: NewLRUTierFactory takes its bound as an argument.
	MaxSize int
}

// DefaultLocalCacheConfig returns sizing defaults suitable for either
// local tier implementation.
func DefaultLocalCacheConfig() LocalCacheConfig {
	return LocalCacheConfig{
		NumCounters:        1e7,
		MaxCost:            1 << 30,
		BufferItems:        64,
		IgnoreInternalCost: false,
		MaxSize:            10000,
	}
}

// Options configures an Engine instance. Field names mirror the
// configuration surface named in the coherence protocol
// specification; a handful of ambient knobs (LocalCacheConfig,
// LocalTierFactory, Marshaller, DebugMode, OnError) extend it without
// changing the protocol.
type Options struct {
	// InstanceID is this process's opaque, stable-for-lifetime
	// identity, used to suppress self-echo on the bus. If empty, one
	// is generated at New().
	InstanceID string

	// RedisConnectString is the Redis transport target
	// (e.g. "localhost:6379").
	RedisConnectString string

	// RedisPassword and RedisDB are ambient connection knobs not named
	// by RedisConnectString alone.
	RedisPassword string
	RedisDB       int

	// InstancesSharedName is the key-namespace prefix shared by every
	// cooperating instance; it is also the basis of the invalidation
	// channel name ("<name>:invalidate").
	InstancesSharedName string

	// RedisBackChannelName is the literal back-channel pub/sub channel
	// name used for warm-sync propagation.
	RedisBackChannelName string

	// DefaultLocalExpirationTime and DefaultDistributedExpirationTime
	// are the fallback TTLs applied when a call omits one.
	DefaultLocalExpirationTime       time.Duration
	DefaultDistributedExpirationTime time.Duration

	// ConnectRetry bounds both the initial transport connect attempts
	// and the bus publish-retry ceiling.
	ConnectRetry int

	// AbortOnConnectFail makes New() fail if the initial Redis connect
	// does not succeed within ConnectRetry attempts. When false, New()
	// still returns an Engine and lets later operations degrade per
	// ThrowIfDistributedCacheError.
	AbortOnConnectFail bool

	// ThrowIfDistributedCacheError controls whether Redis-side
	// transport errors surface to the caller or are swallowed and
	// degraded (read: miss, write/delete: local-only).
	ThrowIfDistributedCacheError bool

	// FlushLocalCacheOnBusReconnection rebuilds the Local Tier whenever
	// the Redis transport reports a restored connection, since bus
	// messages may have been missed while disconnected.
	FlushLocalCacheOnBusReconnection bool

	// EnableLogging gates whether the engine emits through Logger at
	// all, independent of which Logger implementation is configured.
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

	// Logger receives diagnostic output when EnableLogging is true. If
	// nil, defaults to a no-op logger.
	Logger Logger

	// DebugMode is carried on Options but the engine does not read it;
	// setting it adds no logging beyond EnableLogging.
	DebugMode bool

	// OnError, when set, is called with every Redis transport error,
	// write-side serialization error, and retriever error the engine
	// reports, in addition to the throw/swallow policy above. Decode
	// failures on read and bus publish failures are logged only.
	OnError func(error)
}

// DefaultOptions returns default Engine options. Callers must still
// set InstancesSharedName and typically RedisConnectString.
func DefaultOptions() Options {
	return Options{
		RedisConnectString:                "localhost:6379",
		RedisDB:                           0,
		InstancesSharedName:               "app",
		RedisBackChannelName:              "app:sync",
		DefaultLocalExpirationTime:        30 * time.Second,
		DefaultDistributedExpirationTime:  5 * time.Minute,
		ConnectRetry:                      3,
		AbortOnConnectFail:                false,
		ThrowIfDistributedCacheError:      false,
		FlushLocalCacheOnBusReconnection:  true,
		EnableLogging:                     false,
		LocalCacheConfig:                  DefaultLocalCacheConfig(),
		SerializationFormat:               "json",
	}
}

// Validate checks the options for obvious misconfiguration. It does
// not dial Redis.
func (o *Options) Validate() error {
	if o.InstancesSharedName == "" {
		return ErrInvalidConfig
	}
	if o.RedisConnectString == "" {
		return ErrInvalidConfig
	}
	if o.RedisBackChannelName == "" {
		return ErrInvalidConfig
	}
	if o.SerializationFormat != "" && o.SerializationFormat != "json" && o.SerializationFormat != "msgpack" {
		return ErrInvalidConfig
	}
	if o.ConnectRetry <= 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheConfig.NumCounters <= 0 {
		return ErrInvalidConfig
	}
	if o.LocalCacheConfig.MaxCost <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// setOptions holds the per-call state SetOption funcs populate.
// LocalEnable and RedisEnable are tri-state: nil means "use the
// default of true".
type setOptions struct {
	localTTL      time.Duration
	redisTTL      time.Duration
	fireAndForget bool
	localEnable   *bool
	redisEnable   *bool
}

// SetOption customizes one Set/SetAll call.
type SetOption func(*setOptions)

// WithLocalTTL overrides the Local Tier expiry for this call.
func WithLocalTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.localTTL = ttl }
}

// WithRedisTTL overrides the Redis expiry for this call.
func WithRedisTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) { o.redisTTL = ttl }
}

// WithFireAndForget makes the Redis write fire-and-forget: the call
// does not wait for Redis to acknowledge the write.
func WithFireAndForget() SetOption {
	return func(o *setOptions) { o.fireAndForget = true }
}

// WithLocalEnable toggles whether this call writes the Local Tier at
// all. Defaults to true.
func WithLocalEnable(enable bool) SetOption {
	return func(o *setOptions) { o.localEnable = &enable }
}

// WithRedisEnable toggles whether this call writes Redis at all.
// Defaults to true.
func WithRedisEnable(enable bool) SetOption {
	return func(o *setOptions) { o.redisEnable = &enable }
}

// getOptions holds the per-call state GetOption funcs populate.
type getOptions struct {
	retriever     Retriever
	localTTL      time.Duration
	redisTTL      time.Duration
	fireAndForget bool
	decodeTarget  any
}

// GetOption customizes one Get/TryGet call.
type GetOption func(*getOptions)

// WithRetriever supplies the data-retriever callback invoked on a
// cache miss; its result is written to both tiers and synced to
// peers.
func WithRetriever(r Retriever) GetOption {
	return func(o *getOptions) { o.retriever = r }
}

// WithGetLocalTTL overrides the Local Tier expiry applied to a
// retriever's result.
func WithGetLocalTTL(ttl time.Duration) GetOption {
	return func(o *getOptions) { o.localTTL = ttl }
}

// WithGetRedisTTL overrides the Redis expiry applied to a retriever's
// result.
func WithGetRedisTTL(ttl time.Duration) GetOption {
	return func(o *getOptions) { o.redisTTL = ttl }
}

// WithGetFireAndForget makes a retriever's backfill write to Redis
// fire-and-forget.
func WithGetFireAndForget() GetOption {
	return func(o *getOptions) { o.fireAndForget = true }
}

// DecodeInto directs Get/TryGet to decode a wire-fetched or
// warm-synced value directly into target (a non-nil pointer) rather
// than into a generic map/slice shape. The root package's generic
// Get[T] helper uses this so a struct or slice value keeps its
// concrete type across a Redis round-trip or a bus warm-sync apply;
// callers going through the any-typed Cache interface directly don't
// need it.
func DecodeInto(target any) GetOption {
	return func(o *getOptions) { o.decodeTarget = target }
}
