package cache

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/relaycache/hybridcache/bus"
	"github.com/relaycache/hybridcache/keyname"
	"github.com/relaycache/hybridcache/storage"
)

// errRetrieverSwallowed signals a retriever failure that was degraded
// to a miss per ThrowIfDistributedCacheError; it never escapes the
// package.
var errRetrieverSwallowed = errors.New("cache: retriever error swallowed")

// rawSynced wraps a value applied to the Local Tier from a bus
// warm-sync message before its concrete Go type is known. The
// engine can't guess a shape for it — decoding into `any` turns a
// JSON object into a map and loses the caller's real type — so it
// stays wrapped until a read supplies a decode target (via
// GetOption's DecodeInto, which the root package's generic Get[T]
// sets) or is decoded best-effort into `any` for an untyped caller.
type rawSynced struct {
	data []byte
}

type statCounters struct {
	localHits     atomic.Int64
	localMisses   atomic.Int64
	remoteHits    atomic.Int64
	remoteMisses  atomic.Int64
	invalidations atomic.Int64
}

// Engine is the Hybrid Engine: it orchestrates reads, writes, deletes,
// pattern-removes, and global clears across a LocalTier, Redis, and
// the Coherence Bus, and owns the throw/swallow failure policy.
type Engine struct {
	opts       Options
	namer      keyname.Namer
	instanceID string

	localTier LocalTier
	tierMu    sync.RWMutex

	store Store
	bus   Bus

	marshaller Marshaller
	logger     Logger

	sf singleflight.Group

	closed atomic.Bool
	stats  statCounters
}

// New constructs an Engine: it builds the Local Tier, dials Redis
// (making up to Options.ConnectRetry attempts), opens the Coherence
// Bus subscription, and wires the reconnect handler. ctx bounds the
// initial connect and subscribe only; it is not retained.
func New(ctx context.Context, opts Options) (*Engine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	instanceID := opts.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}

	tierFactory := opts.LocalTierFactory
	if tierFactory == nil {
		tierFactory = NewRistrettoTierFactory(opts.LocalCacheConfig)
	}
	localTier, err := tierFactory.Create()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "cache: failed to create local tier")
	}

	marshaller := opts.Marshaller
	if marshaller == nil {
		marshaller, err = storage.GetMarshaller(opts.SerializationFormat)
		if err != nil {
			localTier.Close()
			return nil, err
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = NewNoOpLogger()
	}

	var (
		store       *storage.RedisStore
		connectErr  error
		baseBackoff = 100 * time.Millisecond
	)
	for attempt := 1; attempt <= opts.ConnectRetry; attempt++ {
		store, connectErr = storage.NewRedisStore(ctx, opts.RedisConnectString, opts.RedisPassword, opts.RedisDB)
		if connectErr == nil {
			break
		}
		if attempt < opts.ConnectRetry {
			select {
			case <-time.After(baseBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				connectErr = ctx.Err()
				attempt = opts.ConnectRetry
			}
		}
	}
	if connectErr != nil {
		if opts.AbortOnConnectFail {
			localTier.Close()
			return nil, pkgerrors.Wrap(connectErr, "cache: redis connect failed")
		}
		if opts.EnableLogging {
			logger.Warn("cache: starting in degraded mode, initial redis connect failed", "error", connectErr)
		}
	}

	namer := keyname.New(opts.InstancesSharedName)

	var busLogger bus.Logger
	if opts.EnableLogging {
		busLogger = logger
	}

	coherenceBus := bus.New(store, bus.Config{
		InstanceID:          instanceID,
		InvalidationChannel: namer.InvalidationChannel(),
		BackChannel:         opts.RedisBackChannelName,
		Marshaller:          marshaller,
		ConnectRetry:        opts.ConnectRetry,
		Logger:              busLogger,
	})

	e := &Engine{
		opts:       opts,
		namer:      namer,
		instanceID: instanceID,
		localTier:  localTier,
		store:      store,
		bus:        coherenceBus,
		marshaller: marshaller,
		logger:     logger,
	}

	if err := coherenceBus.Subscribe(ctx); err != nil {
		if opts.AbortOnConnectFail {
			localTier.Close()
			_ = store.Close()
			return nil, pkgerrors.Wrap(err, "cache: bus subscribe failed")
		}
		if opts.EnableLogging {
			logger.Warn("cache: starting without a live bus subscription", "error", err)
		}
	}

	coherenceBus.OnInvalidate(e.handleInvalidation)
	coherenceBus.OnSync(e.handleSync)
	store.OnReconnect(e.handleReconnect)

	return e, nil
}

func (e *Engine) handleInvalidation(msg bus.InvalidationMessage) {
	if len(msg.Keys) == 1 && e.namer.IsClearAllSentinel(msg.Keys[0]) {
		e.rebuildLocalTier()
		return
	}

	e.tierMu.Lock()
	for _, k := range msg.Keys {
		e.localTier.Remove(k)
	}
	e.tierMu.Unlock()

	e.stats.invalidations.Add(1)
	if e.opts.EnableLogging {
		e.logger.Debug("cache: applied invalidation", "keys", len(msg.Keys), "from", msg.InstanceID)
	}
}

// handleSync applies a warm-sync message to the Local Tier. It stores
// the value still encoded, since at this point no caller's type is in
// scope to decode into — decoding is deferred to the next typed read.
func (e *Engine) handleSync(msg bus.SyncMessage) {
	ttl := time.Until(msg.LocalExpiryAt)
	if ttl <= 0 {
		return
	}

	e.tierMu.Lock()
	e.localTier.Set(msg.Key, rawSynced{data: msg.Value}, ttl)
	e.tierMu.Unlock()
}

func (e *Engine) handleReconnect() {
	if !e.opts.FlushLocalCacheOnBusReconnection {
		return
	}
	if e.opts.EnableLogging {
		e.logger.Info("cache: redis reconnected, rebuilding local tier")
	}
	e.rebuildLocalTier()
}

func (e *Engine) rebuildLocalTier() {
	e.tierMu.Lock()
	e.localTier.Rebuild()
	e.tierMu.Unlock()
}

func (e *Engine) handleError(err error, msg, key string) {
	if e.opts.OnError != nil {
		e.opts.OnError(err)
	}
	if !e.opts.EnableLogging {
		return
	}
	if key != "" {
		e.logger.Error(msg, "key", key, "error", err)
	} else {
		e.logger.Error(msg, "error", err)
	}
}

// Exists checks Redis first, then falls back to the Local Tier, so a
// purely-local entry is still "exists" when Redis is unreachable.
func (e *Engine) Exists(ctx context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, ErrCacheClosed
	}
	if key == "" {
		return false, ErrInvalidArgument
	}

	nk := e.namer.Name(key)
	_, err := e.store.Get(ctx, nk)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, storage.ErrNotFound):
		_, found := e.localTier.Get(nk)
		return found, nil
	default:
		e.handleError(err, "cache: exists check failed", nk)
		if e.opts.ThrowIfDistributedCacheError {
			return false, err
		}
		_, found := e.localTier.Get(nk)
		return found, nil
	}
}

// Set writes value to the Local Tier and/or Redis per opts and
// publishes a warming sync message. It does not publish an
// invalidation: peers receive the new value directly.
func (e *Engine) Set(ctx context.Context, key string, value any, optFns ...SetOption) error {
	if e.closed.Load() {
		return ErrCacheClosed
	}
	if key == "" {
		return ErrInvalidArgument
	}

	var o setOptions
	for _, fn := range optFns {
		fn(&o)
	}

	nk := e.namer.Name(key)
	return e.writeThrough(ctx, nk, value, e.resolveLocalTTL(o.localTTL), e.resolveRedisTTL(o.redisTTL), o.fireAndForget, resolveEnable(o.localEnable), resolveEnable(o.redisEnable))
}

// SetAll performs Set for every entry, continuing past a swallowed
// per-entry error; it returns the first error encountered, if any.
func (e *Engine) SetAll(ctx context.Context, items map[string]any, optFns ...SetOption) error {
	if e.closed.Load() {
		return ErrCacheClosed
	}
	if len(items) == 0 {
		return ErrInvalidArgument
	}

	var firstErr error
	for key, value := range items {
		if err := e.Set(ctx, key, value, optFns...); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) resolveLocalTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.opts.DefaultLocalExpirationTime
}

func (e *Engine) resolveRedisTTL(ttl time.Duration) time.Duration {
	if ttl > 0 {
		return ttl
	}
	return e.opts.DefaultDistributedExpirationTime
}

func resolveEnable(v *bool) bool {
	if v == nil {
		return true
	}
	return *v
}

// writeThrough performs the local write, serializes once, optionally
// writes Redis, and always publishes the warming sync message unless
// serialization or a surfaced Redis error aborts the call.
func (e *Engine) writeThrough(ctx context.Context, nk string, value any, localTTL, redisTTL time.Duration, fireAndForget, localEnable, redisEnable bool) error {
	if localEnable {
		e.localTier.Set(nk, value, localTTL)
	}

	data, err := e.marshaller.Marshal(value)
	if err != nil {
		e.handleError(err, "cache: failed to serialize value", nk)
		if e.opts.ThrowIfDistributedCacheError {
			return err
		}
		return nil
	}

	if redisEnable {
		if err := e.store.Set(ctx, nk, data, redisTTL, fireAndForget); err != nil {
			e.handleError(err, "cache: failed to write redis", nk)
			if e.opts.ThrowIfDistributedCacheError {
				return err
			}
		}
	}

	e.bus.PublishSync(ctx, nk, data, time.Now().Add(localTTL))
	return nil
}

// Get retrieves key, optionally invoking a retriever on miss. It
// never returns a cache-miss as an error: a miss with no retriever
// (or a swallowed retriever failure) is (nil, nil).
func (e *Engine) Get(ctx context.Context, key string, optFns ...GetOption) (any, error) {
	v, _, err := e.get(ctx, key, optFns...)
	return v, err
}

// TryGet is Get with an explicit found flag instead of a nil/zero
// result standing in for a miss.
func (e *Engine) TryGet(ctx context.Context, key string, optFns ...GetOption) (any, bool, error) {
	return e.get(ctx, key, optFns...)
}

func (e *Engine) get(ctx context.Context, key string, optFns ...GetOption) (any, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrCacheClosed
	}
	if key == "" {
		return nil, false, ErrInvalidArgument
	}

	var o getOptions
	for _, fn := range optFns {
		fn(&o)
	}

	nk := e.namer.Name(key)

	if raw, found := e.localTier.Get(nk); found {
		if rs, ok := raw.(rawSynced); ok {
			value, err := e.decodeWireValue(rs.data, &o)
			if err != nil {
				if e.opts.EnableLogging {
					e.logger.Warn("cache: failed to decode synced value, treating as miss", "key", nk, "error", err)
				}
				e.localTier.Remove(nk)
				e.stats.localMisses.Add(1)
				return e.onMiss(ctx, key, nk, &o)
			}
			// Only promote the entry to its resolved type once a caller
			// has actually supplied one; an untyped read leaves the
			// rawSynced entry in place so a later typed read still gets
			// the real shape instead of whatever `any` decoded to.
			if o.decodeTarget != nil {
				e.localTier.Set(nk, value, e.resolveLocalTTL(o.localTTL))
			}
			e.stats.localHits.Add(1)
			return value, true, nil
		}
		e.stats.localHits.Add(1)
		return raw, true, nil
	}
	e.stats.localMisses.Add(1)

	data, err := e.store.Get(ctx, nk)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			e.handleError(err, "cache: redis get failed", nk)
			if e.opts.ThrowIfDistributedCacheError {
				return nil, false, err
			}
		}
		e.stats.remoteMisses.Add(1)
		return e.onMiss(ctx, key, nk, &o)
	}
	e.stats.remoteHits.Add(1)

	value, err := e.decodeWireValue(data, &o)
	if err != nil {
		if e.opts.EnableLogging {
			e.logger.Warn("cache: failed to deserialize redis value, treating as miss", "key", nk, "error", err)
		}
		return e.onMiss(ctx, key, nk, &o)
	}

	ttl, err := e.store.TTLOf(ctx, nk)
	if err != nil || ttl <= 0 {
		ttl = e.opts.DefaultLocalExpirationTime
	}
	e.localTier.Set(nk, value, ttl)

	return value, true, nil
}

// decodeWireValue unmarshals serialized bytes read from Redis or
// carried in a warm-sync message. When the caller supplied a decode
// target (GetOption's DecodeInto), it unmarshals directly into it so
// a struct or slice value keeps its real shape; otherwise it decodes
// into `any`, which is the best any untyped caller can get — a JSON
// object comes back as a map, a JSON array as a slice of `any`.
func (e *Engine) decodeWireValue(data []byte, o *getOptions) (any, error) {
	if o.decodeTarget != nil {
		if err := e.marshaller.Unmarshal(data, o.decodeTarget); err != nil {
			return nil, err
		}
		return reflect.ValueOf(o.decodeTarget).Elem().Interface(), nil
	}

	var value any
	if err := e.marshaller.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func (e *Engine) onMiss(ctx context.Context, key, nk string, o *getOptions) (any, bool, error) {
	if o.retriever == nil {
		return nil, false, nil
	}

	localTTL := e.resolveLocalTTL(o.localTTL)
	redisTTL := e.resolveRedisTTL(o.redisTTL)

	result, err, _ := e.sf.Do(nk, func() (any, error) {
		val, rerr := o.retriever(ctx, key)
		if rerr != nil {
			e.handleError(rerr, "cache: retriever failed", nk)
			if e.opts.ThrowIfDistributedCacheError {
				return nil, rerr
			}
			return nil, errRetrieverSwallowed
		}
		if werr := e.writeThrough(ctx, nk, val, localTTL, redisTTL, o.fireAndForget, true, true); werr != nil {
			return val, werr
		}
		return val, nil
	})

	if err != nil {
		if errors.Is(err, errRetrieverSwallowed) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return result, true, nil
}

// Remove namespaces every key, issues one Redis multi-key delete,
// removes them from the Local Tier, and publishes one invalidation
// carrying the full list.
func (e *Engine) Remove(ctx context.Context, keys []string, fireAndForget bool) error {
	if e.closed.Load() {
		return ErrCacheClosed
	}
	if len(keys) == 0 {
		return ErrInvalidArgument
	}

	namespaced := make([]string, len(keys))
	for i, k := range keys {
		namespaced[i] = e.namer.Name(k)
	}

	if err := e.store.DeleteMany(ctx, namespaced, fireAndForget); err != nil {
		e.handleError(err, "cache: redis delete failed", "")
		if e.opts.ThrowIfDistributedCacheError {
			return err
		}
	}

	for _, nk := range namespaced {
		e.localTier.Remove(nk)
	}

	e.bus.PublishInvalidation(ctx, namespaced)
	e.stats.invalidations.Add(1)
	return nil
}

// RemoveWithPattern scans every non-replica endpoint for pattern,
// deletes each match individually (bounded concurrency via errgroup),
// and returns the namespaced keys actually removed. cancel, if it
// fires, stops issuing new deletes; keys already deleted stay deleted
// and are still published. cancel is not checked during the scan: the
// scan runs to completion before the first delete is issued.
func (e *Engine) RemoveWithPattern(ctx context.Context, pattern string, fireAndForget bool, cancel <-chan struct{}) ([]string, error) {
	if e.closed.Load() {
		return nil, ErrCacheClosed
	}
	if pattern == "" {
		return nil, ErrInvalidArgument
	}

	namespacedPattern := e.namer.Pattern(pattern)
	matched, err := e.store.ScanPattern(ctx, namespacedPattern)
	if err != nil {
		e.handleError(err, "cache: pattern scan failed", namespacedPattern)
		if e.opts.ThrowIfDistributedCacheError {
			return nil, err
		}
		return nil, nil
	}

	var (
		mu      sync.Mutex
		removed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(16)

scanLoop:
	for _, key := range matched {
		select {
		case <-cancel:
			break scanLoop
		default:
		}

		g.Go(func() error {
			select {
			case <-cancel:
				return nil
			default:
			}
			if err := e.store.DeleteMany(gctx, []string{key}, fireAndForget); err != nil {
				e.handleError(err, "cache: pattern delete failed", key)
				if e.opts.ThrowIfDistributedCacheError {
					return err
				}
				return nil
			}
			mu.Lock()
			removed = append(removed, key)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return removed, err
	}

	for _, key := range removed {
		e.localTier.Remove(key)
	}
	if len(removed) > 0 {
		e.bus.PublishInvalidation(ctx, removed)
		e.stats.invalidations.Add(1)
	}
	return removed, nil
}

// KeysAsync yields every namespaced key matching pattern across all
// non-replica endpoints. The underlying scan is gathered eagerly
// before the first yield — still useful to a consumer that wants to
// stop early via range-over-func break, but not a cursor-streamed
// sequence; see DESIGN.md.
func (e *Engine) KeysAsync(ctx context.Context, pattern string) iter.Seq2[string, error] {
	namespacedPattern := e.namer.Pattern(pattern)
	return func(yield func(string, error) bool) {
		keys, err := e.store.ScanPattern(ctx, namespacedPattern)
		if err != nil {
			yield("", err)
			return
		}
		for _, k := range keys {
			if !yield(k, nil) {
				return
			}
		}
	}
}

// GetExpiration returns the remaining Redis TTL for key, or the
// configured default distributed expiration on any failure.
func (e *Engine) GetExpiration(ctx context.Context, key string) (time.Duration, error) {
	if e.closed.Load() {
		return 0, ErrCacheClosed
	}
	if key == "" {
		return 0, ErrInvalidArgument
	}

	nk := e.namer.Name(key)
	ttl, err := e.store.TTLOf(ctx, nk)
	if err != nil {
		e.handleError(err, "cache: ttl lookup failed", nk)
		return e.opts.DefaultDistributedExpirationTime, nil
	}
	return ttl, nil
}

// ClearAll issues Redis FLUSHDB, rebuilds the Local Tier, and
// publishes the clear-all sentinel invalidation.
func (e *Engine) ClearAll(ctx context.Context) error {
	if e.closed.Load() {
		return ErrCacheClosed
	}

	if err := e.store.FlushDB(ctx); err != nil {
		e.handleError(err, "cache: flushdb failed", "")
		if e.opts.ThrowIfDistributedCacheError {
			return err
		}
	}

	e.rebuildLocalTier()

	e.bus.PublishInvalidation(ctx, []string{e.namer.ClearAllSentinel()})
	e.stats.invalidations.Add(1)
	return nil
}

// FlushLocalCaches rebuilds only this instance's Local Tier, but — as
// observed in the original design — it publishes the same sentinel
// invalidation ClearAll does, so it also wipes every peer's local
// tier. A peer cannot distinguish the two messages.
func (e *Engine) FlushLocalCaches() error {
	if e.closed.Load() {
		return ErrCacheClosed
	}
	e.rebuildLocalTier()
	e.bus.PublishInvalidation(context.Background(), []string{e.namer.ClearAllSentinel()})
	return nil
}

// Close unsubscribes from the bus, closes the Redis transport, and
// disposes the Local Tier.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := e.bus.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.store.Close(); err != nil {
		errs = append(errs, err)
	}
	e.localTier.Close()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// Stats returns a snapshot of cumulative counters.
func (e *Engine) Stats() Stats {
	return Stats{
		LocalHits:     e.stats.localHits.Load(),
		LocalMisses:   e.stats.localMisses.Load(),
		RemoteHits:    e.stats.remoteHits.Load(),
		RemoteMisses:  e.stats.remoteMisses.Load(),
		Invalidations: e.stats.invalidations.Load(),
	}
}
