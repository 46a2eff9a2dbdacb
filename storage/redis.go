package storage

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the Redis transport adapter consumed by the Hybrid Engine
// and Coherence Bus. It wraps a redis.UniversalClient so the same code
// path works against a single node, a sentinel-backed primary, or a
// cluster.
type RedisStore struct {
	client       redis.UniversalClient
	reconnected  atomic.Int64
	onReconnect  []func()
	dialedBefore atomic.Bool
}

// NewRedisStore dials a single-node Redis client. Use NewRedisStoreWithClient
// to supply a cluster or sentinel-backed client instead.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreWithClient(ctx, client)
}

// NewRedisStoreWithClient wraps an already-configured redis.UniversalClient
// (single node, sentinel, or cluster) and verifies connectivity with PING.
// The store is returned usable even when the initial PING fails — go-redis
// retries dials transparently on the next command — so a caller configured
// to tolerate a slow-starting Redis can still use the returned store; it is
// the error return, not a nil store, that signals the failed handshake.
func NewRedisStoreWithClient(ctx context.Context, client redis.UniversalClient) (*RedisStore, error) {
	rs := &RedisStore{client: client}
	rs.client.AddHook(rs.reconnectHook())

	if err := client.Ping(ctx).Err(); err != nil {
		return rs, WrapTransport(err, "storage: initial connect failed")
	}
	return rs, nil
}

// Client returns the underlying Redis client so the Coherence Bus can
// issue PUBLISH/SUBSCRIBE on the same connection pool as data operations.
func (rs *RedisStore) Client() redis.UniversalClient {
	return rs.client
}

// OnReconnect registers a callback invoked when the transport reports a
// restored connection (any dial after the first).
func (rs *RedisStore) OnReconnect(fn func()) {
	rs.onReconnect = append(rs.onReconnect, fn)
}

// reconnectHook approximates a "connection restored" event using go-redis's
// DialHook: the first dial is the initial connect, every subsequent dial
// on the pool is treated as a reconnect.
func (rs *RedisStore) reconnectHook() redis.Hook {
	return &dialHook{store: rs}
}

type dialHook struct{ store *RedisStore }

func (h *dialHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := next(ctx, network, addr)
		if err == nil {
			if h.store.dialedBefore.Swap(true) {
				h.store.reconnected.Add(1)
				for _, fn := range h.store.onReconnect {
					fn()
				}
			}
		}
		return conn, err
	}
}

func (h *dialHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *dialHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

// Get retrieves a value from Redis. Returns ErrNotFound on a miss.
func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := rs.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, WrapTransport(err, "storage: get failed")
	}
	return val, nil
}

// Set stores a value with a TTL (zero means no expiry). When
// fireAndForget is true the write is dispatched without the caller
// blocking on the acknowledgement.
func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration, fireAndForget bool) error {
	do := func() error {
		return rs.client.Set(context.WithoutCancel(ctx), key, value, ttl).Err()
	}
	if fireAndForget {
		go func() {
			if err := do(); err != nil {
				_ = err // caller opted out of the acknowledgement; nothing to surface.
			}
		}()
		return nil
	}
	if err := do(); err != nil {
		return WrapTransport(err, "storage: set failed")
	}
	return nil
}

// DeleteMany removes every listed key in one multi-key DELETE.
func (rs *RedisStore) DeleteMany(ctx context.Context, keys []string, fireAndForget bool) error {
	if len(keys) == 0 {
		return nil
	}
	do := func() error {
		return rs.client.Del(context.WithoutCancel(ctx), keys...).Err()
	}
	if fireAndForget {
		go func() {
			if err := do(); err != nil {
				_ = err
			}
		}()
		return nil
	}
	if err := do(); err != nil {
		return WrapTransport(err, "storage: delete failed")
	}
	return nil
}

// TTLOf returns the remaining time-to-live for a key. A negative
// duration from Redis (no expiry, or key absent) is passed through
// unchanged with a nil error, exactly as go-redis reports it, so
// callers tell the two cases apart by its value.
func (rs *RedisStore) TTLOf(ctx context.Context, key string) (time.Duration, error) {
	d, err := rs.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, WrapTransport(err, "storage: ttl lookup failed")
	}
	return d, nil
}

// FlushDB issues a server-level FLUSHDB as a raw command on the current
// database.
func (rs *RedisStore) FlushDB(ctx context.Context) error {
	if err := rs.client.Do(ctx, "FLUSHDB").Err(); err != nil {
		return WrapTransport(err, "storage: flushdb failed")
	}
	return nil
}

// ScanPattern returns every key matching pattern across all connected,
// non-replica endpoints. For a cluster client this fans out one SCAN
// cursor per master node concurrently; for a single node there is
// exactly one such endpoint. It stops early if ctx is cancelled.
func (rs *RedisStore) ScanPattern(ctx context.Context, pattern string) ([]string, error) {
	if cluster, ok := rs.client.(*redis.ClusterClient); ok {
		var (
			mu   sync.Mutex
			keys []string
		)
		// ForEachMaster already fans out to every master concurrently and
		// waits for them all, so no separate errgroup is needed here.
		err := cluster.ForEachMaster(ctx, func(mctx context.Context, master *redis.Client) error {
			found, err := scanOne(mctx, master, pattern)
			if err != nil {
				return err
			}
			mu.Lock()
			keys = append(keys, found...)
			mu.Unlock()
			return nil
		})
		if err != nil {
			return keys, WrapTransport(err, "storage: cluster scan failed")
		}
		return keys, nil
	}

	return scanOne(ctx, rs.client, pattern)
}

func scanOne(ctx context.Context, client redis.Cmdable, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return keys, nil
		}
		batch, next, err := client.Scan(ctx, cursor, pattern, 256).Result()
		if err != nil {
			return keys, WrapTransport(err, "storage: scan failed")
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Publish fires a message on a literal channel.
func (rs *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := rs.client.Publish(ctx, channel, payload).Err(); err != nil {
		return WrapTransport(err, "storage: publish failed")
	}
	return nil
}

// Subscribe opens a subscription to one or more literal channels.
func (rs *RedisStore) Subscribe(ctx context.Context, channels ...string) *redis.PubSub {
	return rs.client.Subscribe(ctx, channels...)
}

// Close releases the underlying client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
