// Package bus implements the Coherence Bus: two Redis pub/sub channels
// carried over the primary Redis connection. Channel I (invalidation)
// broadcasts keys to drop; channel B (back-channel) broadcasts
// (key, serialized value, local TTL) so peers may warm their local
// tiers without a Redis round-trip. Every message carries the
// originating instance id so the publisher's own echo is ignored.
package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaycache/hybridcache/storage"
)

// Logger is the minimal logging surface the bus needs. cache.Logger
// satisfies it structurally; the bus package never imports cache to
// avoid a cycle.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// defaultBaseBackoff is the base_ms used in the linear publish back-off,
// per spec.
const defaultBaseBackoff = 100 * time.Millisecond

// Config configures a Bus.
type Config struct {
	// InstanceID is this process's opaque, stable-for-lifetime identity.
	InstanceID string

	// InvalidationChannel and BackChannel are the literal (non-pattern)
	// channel names.
	InvalidationChannel string
	BackChannel         string

	// Marshaller encodes/decodes InvalidationMessage and SyncMessage.
	Marshaller storage.Marshaller

	// ConnectRetry is the publish-retry ceiling.
	ConnectRetry int

	// BaseBackoff is base_ms in base_ms*attempt linear back-off. Defaults
	// to 100ms.
	BaseBackoff time.Duration

	// LifetimeRetryBudget preserves the documented quirk from the
	// original design: a single per-engine counter that is
	// incremented but never reset, so the retry budget is spent once
	// over the bus's entire lifetime rather than once per call. Off by
	// default — the fixed, per-call behaviour is recommended.
	LifetimeRetryBudget bool

	Logger Logger
}

// Bus is the Coherence Bus over a single Redis connection pool.
type Bus struct {
	store      *storage.RedisStore
	marshaller storage.Marshaller
	instanceID string

	invalidationChannel string
	backChannel         string

	connectRetry        int
	baseBackoff         time.Duration
	lifetimeBudget      bool
	lifetimeRetriesUsed atomic.Int64

	log Logger

	onInvalidate func(InvalidationMessage)
	onSync       func(SyncMessage)

	pubsub  *redis.PubSub
	wg      sync.WaitGroup
	closeCh chan struct{}
	closeMu sync.Once
}

// New creates a Bus bound to store's connection. Call Subscribe to start
// listening before publishing or relying on delivery.
func New(store *storage.RedisStore, cfg Config) *Bus {
	base := cfg.BaseBackoff
	if base <= 0 {
		base = defaultBaseBackoff
	}
	retry := cfg.ConnectRetry
	if retry <= 0 {
		retry = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	return &Bus{
		store:                store,
		marshaller:           cfg.Marshaller,
		instanceID:           cfg.InstanceID,
		invalidationChannel:  cfg.InvalidationChannel,
		backChannel:          cfg.BackChannel,
		connectRetry:         retry,
		baseBackoff:          base,
		lifetimeBudget:       cfg.LifetimeRetryBudget,
		log:                  logger,
		closeCh:              make(chan struct{}),
	}
}

// OnInvalidate registers the callback invoked for every invalidation
// message not originated by this instance.
func (b *Bus) OnInvalidate(fn func(InvalidationMessage)) { b.onInvalidate = fn }

// OnSync registers the callback invoked for every back-channel sync
// message not originated by this instance.
func (b *Bus) OnSync(fn func(SyncMessage)) { b.onSync = fn }

// Subscribe opens the subscription to both channels and starts the
// delivery loop. It must complete before any public cache operation, per
// the engine lifecycle state machine.
func (b *Bus) Subscribe(ctx context.Context) error {
	b.pubsub = b.store.Subscribe(ctx, b.invalidationChannel, b.backChannel)
	if _, err := b.pubsub.Receive(ctx); err != nil {
		return storage.WrapTransport(err, "bus: subscribe failed")
	}

	b.wg.Add(1)
	go b.listen()
	return nil
}

func (b *Bus) listen() {
	defer b.wg.Done()
	ch := b.pubsub.Channel()
	for {
		select {
		case <-b.closeCh:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.dispatch(msg)
		}
	}
}

func (b *Bus) dispatch(msg *redis.Message) {
	switch msg.Channel {
	case b.invalidationChannel:
		var inv InvalidationMessage
		if err := b.marshaller.Unmarshal([]byte(msg.Payload), &inv); err != nil {
			b.log.Warn("bus: failed to decode invalidation message", "error", err)
			return
		}
		if inv.InstanceID == b.instanceID {
			return
		}
		if b.onInvalidate != nil {
			b.onInvalidate(inv)
		}
	case b.backChannel:
		var syncMsg SyncMessage
		if err := b.marshaller.Unmarshal([]byte(msg.Payload), &syncMsg); err != nil {
			b.log.Warn("bus: failed to decode sync message", "error", err)
			return
		}
		if syncMsg.EventCreatorID == b.instanceID {
			return
		}
		if b.onSync != nil {
			b.onSync(syncMsg)
		}
	}
}

// PublishInvalidation fire-and-forgets an invalidation message carrying
// keys. Never returns an error to influence the caller's write/delete
// outcome — failures are retried with linear back-off and then dropped,
// per the bus's publish contract.
func (b *Bus) PublishInvalidation(ctx context.Context, keys []string) {
	msg := InvalidationMessage{InstanceID: b.instanceID, Keys: keys}
	b.publish(ctx, b.invalidationChannel, msg)
}

// PublishSync fire-and-forgets a sync message so peers may warm their
// local tier.
func (b *Bus) PublishSync(ctx context.Context, key string, value []byte, localExpiryAt time.Time) {
	msg := SyncMessage{
		EventCreatorID: b.instanceID,
		Key:            key,
		Value:          value,
		LocalExpiryAt:  localExpiryAt,
	}
	b.publish(ctx, b.backChannel, msg)
}

func (b *Bus) publish(ctx context.Context, channel string, payload any) {
	data, err := b.marshaller.Marshal(payload)
	if err != nil {
		b.log.Error("bus: failed to encode message", "channel", channel, "error", err)
		return
	}

	budget := b.connectRetry
	if b.lifetimeBudget {
		used := int(b.lifetimeRetriesUsed.Load())
		budget = b.connectRetry - used
		if budget < 1 {
			// Lifetime retry budget spent: one attempt, no retries.
			budget = 1
		}
	}

	for attempt := 1; attempt <= budget; attempt++ {
		if err := b.store.Publish(ctx, channel, data); err == nil {
			return
		} else if attempt == budget {
			b.log.Warn("bus: publish retries exhausted, dropping message", "channel", channel, "attempts", attempt, "error", err)
		}
		if b.lifetimeBudget {
			b.lifetimeRetriesUsed.Add(1)
		}
		if attempt < budget {
			select {
			case <-time.After(b.baseBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return
			}
		}
	}
}

// Close stops the delivery loop and closes the subscription.
func (b *Bus) Close() error {
	b.closeMu.Do(func() { close(b.closeCh) })
	b.wg.Wait()
	if b.pubsub != nil {
		return b.pubsub.Close()
	}
	return nil
}
