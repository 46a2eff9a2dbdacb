package bus

import (
	"context"
	"testing"
	"time"

	"github.com/relaycache/hybridcache/storage"
)

func newTestBuses(t *testing.T, n int) []*Bus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	marshaller := storage.NewJSONMarshaller()
	buses := make([]*Bus, n)
	for i := range buses {
		store, err := storage.NewRedisStore(ctx, "localhost:6379", "", 0)
		if err != nil {
			t.Skipf("redis not reachable, skipping: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })

		b := New(store, Config{
			InstanceID:          idFor(i),
			InvalidationChannel: "bus-test:invalidate",
			BackChannel:         "bus-test:sync",
			Marshaller:          marshaller,
			ConnectRetry:        3,
		})
		if err := b.Subscribe(context.Background()); err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		t.Cleanup(func() { _ = b.Close() })
		buses[i] = b
	}
	return buses
}

func idFor(i int) string {
	return []string{"instance-a", "instance-b", "instance-c"}[i]
}

func TestBusSelfEchoSuppressed(t *testing.T) {
	buses := newTestBuses(t, 1)
	a := buses[0]

	received := make(chan InvalidationMessage, 1)
	a.OnInvalidate(func(msg InvalidationMessage) { received <- msg })

	a.PublishInvalidation(context.Background(), []string{"app:u:1"})

	select {
	case <-received:
		t.Fatal("instance received its own invalidation echo")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestBusInvalidationDeliveredToPeer(t *testing.T) {
	buses := newTestBuses(t, 2)
	a, b := buses[0], buses[1]

	received := make(chan InvalidationMessage, 1)
	b.OnInvalidate(func(msg InvalidationMessage) { received <- msg })

	a.PublishInvalidation(context.Background(), []string{"app:u:1", "app:u:2"})

	select {
	case msg := <-received:
		if msg.InstanceID != "instance-a" {
			t.Fatalf("InstanceID = %q, want %q", msg.InstanceID, "instance-a")
		}
		if len(msg.Keys) != 2 || msg.Keys[0] != "app:u:1" {
			t.Fatalf("Keys = %v, want [app:u:1 app:u:2]", msg.Keys)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received invalidation")
	}
}

func TestBusSyncDeliveredToPeer(t *testing.T) {
	buses := newTestBuses(t, 2)
	a, b := buses[0], buses[1]

	received := make(chan SyncMessage, 1)
	b.OnSync(func(msg SyncMessage) { received <- msg })

	expiry := time.Now().Add(30 * time.Second)
	a.PublishSync(context.Background(), "app:u:1", []byte(`"alice"`), expiry)

	select {
	case msg := <-received:
		if msg.Key != "app:u:1" || string(msg.Value) != `"alice"` {
			t.Fatalf("got %+v", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("peer never received sync message")
	}
}
