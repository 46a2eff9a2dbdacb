package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/relaycache/hybridcache/bus"
)

func newTestEngine(t *testing.T, group string) *Engine {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	opts := DefaultOptions()
	opts.InstancesSharedName = group
	opts.RedisBackChannelName = group + ":sync"
	opts.AbortOnConnectFail = true
	opts.DefaultLocalExpirationTime = time.Minute
	opts.DefaultDistributedExpirationTime = time.Minute

	e, err := New(ctx, opts)
	if err != nil {
		t.Skipf("redis not reachable, skipping: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngineSetGetRoundTrip(t *testing.T) {
	e := newTestEngine(t, "engine-test-roundtrip")
	ctx := context.Background()

	if err := e.Set(ctx, "u:1", "alice"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := e.Get(ctx, "u:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "alice" {
		t.Fatalf("Get() = %v, want alice", got)
	}
}

func TestEngineGetMissWithoutRetrieverReturnsNilNil(t *testing.T) {
	e := newTestEngine(t, "engine-test-miss")
	ctx := context.Background()

	v, found, err := e.TryGet(ctx, "u:missing")
	if err != nil {
		t.Fatalf("TryGet() error = %v", err)
	}
	if found || v != nil {
		t.Fatalf("TryGet() = (%v, %v), want (nil, false)", v, found)
	}
}

// TestEngineStringValueSurvivesLocalRoundTrip guards against the local
// tier coercing a cached string that happens to parse as JSON (e.g.
// "123") into some other Go type on a later read.
func TestEngineStringValueSurvivesLocalRoundTrip(t *testing.T) {
	e := newTestEngine(t, "engine-test-string-roundtrip")
	ctx := context.Background()

	for _, v := range []string{"123", "true", "null", "plain"} {
		if err := e.Set(ctx, "str:"+v, v); err != nil {
			t.Fatalf("Set(%q) error = %v", v, err)
		}
		got, err := e.Get(ctx, "str:"+v)
		if err != nil {
			t.Fatalf("Get(%q) error = %v", v, err)
		}
		if got != v {
			t.Fatalf("Get(%q) = %#v, want the original string unchanged", v, got)
		}
	}
}

// TestEngineSyncedValuePreservesConcreteType exercises the exact
// regression a generic Get[T] call depends on: a value applied via
// handleSync (the warm-sync path a peer's Set triggers) must decode
// into the caller's real type when one is supplied, not into a
// map[string]any.
func TestEngineSyncedValuePreservesConcreteType(t *testing.T) {
	e := newTestEngine(t, "engine-test-sync-decode")
	ctx := context.Background()

	type profile struct {
		Name string `json:"name"`
	}

	payload, err := e.marshaller.Marshal(profile{Name: "zoe"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	e.handleSync(bus.SyncMessage{
		EventCreatorID: "peer",
		Key:            e.namer.Name("p:sync"),
		Value:          payload,
		LocalExpiryAt:  time.Now().Add(time.Minute),
	})

	var out profile
	v, found, err := e.TryGet(ctx, "p:sync", DecodeInto(&out))
	if err != nil {
		t.Fatalf("TryGet() error = %v", err)
	}
	if !found {
		t.Fatal("TryGet() did not find the synced value")
	}
	typed, ok := v.(profile)
	if !ok || typed.Name != "zoe" {
		t.Fatalf("TryGet() = %#v, want profile{Name: \"zoe\"}", v)
	}
}

// TestEngineSyncedValueUntypedReadDoesNotPoisonTypedRead checks that
// reading a synced entry through the untyped any-based API first
// doesn't corrupt it for a later typed read of the same key.
func TestEngineSyncedValueUntypedReadDoesNotPoisonTypedRead(t *testing.T) {
	e := newTestEngine(t, "engine-test-sync-mixed-read")
	ctx := context.Background()

	type profile struct {
		Name string `json:"name"`
	}

	payload, err := e.marshaller.Marshal(profile{Name: "zoe"})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	e.handleSync(bus.SyncMessage{
		EventCreatorID: "peer",
		Key:            e.namer.Name("p:mixed"),
		Value:          payload,
		LocalExpiryAt:  time.Now().Add(time.Minute),
	})

	if _, _, err := e.TryGet(ctx, "p:mixed"); err != nil {
		t.Fatalf("untyped TryGet() error = %v", err)
	}

	var out profile
	v, found, err := e.TryGet(ctx, "p:mixed", DecodeInto(&out))
	if err != nil {
		t.Fatalf("typed TryGet() error = %v", err)
	}
	if !found {
		t.Fatal("typed TryGet() did not find the synced value")
	}
	if typed, ok := v.(profile); !ok || typed.Name != "zoe" {
		t.Fatalf("typed TryGet() = %#v, want profile{Name: \"zoe\"}", v)
	}
}

func TestEngineGetMissInvokesRetrieverAndBackfills(t *testing.T) {
	e := newTestEngine(t, "engine-test-retriever")
	ctx := context.Background()

	calls := 0
	retriever := func(_ context.Context, key string) (any, error) {
		calls++
		return "loaded:" + key, nil
	}

	v, err := e.Get(ctx, "u:2", WithRetriever(retriever))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if v != "loaded:u:2" {
		t.Fatalf("Get() = %v, want loaded:u:2", v)
	}
	if calls != 1 {
		t.Fatalf("retriever calls = %d, want 1", calls)
	}

	v2, err := e.Get(ctx, "u:2")
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if v2 != "loaded:u:2" {
		t.Fatalf("second Get() = %v, want the backfilled value", v2)
	}
}

func TestEngineRetrieverErrorSwallowedIsMiss(t *testing.T) {
	e := newTestEngine(t, "engine-test-retriever-error")
	ctx := context.Background()

	boom := errors.New("boom")
	v, found, err := e.TryGet(ctx, "u:3", WithRetriever(func(_ context.Context, _ string) (any, error) {
		return nil, boom
	}))
	if err != nil {
		t.Fatalf("TryGet() error = %v, want nil (swallowed)", err)
	}
	if found || v != nil {
		t.Fatalf("TryGet() = (%v, %v), want (nil, false)", v, found)
	}
}

func TestEngineRemoveClearsBothTiers(t *testing.T) {
	e := newTestEngine(t, "engine-test-remove")
	ctx := context.Background()

	if err := e.Set(ctx, "u:4", "bob"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := e.Remove(ctx, []string{"u:4"}, false); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	_, found, err := e.TryGet(ctx, "u:4")
	if err != nil {
		t.Fatalf("TryGet() error = %v", err)
	}
	if found {
		t.Fatal("TryGet() found a removed key")
	}
}

func TestEngineExists(t *testing.T) {
	e := newTestEngine(t, "engine-test-exists")
	ctx := context.Background()

	if ok, err := e.Exists(ctx, "u:5"); err != nil || ok {
		t.Fatalf("Exists() = (%v, %v), want (false, nil)", ok, err)
	}

	if err := e.Set(ctx, "u:5", "carol"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if ok, err := e.Exists(ctx, "u:5"); err != nil || !ok {
		t.Fatalf("Exists() = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestEngineClearAll(t *testing.T) {
	e := newTestEngine(t, "engine-test-clearall")
	ctx := context.Background()

	if err := e.Set(ctx, "u:6", "dave"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := e.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() error = %v", err)
	}

	_, found, err := e.TryGet(ctx, "u:6")
	if err != nil {
		t.Fatalf("TryGet() error = %v", err)
	}
	if found {
		t.Fatal("TryGet() found a key after ClearAll")
	}
}

func TestEngineRemoveWithPattern(t *testing.T) {
	e := newTestEngine(t, "engine-test-pattern")
	ctx := context.Background()

	if err := e.SetAll(ctx, map[string]any{"p:1": "a", "p:2": "b"}); err != nil {
		t.Fatalf("SetAll() error = %v", err)
	}

	removed, err := e.RemoveWithPattern(ctx, "p:", false, nil)
	if err != nil {
		t.Fatalf("RemoveWithPattern() error = %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("RemoveWithPattern() removed %d keys, want 2", len(removed))
	}
}

func TestEngineStats(t *testing.T) {
	e := newTestEngine(t, "engine-test-stats")
	ctx := context.Background()

	if err := e.Set(ctx, "u:7", "erin"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if _, err := e.Get(ctx, "u:7"); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	stats := e.Stats()
	if stats.LocalHits < 1 {
		t.Fatalf("Stats().LocalHits = %d, want >= 1", stats.LocalHits)
	}
}
