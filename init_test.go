package hybridcache

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.RedisConnectString != "localhost:6379" {
		t.Errorf("RedisConnectString = %q, want localhost:6379", cfg.RedisConnectString)
	}
	if cfg.InstancesSharedName != "app" {
		t.Errorf("InstancesSharedName = %q, want app", cfg.InstancesSharedName)
	}
	if cfg.ConnectRetry != 3 {
		t.Errorf("ConnectRetry = %d, want 3", cfg.ConnectRetry)
	}
	if cfg.DebugMode {
		t.Error("DebugMode should default to false")
	}
	if cfg.LocalTierFactory != nil {
		t.Error("LocalTierFactory should default to nil (Ristretto at New)")
	}
}

func newTestCache(t *testing.T, group string) Cache {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := DefaultConfig()
	cfg.InstancesSharedName = group
	cfg.RedisBackChannelName = group + ":sync"
	cfg.AbortOnConnectFail = true

	c, err := New(ctx, cfg)
	if err != nil {
		t.Skipf("redis not reachable, skipping: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestNewCacheOperations(t *testing.T) {
	c := newTestCache(t, "root-test-ops")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Set(ctx, "test:key", "test:value"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	value, found, err := c.TryGet(ctx, "test:key")
	if err != nil {
		t.Fatalf("TryGet() error = %v", err)
	}
	if !found {
		t.Fatal("TryGet() did not find a value that was just Set")
	}
	if value != "test:value" {
		t.Fatalf("TryGet() = %v, want test:value", value)
	}

	if err := c.Remove(ctx, []string{"test:key"}, false); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if _, found, err := c.TryGet(ctx, "test:key"); err != nil || found {
		t.Fatalf("TryGet() after Remove = (found=%v, err=%v), want (false, nil)", found, err)
	}
}

func TestGetTypedRoundTrip(t *testing.T) {
	c := newTestCache(t, "root-test-generics")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type profile struct{ Name string }

	if err := Set(ctx, c, "p:1", profile{Name: "zoe"}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, found, err := Get[profile](ctx, c, "p:1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !found {
		t.Fatal("Get() did not find a value that was just Set")
	}
	if got.Name != "zoe" {
		t.Fatalf("Get() = %+v, want Name=zoe", got)
	}
}

func TestGetTypeMismatch(t *testing.T) {
	c := newTestCache(t, "root-test-mismatch")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Set(ctx, "m:1", "a string"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, _, err := Get[int](ctx, c, "m:1")
	if err != ErrTypeMismatch {
		t.Fatalf("Get() error = %v, want ErrTypeMismatch", err)
	}
}
