// Command example demonstrates the coherence protocol across two
// cooperating instances against a local Redis.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	hybridcache "github.com/relaycache/hybridcache"
	"github.com/relaycache/hybridcache/cache"
)

type User struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfgA := hybridcache.DefaultConfig()
	cfgA.InstanceID = "instance-a"
	cfgA.InstancesSharedName = "example"
	cfgA.RedisBackChannelName = "example:sync"
	cfgA.DebugMode = true
	cfgA.EnableLogging = true
	cfgA.Logger = cache.NewConsoleLogger("instance-a")

	a, err := hybridcache.New(ctx, cfgA)
	if err != nil {
		log.Fatalf("failed to create instance-a: %v", err)
	}
	defer a.Close()

	cfgB := cfgA
	cfgB.InstanceID = "instance-b"
	cfgB.Logger = cache.NewConsoleLogger("instance-b")

	b, err := hybridcache.New(ctx, cfgB)
	if err != nil {
		log.Fatalf("failed to create instance-b: %v", err)
	}
	defer b.Close()

	key := "user:123"
	user := User{ID: 123, Name: "John Doe", Email: "john@example.com"}

	fmt.Println("=== instance-a sets a value ===")
	if err := hybridcache.Set(ctx, a, key, user); err != nil {
		log.Fatalf("set failed: %v", err)
	}

	fmt.Println("=== instance-b reads it back (remote hit, then local warm) ===")
	got, found, err := hybridcache.Get[User](ctx, b, key)
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}
	fmt.Printf("instance-b found=%v value=%+v\n", found, got)

	fmt.Println("\n=== instance-a updates the value; instance-b's local tier should warm via the bus ===")
	updated := User{ID: 123, Name: "John Doe II", Email: "john2@example.com"}
	if err := hybridcache.Set(ctx, a, key, updated); err != nil {
		log.Fatalf("set failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	got2, found2, err := hybridcache.Get[User](ctx, b, key)
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}
	fmt.Printf("instance-b found=%v value=%+v (expect Name=John Doe II, served from local tier)\n", found2, got2)

	fmt.Println("\n=== instance-a removes the key; instance-b's local tier should drop it ===")
	if err := a.Remove(ctx, []string{key}, false); err != nil {
		log.Fatalf("remove failed: %v", err)
	}
	time.Sleep(150 * time.Millisecond)

	_, found3, err := hybridcache.Get[User](ctx, b, key)
	if err != nil {
		log.Fatalf("get failed: %v", err)
	}
	fmt.Printf("instance-b found=%v (expect false)\n", found3)

	fmt.Println("\n=== stats ===")
	statsA := a.Stats()
	fmt.Printf("instance-a: %+v\n", statsA)
}
