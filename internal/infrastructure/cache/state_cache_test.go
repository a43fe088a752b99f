package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/homecore/internal/infrastructure/config"
)

func TestKey(t *testing.T) {
	if got := key("0x00158d0001a2b3c4"); got != "device:state:0x00158d0001a2b3c4" {
		t.Errorf("key() = %q", got)
	}
}

func TestConnect_Disabled(t *testing.T) {
	if _, err := Connect(config.RedisConfig{Enabled: false}); !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	_, err := Connect(config.RedisConfig{Enabled: true, Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestCloseNil(t *testing.T) {
	var c *StateCache
	if err := c.Close(); err != nil {
		t.Errorf("Close() on nil cache = %v", err)
	}
}

// ─── Live Redis ─────────────────────────────────────────────────────────────

// liveCache connects to HOMECORE_TEST_REDIS_ADDR or skips.
func liveCache(t *testing.T) *StateCache {
	t.Helper()
	addr := os.Getenv("HOMECORE_TEST_REDIS_ADDR")
	if addr == "" || testing.Short() {
		t.Skip("HOMECORE_TEST_REDIS_ADDR not set, skipping live Redis test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	t.Cleanup(func() {
		rdb.FlushDB(context.Background())
		rdb.Close()
	})
	return NewStateCache(rdb, time.Minute)
}

func TestStateCache_RoundTrip(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get(missing) = ok %v, err %v", ok, err)
	}

	if err := c.Set(ctx, "lamp", map[string]any{"state": "ON", "brightness": 200}); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	state, ok, err := c.Get(ctx, "lamp")
	if err != nil || !ok {
		t.Fatalf("Get() = ok %v, err %v", ok, err)
	}
	if state["state"] != "ON" || state["brightness"] != 200.0 {
		t.Errorf("Get() = %v", state)
	}

	if err := c.Delete(ctx, "lamp"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, ok, _ := c.Get(ctx, "lamp"); ok {
		t.Error("state still cached after Delete()")
	}
}

func TestStateCache_RemoveAllExcept(t *testing.T) {
	c := liveCache(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := c.Set(ctx, id, map[string]any{"state": "OFF"}); err != nil {
			t.Fatalf("Set(%s) error = %v", id, err)
		}
	}

	removed, err := c.RemoveAllExcept(ctx, []string{"b", ""})
	if err != nil {
		t.Fatalf("RemoveAllExcept() error = %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("removed = %v, want a and c", removed)
	}
	if _, ok, _ := c.Get(ctx, "b"); !ok {
		t.Error("kept device was removed")
	}
}
