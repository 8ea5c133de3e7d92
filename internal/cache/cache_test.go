package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

func TestLRUCacheSetGet(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "key1", []byte("value1"), time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := c.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != "value1" {
		t.Errorf("Get() = %q, want value1", got)
	}

	t.Run("miss returns nil nil", func(t *testing.T) {
		got, err := c.Get(ctx, "missing")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got != nil {
			t.Errorf("Get(missing) = %q, want nil", got)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		c.Set(ctx, "key1", []byte("value2"), time.Minute)
		got, _ := c.Get(ctx, "key1")
		if string(got) != "value2" {
			t.Errorf("Get() = %q after overwrite, want value2", got)
		}
	})
}

func TestLRUCacheTTLExpiry(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "short", []byte("v"), 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	got, err := c.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %q after expiry, want nil", got)
	}
}

func TestLRUCacheDelete(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "key1", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if got, _ := c.Get(ctx, "key1"); got != nil {
		t.Errorf("Get() = %q after delete, want nil", got)
	}

	// Deleting a missing key is not an error.
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete(missing) error = %v", err)
	}
}

func TestLRUCacheEviction(t *testing.T) {
	c := NewLRUCache(3)
	defer c.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c.Set(ctx, fmt.Sprintf("key%d", i), []byte("v"), time.Minute)
	}

	// Touch key0 so key1 becomes the oldest.
	c.Get(ctx, "key0")
	c.Set(ctx, "key3", []byte("v"), time.Minute)

	if got, _ := c.Get(ctx, "key1"); got != nil {
		t.Error("key1 survived eviction, want evicted as least recently used")
	}
	for _, key := range []string{"key0", "key2", "key3"} {
		if got, _ := c.Get(ctx, key); got == nil {
			t.Errorf("%s evicted, want retained", key)
		}
	}

	size, capacity := c.Stats()
	if size != 3 || capacity != 3 {
		t.Errorf("Stats() = %d/%d, want 3/3", size, capacity)
	}
}

func TestLRUCacheIncrementCounter(t *testing.T) {
	c := NewLRUCache(100)
	defer c.Close()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := c.IncrementCounter(ctx, "submissions", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter() error = %v", err)
		}
		if got != want {
			t.Errorf("IncrementCounter() = %d, want %d", got, want)
		}
	}

	t.Run("window reset", func(t *testing.T) {
		got, err := c.IncrementCounter(ctx, "burst", 10*time.Millisecond)
		if err != nil || got != 1 {
			t.Fatalf("IncrementCounter() = %d, %v, want 1", got, err)
		}
		time.Sleep(30 * time.Millisecond)
		got, err = c.IncrementCounter(ctx, "burst", 10*time.Millisecond)
		if err != nil {
			t.Fatalf("IncrementCounter() error = %v", err)
		}
		if got != 1 {
			t.Errorf("IncrementCounter() = %d after window, want fresh 1", got)
		}
	})
}

func TestCacheFactory(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 10})
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		defer c.Close()
		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("New(memory) = %T, want *LRUCache", c)
		}
	})

	t.Run("unsupported type", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("New(memcached) error = nil, want error")
		}
	})
}
