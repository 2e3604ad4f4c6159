package cache

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Get = %q, want %q", got, "v")
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	if _, err := c.Get(context.Background(), "missing"); err != ErrCacheMiss {
		t.Errorf("Get(missing) error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("Get(expired) error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "k"); err != ErrCacheMiss {
		t.Errorf("Get(deleted) error = %v, want ErrCacheMiss", err)
	}
}

func TestMemoryCacheExists(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()
	c.Set(ctx, "k", []byte("v"), time.Minute)
	ok, err := c.Exists(ctx, "k")
	if err != nil || !ok {
		t.Errorf("Exists(k) = %v, %v, want true, nil", ok, err)
	}
	ok, err = c.Exists(ctx, "missing")
	if err != nil || ok {
		t.Errorf("Exists(missing) = %v, %v, want false, nil", ok, err)
	}
}

func TestMemoryCacheClearWithWildcard(t *testing.T) {
	c := NewMemoryCache()
	defer c.Close()
	ctx := context.Background()
	c.Set(ctx, "study:1:dcm", []byte("a"), time.Minute)
	c.Set(ctx, "study:2:dcm", []byte("b"), time.Minute)
	c.Set(ctx, "other:1:dcm", []byte("c"), time.Minute)

	if err := c.Clear(ctx, "study:*"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, err := c.Get(ctx, "study:1:dcm"); err != ErrCacheMiss {
		t.Error("expected study:1:dcm to be cleared")
	}
	if _, err := c.Get(ctx, "other:1:dcm"); err != nil {
		t.Error("expected other:1:dcm to survive a study:* clear")
	}
}
