package storage

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/otcheredev/dicom-store-gateway/internal/cache"
)

type countingBackend struct {
	Backend
	gets int
}

func (c *countingBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	c.gets++
	return c.Backend.Get(ctx, key)
}

func TestCachedBackendPopulatesCacheOnMiss(t *testing.T) {
	fs, err := NewFilesystemBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	counting := &countingBackend{Backend: fs}
	memCache := cache.NewMemoryCache()
	cached := NewCachedBackend(counting, memCache, time.Minute)
	ctx := context.Background()
	key := Key{StudyInstanceUID: "1", SeriesInstanceUID: "2", SOPInstanceUID: "3"}

	if _, err := cached.Backend.Put(ctx, key, []byte("payload")); err != nil {
		t.Fatalf("Put on underlying backend: %v", err)
	}

	got, err := cached.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get (cache miss): %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("Get = %q, want %q", got, "payload")
	}
	if counting.gets != 1 {
		t.Fatalf("backend.Get called %d times on first lookup, want 1", counting.gets)
	}

	got2, err := cached.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get (expected cache hit): %v", err)
	}
	if !bytes.Equal(got2, []byte("payload")) {
		t.Errorf("Get (cached) = %q, want %q", got2, "payload")
	}
	if counting.gets != 1 {
		t.Errorf("backend.Get called %d times total, want 1 (second lookup should be served from cache)", counting.gets)
	}
}

func TestCachedBackendPutWritesThrough(t *testing.T) {
	fs, err := NewFilesystemBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFilesystemBackend: %v", err)
	}
	counting := &countingBackend{Backend: fs}
	memCache := cache.NewMemoryCache()
	cached := NewCachedBackend(counting, memCache, time.Minute)
	ctx := context.Background()
	key := Key{StudyInstanceUID: "1", SeriesInstanceUID: "2", SOPInstanceUID: "3"}

	if uri, err := cached.Put(ctx, key, []byte("payload")); err != nil {
		t.Fatalf("Put: %v", err)
	} else if uri == "" {
		t.Error("Put returned an empty uri")
	}

	got, err := cached.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Errorf("Get = %q, want %q", got, "payload")
	}
	if counting.gets != 0 {
		t.Errorf("backend.Get called %d times, want 0 (Put should have populated the cache)", counting.gets)
	}
}
