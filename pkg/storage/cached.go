package storage

import (
	"context"
	"time"

	"github.com/otcheredev/dicom-store-gateway/internal/cache"
)

// CachedBackend wraps a Backend with a front-cache checked before Get falls
// through to the underlying store. Put always writes through to both the
// cache and the backend so a subsequent Get for the same instance is a hit.
type CachedBackend struct {
	Backend Backend
	Cache   cache.Cache
	TTL     time.Duration
}

// NewCachedBackend wraps backend with a front-cache, defaulting TTL to five
// minutes when ttl is zero.
func NewCachedBackend(backend Backend, c cache.Cache, ttl time.Duration) *CachedBackend {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedBackend{Backend: backend, Cache: c, TTL: ttl}
}

func (b *CachedBackend) Put(ctx context.Context, key Key, data []byte) (string, error) {
	uri, err := b.Backend.Put(ctx, key, data)
	if err != nil {
		return "", err
	}
	_ = b.Cache.Set(ctx, b.cacheKey(key), data, b.TTL)
	return uri, nil
}

func (b *CachedBackend) Get(ctx context.Context, key Key) ([]byte, error) {
	if data, err := b.Cache.Get(ctx, b.cacheKey(key)); err == nil {
		return data, nil
	}
	data, err := b.Backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	_ = b.Cache.Set(ctx, b.cacheKey(key), data, b.TTL)
	return data, nil
}

func (b *CachedBackend) List(ctx context.Context, studyInstanceUID string) ([]Key, error) {
	return b.Backend.List(ctx, studyInstanceUID)
}

func (b *CachedBackend) cacheKey(key Key) string {
	return cache.CacheKey(key.StudyInstanceUID, key.SeriesInstanceUID, key.SOPInstanceUID, "dcm")
}
