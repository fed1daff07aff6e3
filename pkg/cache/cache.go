package cache

import (
	"context"

	"notemap/pkg/store"
)

// Cacher defines the caching interface.
type Cacher interface {
	GetCache(ctx context.Context, key string) ([]byte, bool)
	SetCache(ctx context.Context, key string, val []byte) error
}

// SQLiteCache implements Cacher on top of the store's cache table.
type SQLiteCache struct {
	s store.CacheStore
}

// NewSQLiteCache creates a new cache.
func NewSQLiteCache(s store.CacheStore) *SQLiteCache {
	return &SQLiteCache{s: s}
}

func (c *SQLiteCache) GetCache(ctx context.Context, key string) ([]byte, bool) {
	return c.s.GetCache(ctx, key)
}

func (c *SQLiteCache) SetCache(ctx context.Context, key string, val []byte) error {
	return c.s.SetCache(ctx, key, val)
}

// Nop never hits and drops writes.
type Nop struct{}

func (Nop) GetCache(ctx context.Context, key string) ([]byte, bool)    { return nil, false }
func (Nop) SetCache(ctx context.Context, key string, val []byte) error { return nil }
