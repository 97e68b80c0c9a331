package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

type MemoryCache struct {
	store *gocache.Cache
	ttl   time.Duration
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryCache{
		store: gocache.New(ttl, 2*time.Minute),
		ttl:   ttl,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found := m.store.Get(key)
	if !found {
		return nil, false, nil
	}
	data, ok := value.([]byte)
	return data, ok, nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte) error {
	m.store.Set(key, value, gocache.DefaultExpiration)
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

func (m *MemoryCache) Close() error {
	m.store.Flush()
	return nil
}
