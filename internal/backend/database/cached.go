package database

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/jo-hoe/bannerforge/internal/backend/cache"
	"github.com/jo-hoe/bannerforge/internal/banner"
)

// CachedDatabase serves ListBannersByUser from a cache. A cache failure never
// fails the call; the underlying store stays authoritative.
//
// Each user has a generation bumped by every insert. A listing only writes
// back when the generation it saw before reading the store is still current,
// so a read that overlaps an insert cannot re-cache the old list.
type CachedDatabase struct {
	DatabaseService
	cache cache.Cache

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCachedDatabase returns inner unchanged when c is nil.
func NewCachedDatabase(inner DatabaseService, c cache.Cache) DatabaseService {
	if c == nil {
		return inner
	}
	return &CachedDatabase{DatabaseService: inner, cache: c, generations: make(map[string]uint64)}
}

func listKey(userID string) string {
	return "banners:" + userID
}

func (c *CachedDatabase) InsertBanner(ctx context.Context, record *banner.BannerRecord) error {
	if err := c.DatabaseService.InsertBanner(ctx, record); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[record.UserID]++
	if err := c.cache.Delete(ctx, listKey(record.UserID)); err != nil {
		slog.Warn("failed to invalidate banner listing", "user_id", record.UserID, "error", err)
	}
	return nil
}

func (c *CachedDatabase) generation(userID string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[userID]
}

// storeListing caches data unless an insert for userID happened since seen.
func (c *CachedDatabase) storeListing(ctx context.Context, userID string, seen uint64, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[userID] != seen {
		slog.Debug("skipping stale banner listing", "user_id", userID)
		return
	}
	if err := c.cache.Set(ctx, listKey(userID), data); err != nil {
		slog.Warn("failed to cache banner listing", "user_id", userID, "error", err)
	}
}

func (c *CachedDatabase) ListBannersByUser(ctx context.Context, userID string) ([]banner.BannerRecord, error) {
	key := listKey(userID)
	data, found, err := c.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("failed to read banner listing from cache", "user_id", userID, "error", err)
	}
	if found {
		var records []banner.BannerRecord
		if err := json.Unmarshal(data, &records); err == nil {
			return records, nil
		}
		slog.Warn("discarding undecodable banner listing", "user_id", userID)
	}

	seen := c.generation(userID)
	records, err := c.DatabaseService.ListBannersByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(records); err == nil {
		c.storeListing(ctx, userID, seen, data)
	}
	return records, nil
}
