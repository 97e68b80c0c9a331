package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Cache is a byte cache with a fixed time to live per entry.
type Cache interface {
	// Get reports whether key was present.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Settings struct {
	Type         string
	TTL          time.Duration
	RedisAddress string
}

// NewCache returns nil, nil for type "none" or an empty type.
func NewCache(settings Settings) (Cache, error) {
	var (
		c   Cache
		err error
	)
	switch settings.Type {
	case "", "none":
		return nil, nil
	case "memory":
		c = NewMemoryCache(settings.TTL)
	case "redis":
		c, err = NewRedisCache(settings.RedisAddress, settings.TTL)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", settings.Type)
	}
	if err != nil {
		return nil, err
	}

	slog.Info("cache initialized", "type", settings.Type, "ttl", settings.TTL)
	return c, nil
}
