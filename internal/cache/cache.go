package cache

import (
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// New creates a cache based on configuration: a local LRU for the
// community tier, Redis for the pro tier.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil

	case "redis":
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}
