package stores

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is the subset of *cache.Client used by the stores.
type Cache interface {
	Run(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
}
