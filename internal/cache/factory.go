package cache

import (
	"context"
	"fmt"
	"strings"
)

// NewStore creates a redis-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, backend string, redisCfg RedisConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "memory":
		return NewInMemoryStore(), nil
	case "redis":
		return NewRedisStore(ctx, redisCfg)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
