package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/aidcare/copilot/internal/observability"
)

// Cache memoizes backend responses across dashboards. Entries never expire;
// they are removed only by explicit invalidation.
type Cache struct {
	store   Store
	metrics *observability.Metrics
	logger  *slog.Logger
}

func New(store Store, metrics *observability.Metrics, logger *slog.Logger) *Cache {
	if store == nil {
		store = NewInMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{store: store, metrics: metrics, logger: logger}
}

// Get decodes the entry for key into dst. It reports false on a miss. Store
// failures are logged and treated as misses so callers fall through to the network.
func (c *Cache) Get(ctx context.Context, key Key, dst any) bool {
	raw, err := c.store.Get(ctx, key.String())
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("cache get failed", "key", key.String(), "err", err)
		}
		c.metrics.ObserveCacheLookup(string(key.Namespace), false)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.Warn("cache entry undecodable", "key", key.String(), "err", err)
		c.metrics.ObserveCacheLookup(string(key.Namespace), false)
		return false
	}
	c.metrics.ObserveCacheLookup(string(key.Namespace), true)
	return true
}

// Set overwrites the entry for key.
func (c *Cache) Set(ctx context.Context, key Key, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, key.String(), raw)
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.ClearPrefix(ctx, "")
}

// ClearPrefix removes every entry whose rendered key starts with prefix.
func (c *Cache) ClearPrefix(ctx context.Context, prefix string) error {
	n, err := c.store.DeletePrefix(ctx, prefix)
	label := prefix
	if label == "" {
		label = "*"
	}
	c.metrics.ObserveCacheEviction(label, n)
	if err != nil {
		return err
	}
	c.logger.Debug("cache cleared", "prefix", label, "removed", n)
	return nil
}

// ClearNamespace evicts every entry of each namespace. All namespaces are
// attempted; the first error is returned.
func (c *Cache) ClearNamespace(ctx context.Context, namespaces ...Namespace) error {
	var first error
	for _, ns := range namespaces {
		if err := c.ClearPrefix(ctx, ns.Prefix()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// CachedFetch returns the cached value for key or calls producer and stores
// its result. Producer errors propagate and nothing is stored. Concurrent
// misses on one key each call producer.
func CachedFetch[T any](ctx context.Context, c *Cache, key Key, producer func(context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}
	v, err := producer(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := c.Set(ctx, key, v); err != nil {
		c.logger.Warn("cache set failed", "key", key.String(), "err", err)
	}
	return v, nil
}

func (c *Cache) Close() error {
	return c.store.Close()
}
