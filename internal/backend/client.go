// Package backend exposes the triage backend's endpoints as typed calls.
// Reads that dashboards poll go through the response cache; mutations that
// change those reads evict the affected namespaces.
package backend

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/gateway"
)

type Client struct {
	gw     *gateway.Client
	cache  *cache.Cache
	logger *slog.Logger
}

func New(gw *gateway.Client, c *cache.Cache, logger *slog.Logger) *Client {
	if c == nil {
		c = cache.New(nil, nil, logger)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{gw: gw, cache: c, logger: logger}
}

func (c *Client) Cache() *cache.Cache { return c.cache }

// invalidate evicts namespaces after a successful mutation. Failures are
// logged; the mutation itself already succeeded.
func (c *Client) invalidate(ctx context.Context, namespaces ...cache.Namespace) {
	if err := c.cache.ClearNamespace(ctx, namespaces...); err != nil {
		c.logger.Warn("cache invalidation failed", "namespaces", namespaces, "err", err)
	}
}

func withQuery(path, key, value string) string {
	if value == "" {
		return path
	}
	return path + "?" + key + "=" + url.QueryEscape(value)
}

func segment(id string) string {
	return url.PathEscape(id)
}
