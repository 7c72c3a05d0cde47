package backend

import (
	"context"
	"net/http"

	"github.com/aidcare/copilot/internal/cache"
)

func (c *Client) MyBurnout(ctx context.Context) (Burnout, error) {
	key := cache.Key{Namespace: cache.NamespaceBurnout, Operation: "me"}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (Burnout, error) {
		var out Burnout
		err := c.gw.DoJSON(ctx, http.MethodGet, "/doctor/burnout/me", nil, &out)
		return out, err
	})
}

func (c *Client) AdminDashboard(ctx context.Context, wardID string) (AdminDashboard, error) {
	key := cache.Key{Namespace: cache.NamespaceAdmin, Operation: "dashboard", Discriminator: wardID}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (AdminDashboard, error) {
		var out AdminDashboard
		err := c.gw.DoJSON(ctx, http.MethodGet, withQuery("/admin/dashboard/", "ward_uuid", wardID), nil, &out)
		return out, err
	})
}

func (c *Client) AdminAllocation(ctx context.Context, hospitalID string) (Allocation, error) {
	key := cache.Key{Namespace: cache.NamespaceAdmin, Operation: "allocation", Discriminator: hospitalID}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (Allocation, error) {
		var out Allocation
		err := c.gw.DoJSON(ctx, http.MethodGet, withQuery("/admin/allocation", "hospital_uuid", hospitalID), nil, &out)
		return out, err
	})
}

func (c *Client) AdminOrganogram(ctx context.Context) (Organogram, error) {
	key := cache.Key{Namespace: cache.NamespaceAdmin, Operation: "organogram"}
	return cache.CachedFetch(ctx, c.cache, key, func(ctx context.Context) (Organogram, error) {
		var out Organogram
		err := c.gw.DoJSON(ctx, http.MethodGet, "/admin/organogram", nil, &out)
		return out, err
	})
}

// InvalidateAdmin forces the next admin reads to hit the network.
func (c *Client) InvalidateAdmin(ctx context.Context) error {
	return c.cache.ClearNamespace(ctx, cache.NamespaceAdmin)
}

func (c *Client) InvalidateBurnout(ctx context.Context) error {
	return c.cache.ClearNamespace(ctx, cache.NamespaceBurnout)
}
