package pricing

import (
	"strings"
	"sync"
	"time"

	"listino/internal/core/id"
)

// ResolutionCache is a short-TTL read cache for automatic-mode resolution
// results. Every write to lists, entries or assignments must invalidate the
// touched products (or everything, when the affected set is unknown).
type ResolutionCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cachedResolution
}

type cachedResolution struct {
	result    *ResolutionResult
	expiresAt time.Time
}

// NewResolutionCache creates a cache with the given TTL.
func NewResolutionCache(ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{
		ttl:     ttl,
		entries: make(map[string]cachedResolution),
	}
}

// Get returns a cached result for the request, if still fresh.
func (c *ResolutionCache) Get(req ResolveRequest, at time.Time) (*ResolutionResult, bool) {
	key := cacheKey(req, at)

	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.result, true
}

// Put stores a result. Only automatic-mode resolutions should be cached;
// manual and forced modes bypass the cache entirely.
func (c *ResolutionCache) Put(req ResolveRequest, at time.Time, res *ResolutionResult) {
	key := cacheKey(req, at)

	c.mu.Lock()
	c.entries[key] = cachedResolution{result: res, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// InvalidateProduct drops every cached resolution for one product.
func (c *ResolutionCache) InvalidateProduct(productID id.ID) {
	prefix := productID.String() + "|"

	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// InvalidateAll empties the cache. Used when a list-level write may affect
// an unknown set of products.
func (c *ResolutionCache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]cachedResolution)
	c.mu.Unlock()
}

// Len returns the number of live cache slots (including not-yet-evicted
// expired ones); intended for stats endpoints and tests.
func (c *ResolutionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// cacheKey buckets the reference date to the minute so repeated lookups in a
// short window share a slot without serving stale validity decisions.
func cacheKey(req ResolveRequest, at time.Time) string {
	var b strings.Builder
	b.WriteString(req.ProductID.String())
	b.WriteByte('|')
	if req.BusinessPartyID != nil {
		b.WriteString(req.BusinessPartyID.String())
	}
	b.WriteByte('|')
	b.WriteString(req.Quantity.String())
	b.WriteByte('|')
	if req.UnitOfMeasureID != nil {
		b.WriteString(*req.UnitOfMeasureID)
	}
	b.WriteByte('|')
	b.WriteString(req.Currency)
	b.WriteByte('|')
	if req.Scope.EventID != nil {
		b.WriteString(req.Scope.EventID.String())
	}
	b.WriteByte('|')
	b.WriteString(at.Truncate(time.Minute).Format(time.RFC3339))
	return b.String()
}
