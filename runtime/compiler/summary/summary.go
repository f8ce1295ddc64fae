// Package summary plumbs a cached tool result through a query's context so
// the Joinner's SUMMARY_RESULT sentinel (spec ss4.4) can be resolved back to
// the tool's actual output without re-running the tool or forcing the
// joinner's LLM to repeat a long summary verbatim.
//
// Grounded on tiny_agent.py's pdf_summarizer_agent.cached_summary_result
// pattern (a single cached string set by the summarizer tool and read back
// by the orchestrator when the joinner emits SUMMARY_RESULT) combined with
// runtime/toolregistry/output_delta_publisher.go's context-plumbing idiom
// (an unexported key type + WithX/XFromContext pair) for carrying the cache
// through a single query's context instead of a package-level global.
package summary

import (
	"context"
	"sync"
)

type cacheKey struct{}

// Cache holds the most recent cacheable tool result for a single query run.
// A tool invocation that wants its full output substituted for
// SUMMARY_RESULT instead of being fed back into the joinner's context calls
// Set; the orchestrator's SummaryResolver reads it back via Resolve.
type Cache struct {
	mu    sync.RWMutex
	value string
	ok    bool
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{}
}

// Set records value as the cached result, overwriting any previous value.
func (c *Cache) Set(value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = value
	c.ok = true
}

// Resolve returns the cached value and whether one has been set. Its
// signature matches orchestrator.SummaryResolver so a Cache method value can
// be passed to orchestrator.New directly once bound to a context via
// WithCache and wrapped, e.g. summary.ResolverFor(cache).
func (c *Cache) Resolve(context.Context) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.ok
}

// WithCache returns a context carrying cache, for tools invoked during the
// query to discover and populate via FromContext.
func WithCache(ctx context.Context, cache *Cache) context.Context {
	return context.WithValue(ctx, cacheKey{}, cache)
}

// FromContext returns the Cache carried by ctx, if any.
func FromContext(ctx context.Context) (*Cache, bool) {
	cache, ok := ctx.Value(cacheKey{}).(*Cache)
	return cache, ok
}

// ResolverFor adapts cache.Resolve into an orchestrator.SummaryResolver
// value without requiring callers to import the orchestrator package just
// for its function type.
func ResolverFor(cache *Cache) func(context.Context) (string, bool) {
	if cache == nil {
		return nil
	}
	return cache.Resolve
}
