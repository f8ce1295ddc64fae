package summary

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_ResolveBeforeSetReturnsFalse(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	value, ok := cache.Resolve(context.Background())
	assert.False(t, ok)
	assert.Empty(t, value)
}

func TestCache_SetThenResolve(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Set("the document discusses quarterly revenue growth")

	value, ok := cache.Resolve(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "the document discusses quarterly revenue growth", value)
}

func TestCache_LatestSetWins(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Set("first")
	cache.Set("second")

	value, _ := cache.Resolve(context.Background())
	assert.Equal(t, "second", value)
}

func TestWithCacheAndFromContext(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	ctx := WithCache(context.Background(), cache)

	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Same(t, cache, got)
}

func TestFromContext_MissingReturnsFalse(t *testing.T) {
	t.Parallel()

	_, ok := FromContext(context.Background())
	assert.False(t, ok)
}

func TestResolverFor_NilCacheReturnsNilResolver(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ResolverFor(nil))
}

func TestResolverFor_DelegatesToCache(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	cache.Set("cached answer")

	resolver := ResolverFor(cache)
	value, ok := resolver(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "cached answer", value)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	cache := NewCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Set("concurrent")
			cache.Resolve(context.Background())
		}()
	}
	wg.Wait()

	value, ok := cache.Resolve(context.Background())
	assert.True(t, ok)
	assert.Equal(t, "concurrent", value)
}
