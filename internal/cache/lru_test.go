package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUWithTTL_BasicOperations(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](10, 0)
	require.NoError(t, err)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(2), stats.Misses)
	assert.InDelta(t, 1.0/3.0, stats.HitRate(), 1e-12)
}

func TestLRUWithTTL_Eviction(t *testing.T) {
	c, err := NewLRUWithTTL[int, string](2, 0)
	require.NoError(t, err)

	c.Set(1, "one")
	c.Set(2, "two")
	_, _ = c.Get(1)
	c.Set(3, "three")

	_, ok := c.Get(2)
	assert.False(t, ok, "least recently used entry is evicted")
	_, ok = c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), c.Stats().Evicted)
	assert.Equal(t, 2, c.Len())
}

func TestLRUWithTTL_Expiry(t *testing.T) {
	c, err := NewLRUWithTTL[string, int](10, 20*time.Millisecond)
	require.NoError(t, err)

	c.Set("a", 1)
	_, ok := c.Get("a")
	assert.True(t, ok)

	time.Sleep(40 * time.Millisecond)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Zero(t, c.Len())
}

func TestLRUWithTTL_InvalidSize(t *testing.T) {
	_, err := NewLRUWithTTL[string, int](0, 0)
	assert.Error(t, err)
}

func TestLRUWithTTL_Concurrent(t *testing.T) {
	c, err := NewLRUWithTTL[int, int](100, time.Minute)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(i%50, g)
				c.Get(i % 50)
			}
		}(g)
	}
	wg.Wait()

	stats := c.Stats()
	assert.Equal(t, uint64(8*200), stats.Hits+stats.Misses)
	c.Purge()
	assert.Zero(t, c.Len())
}
