package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTTLs() TTLs {
	return TTLs{
		SemanticSearch: 50 * time.Millisecond,
		FuzzySearch:    50 * time.Millisecond,
		Popular:        time.Hour,
		Facets:         time.Hour,
	}
}

// Given: an empty cache, When: a key is set then fetched, Then: Get
// returns the stored payload.
func TestCache_SetThenGet_ReturnsPayload(t *testing.T) {
	c := New(testTTLs())
	c.Set(NamespaceFacets, "k1", []byte("v1"))

	payload, ok := c.Get(NamespaceFacets, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), payload)
}

// Given: an entry with a short TTL, When: the TTL elapses, Then: Get
// reports a miss and the entry is evicted.
func TestCache_Get_ExpiresAfterTTL(t *testing.T) {
	c := New(testTTLs())
	c.Set(NamespaceSemanticSearch, "k1", []byte("v1"))

	time.Sleep(75 * time.Millisecond)

	_, ok := c.Get(NamespaceSemanticSearch, "k1")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Evictions)
}

// Given: a namespace with several prefixed keys, When: InvalidatePrefix
// is called, Then: only matching keys are removed.
func TestCache_InvalidatePrefix_RemovesOnlyMatching(t *testing.T) {
	c := New(testTTLs())
	c.Set(NamespaceFacets, "store1:q1", []byte("a"))
	c.Set(NamespaceFacets, "store1:q2", []byte("b"))
	c.Set(NamespaceFacets, "store2:q1", []byte("c"))

	removed := c.InvalidatePrefix(NamespaceFacets, "store1:")
	assert.Equal(t, 2, removed)

	_, ok := c.Get(NamespaceFacets, "store2:q1")
	assert.True(t, ok)
}

// Given: a cache miss, When: GetOrFetch is called concurrently from
// many goroutines for the same key, Then: fetch runs exactly once.
func TestCache_GetOrFetch_CollapsesConcurrentMisses(t *testing.T) {
	c := New(testTTLs())

	var calls int64
	fetch := func() ([]byte, error) {
		atomic.AddInt64(&calls, 1)
		time.Sleep(20 * time.Millisecond)
		return []byte("computed"), nil
	}

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload, err := c.GetOrFetch(NamespaceSemanticSearch, "shared-key", fetch)
			require.NoError(t, err)
			results[idx] = payload
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
	for _, r := range results {
		assert.Equal(t, []byte("computed"), r)
	}
}

// Given: a fetch that fails, When: GetOrFetch is called, Then: the
// error propagates and nothing is cached.
func TestCache_GetOrFetch_PropagatesFetchError(t *testing.T) {
	c := New(testTTLs())
	wantErr := errors.New("upstream down")

	_, err := c.GetOrFetch(NamespaceFuzzySearch, "k1", func() ([]byte, error) {
		return nil, wantErr
	})
	require.ErrorIs(t, err, wantErr)

	_, ok := c.Get(NamespaceFuzzySearch, "k1")
	assert.False(t, ok)
}

// Given: hits and misses across namespaces, When: Stats is read, Then:
// the counters reflect every Get call.
func TestCache_Stats_TracksHitsAndMisses(t *testing.T) {
	c := New(testTTLs())
	c.Set(NamespacePopular, "k1", []byte("v1"))

	_, _ = c.Get(NamespacePopular, "k1")   // hit
	_, _ = c.Get(NamespacePopular, "miss") // miss

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.EntryCount)
}
