// Package cache implements the result cache (C3): one TTL per cached
// result shape (semantic search, fuzzy search, popular-query
// aggregates, facets), each reachable by prefix for invalidation, with
// a singleflight guard so a cold cache under concurrent load triggers
// one fetch instead of a stampede.
package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Namespace identifies one of the cached result shapes, each with its
// own TTL and its own invalidation prefix.
type Namespace string

const (
	NamespaceSemanticSearch Namespace = "semantic_search"
	NamespaceFuzzySearch    Namespace = "fuzzy_search"
	NamespacePopular        Namespace = "popular_aggregates"
	NamespaceFacets         Namespace = "facets"
)

// TTLs maps each namespace to its lifetime, sourced from
// config.CacheConfig.
type TTLs struct {
	SemanticSearch time.Duration
	FuzzySearch    time.Duration
	Popular        time.Duration
	Facets         time.Duration
}

func (t TTLs) forNamespace(ns Namespace) time.Duration {
	switch ns {
	case NamespaceSemanticSearch:
		return t.SemanticSearch
	case NamespaceFuzzySearch:
		return t.FuzzySearch
	case NamespacePopular:
		return t.Popular
	case NamespaceFacets:
		return t.Facets
	default:
		return 0
	}
}

type entry struct {
	payload   []byte
	expiresAt time.Time
}

// Stats reports cumulative counters since the cache was created, for
// the `cache stats` operation.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Stampedes  int64 // singleflight calls that joined an in-flight fetch
	EntryCount int
}

// Cache is a namespaced, TTL-expiring key/value store with a
// singleflight fetch guard. Keys are opaque strings the caller derives
// (a query fingerprint hash); the cache never interprets them.
type Cache struct {
	mu    sync.RWMutex
	ttls  TTLs
	store map[Namespace]map[string]entry
	group singleflight.Group

	hits, misses, evictions, stampedes int64
}

// New builds an empty cache with the given per-namespace TTLs.
func New(ttls TTLs) *Cache {
	return &Cache{
		ttls:  ttls,
		store: make(map[Namespace]map[string]entry),
	}
}

func namespaceKey(ns Namespace, key string) string {
	return string(ns) + "\x00" + key
}

// Get returns the cached payload for (ns, key), or (nil, false) if
// absent or expired. An expired entry is evicted on read.
func (c *Cache) Get(ns Namespace, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ns]
	if !ok {
		c.misses++
		return nil, false
	}
	e, ok := bucket[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		delete(bucket, key)
		c.evictions++
		c.misses++
		return nil, false
	}
	c.hits++
	return e.payload, true
}

// Set stores payload under (ns, key), expiring after the namespace's
// configured TTL. A zero TTL stores the value without expiration.
func (c *Cache) Set(ns Namespace, key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ns]
	if !ok {
		bucket = make(map[string]entry)
		c.store[ns] = bucket
	}

	ttl := c.ttls.forNamespace(ns)
	expiresAt := time.Now().Add(ttl)
	if ttl <= 0 {
		expiresAt = time.Now().Add(100 * 365 * 24 * time.Hour)
	}
	bucket[key] = entry{payload: payload, expiresAt: expiresAt}
}

// GetOrFetch returns the cached payload for (ns, key) if present and
// unexpired; otherwise it calls fetch exactly once even if multiple
// goroutines miss on the same key concurrently, caching and returning
// the result to every waiter.
func (c *Cache) GetOrFetch(ns Namespace, key string, fetch func() ([]byte, error)) ([]byte, error) {
	if payload, ok := c.Get(ns, key); ok {
		return payload, nil
	}

	sfKey := namespaceKey(ns, key)
	v, err, shared := c.group.Do(sfKey, func() (any, error) {
		return fetch()
	})
	if shared {
		c.mu.Lock()
		c.stampedes++
		c.mu.Unlock()
	}
	if err != nil {
		return nil, err
	}

	payload := v.([]byte)
	c.Set(ns, key, payload)
	return payload, nil
}

// InvalidatePrefix drops every key in ns whose key starts with prefix.
// An empty prefix clears the whole namespace.
func (c *Cache) InvalidatePrefix(ns Namespace, prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	bucket, ok := c.store[ns]
	if !ok {
		return 0
	}
	removed := 0
	for key := range bucket {
		if prefix == "" || len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			delete(bucket, key)
			removed++
		}
	}
	c.evictions += int64(removed)
	return removed
}

// Stats reports a snapshot of cumulative counters and the current
// entry count across all namespaces.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	count := 0
	for _, bucket := range c.store {
		count += len(bucket)
	}
	return Stats{
		Hits:       c.hits,
		Misses:     c.misses,
		Evictions:  c.evictions,
		Stampedes:  c.stampedes,
		EntryCount: count,
	}
}
