package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
)

// CachedClient wraps a Provider with an LRU result cache, a circuit
// breaker, and exponential-backoff retry, mirroring the resilience
// layering the teacher applies around its own embedding calls.
type CachedClient struct {
	provider Provider
	cache    *lru.Cache[string, []float32]
	breaker  *searcherrors.CircuitBreaker
	retry    searcherrors.RetryConfig
}

var _ Client = (*CachedClient)(nil)

// NewCachedClient builds a CachedClient around provider with the given
// LRU capacity. capacity <= 0 disables caching.
func NewCachedClient(provider Provider, capacity int) (*CachedClient, error) {
	var cache *lru.Cache[string, []float32]
	if capacity > 0 {
		c, err := lru.New[string, []float32](capacity)
		if err != nil {
			return nil, fmt.Errorf("create embedding cache: %w", err)
		}
		cache = c
	}
	return &CachedClient{
		provider: provider,
		cache:    cache,
		breaker:  searcherrors.NewCircuitBreaker("embedding-provider"),
		retry:    searcherrors.DefaultRetryConfig(),
	}, nil
}

// modelCacheKey hashes already-canonicalized text together with the
// model name so switching models invalidates stale cache entries
// instead of serving vectors from the wrong embedding space.
func (c *CachedClient) modelCacheKey(canonicalText string) string {
	h := sha256.Sum256([]byte(canonicalText + "\x00" + c.provider.ModelName()))
	return hex.EncodeToString(h[:])
}

// Embed returns the vector for text, serving from cache when possible.
func (c *CachedClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch canonicalizes every text, partitions the canonical forms
// into cached and uncached, calls the provider only for the uncached
// remainder with the same canonical text that keyed the cache lookup,
// and fills the cache with the fresh results. A text that canonicalizes
// to empty (e.g. all whitespace) is rejected before the cache lookup,
// since there is nothing meaningful to embed.
func (c *CachedClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	canonical := make([]string, len(texts))
	for i, t := range texts {
		canon := canonicalize(t)
		if canon == "" {
			return nil, searcherrors.InvalidInput(searcherrors.ErrCodeQueryEmpty, "text is empty after canonicalization", nil)
		}
		canonical[i] = canon
	}

	results := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, canon := range canonical {
		if c.cache != nil {
			if v, ok := c.cache.Get(c.modelCacheKey(canon)); ok {
				results[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, canon)
	}

	if len(missTexts) == 0 {
		return results, nil
	}

	fetched, err := c.fetchWithResilience(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for i, idx := range missIdx {
		results[idx] = fetched[i]
		if c.cache != nil {
			c.cache.Add(c.modelCacheKey(missTexts[i]), fetched[i])
		}
	}
	return results, nil
}

// fetchWithResilience calls the provider through the circuit breaker
// with exponential-backoff retry, translating provider failures into
// the service's Kind taxonomy.
func (c *CachedClient) fetchWithResilience(ctx context.Context, texts []string) ([][]float32, error) {
	if !c.breaker.Allow() {
		return nil, searcherrors.UpstreamUnavailable(
			searcherrors.ErrCodeEmbeddingUnavailable,
			"embedding provider circuit is open",
			searcherrors.ErrCircuitOpen,
		)
	}

	result, err := searcherrors.RetryWithResult(ctx, c.retry, func() ([][]float32, error) {
		return c.provider.EmbedBatch(ctx, texts)
	})
	if err != nil {
		c.breaker.RecordFailure()
		if ctx.Err() != nil {
			return nil, searcherrors.Cancelled(searcherrors.ErrCodeCancelled, "embedding request cancelled", ctx.Err())
		}
		var dimErr ErrDimensionMismatch
		if assertDimensionMismatch(err, &dimErr) {
			return nil, searcherrors.IntegrityError(searcherrors.ErrCodeDimensionMismatch, dimErr.Error(), dimErr)
		}
		return nil, searcherrors.UpstreamUnavailable(searcherrors.ErrCodeEmbeddingUnavailable, "embedding provider failed", err)
	}
	c.breaker.RecordSuccess()
	return result, nil
}

func assertDimensionMismatch(err error, out *ErrDimensionMismatch) bool {
	for err != nil {
		if de, ok := err.(ErrDimensionMismatch); ok {
			*out = de
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// EmbedImage delegates to the provider if it supports image embedding,
// otherwise reports the concern as unavailable.
func (c *CachedClient) EmbedImage(ctx context.Context, imageURL string) ([]float32, error) {
	imgProvider, ok := c.provider.(ImageProvider)
	if !ok {
		return nil, searcherrors.UpstreamUnavailable(
			searcherrors.ErrCodeImageProviderFailed,
			"configured embedding provider does not support image input",
			nil,
		)
	}
	vec, err := imgProvider.EmbedImage(ctx, imageURL)
	if err != nil {
		return nil, searcherrors.UpstreamUnavailable(searcherrors.ErrCodeImageProviderFailed, "image embedding failed", err)
	}
	return normalizeVector(vec), nil
}

// Dimensions returns the provider's embedding dimension.
func (c *CachedClient) Dimensions() int { return c.provider.Dimensions() }

// ModelName returns the provider's model identifier.
func (c *CachedClient) ModelName() string { return c.provider.ModelName() }

// Available reports whether the provider is currently reachable,
// consulting the circuit breaker before making a live call.
func (c *CachedClient) Available(ctx context.Context) bool {
	if !c.breaker.Allow() {
		return false
	}
	_, err := c.provider.EmbedBatch(ctx, []string{"availability probe"})
	return err == nil
}

// Close releases the underlying provider.
func (c *CachedClient) Close() error { return c.provider.Close() }

// ImageProvider is implemented by providers that can embed images as
// well as text.
type ImageProvider interface {
	EmbedImage(ctx context.Context, imageURL string) ([]float32, error)
}
