// Package embedding turns product and query text (and, optionally,
// product images) into fixed-dimension vectors for the vector store.
// It wraps a remote embedding provider with an LRU result cache, a
// circuit breaker, and exponential-backoff retry, following the same
// resilience shape the teacher repo applies to its own embedding
// client.
package embedding

import (
	"context"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
)

// Client embeds text and images into vectors.
type Client interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedImage(ctx context.Context, imageURL string) ([]float32, error)
	Dimensions() int
	ModelName() string
	Available(ctx context.Context) bool
	Close() error
}

// Provider is the low-level remote call a Client wraps with caching,
// retry, and circuit breaking. Implementations talk to a specific
// embedding backend (an HTTP model server, a hosted API, etc).
type Provider interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	ModelName() string
	Close() error
}

// ErrDimensionMismatch is returned when a provider returns a vector
// whose length does not match the configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return searcherrors.IntegrityError(
		searcherrors.ErrCodeDimensionMismatch,
		"embedding dimension mismatch",
		nil,
	).Error()
}

// canonicalize normalizes text the same way for both cache lookups and
// provider calls, so a query that differs only in case or surrounding
// whitespace shares a cache entry and a vector with its canonical form.
func canonicalize(text string) string {
	return normalizeWhitespace(toLowerASCIIAware(text))
}
