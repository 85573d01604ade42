// Package vectorstore persists product rows and their embedding
// vectors, and answers similarity and fuzzy-lexical search with
// predicate pushdown over price, store scope, status, and stock
// status. It is the gateway described as C2: the only component
// permitted to write Product rows.
package vectorstore

import (
	"context"

	"github.com/aman-cerp/shopsearch/internal/types"
)

// Filters is the closed set of predicates the gateway pushes down into
// both the vector index candidate set and the SQLite row scan.
type Filters struct {
	StoreScope    string
	PriceMinCents *int64
	PriceMaxCents *int64
	Status        string
	InStock       *bool
}

// ErrBadFilter is returned when a Filters value is malformed (e.g. a
// price range whose min exceeds its max).
type ErrBadFilter struct {
	Reason string
}

func (e ErrBadFilter) Error() string { return "bad filter: " + e.Reason }

// Validate reports the first malformed predicate found, or nil.
func (f Filters) Validate() error {
	if f.PriceMinCents != nil && f.PriceMaxCents != nil && *f.PriceMinCents > *f.PriceMaxCents {
		return ErrBadFilter{Reason: "price_min_cents exceeds price_max_cents"}
	}
	if f.PriceMinCents != nil && *f.PriceMinCents < 0 {
		return ErrBadFilter{Reason: "price_min_cents is negative"}
	}
	if f.PriceMaxCents != nil && *f.PriceMaxCents < 0 {
		return ErrBadFilter{Reason: "price_max_cents is negative"}
	}
	return nil
}

// ScoredProduct pairs a product with its similarity score.
type ScoredProduct struct {
	Product    types.Product
	Similarity float32
}

// FuzzyProduct pairs a product with a lexical match score (match
// count across title + tags) for fuzzy_search ordering.
type FuzzyProduct struct {
	Product    types.Product
	MatchScore int
}

// Gateway is the full C2 contract: atomic upsert, similarity search
// with predicate pushdown, lexical fallback search, and count.
type Gateway interface {
	Upsert(ctx context.Context, product types.Product, vector []float32) error
	Search(ctx context.Context, queryVector []float32, filters Filters, limit, offset int, threshold float32) ([]ScoredProduct, error)
	FuzzySearch(ctx context.Context, text string, filters Filters, limit, offset int) ([]FuzzyProduct, error)
	Count(ctx context.Context, filters Filters) (int, error)
	Close() error
}
