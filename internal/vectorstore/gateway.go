package vectorstore

import (
	"context"
	"sort"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// sqliteGateway is the concrete Gateway: an ANN index for similarity
// search, a Bleve index for lexical fallback, and a SQLite row store
// for everything predicate pushdown needs. It is the only component
// permitted to write Product rows — every write goes through Upsert,
// which updates all three in lockstep.
type sqliteGateway struct {
	products *productStore
	ann      *annIndex
	fuzzy    *fuzzyIndex
}

var _ Gateway = (*sqliteGateway)(nil)

// NewGateway opens (or creates) the product store at dbPath and
// builds fresh in-memory ANN and fuzzy indexes over its contents.
// An empty dbPath opens an in-memory SQLite database, suitable for
// tests and ephemeral deployments.
func NewGateway(dbPath string, dims int) (Gateway, error) {
	products, err := newProductStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &sqliteGateway{
		products: products,
		ann:      newANNIndex(dims),
		fuzzy:    newFuzzyIndexOrPanic(),
	}, nil
}

func newFuzzyIndexOrPanic() *fuzzyIndex {
	idx, err := newFuzzyIndex()
	if err != nil {
		// newFuzzyIndex only fails if Bleve's in-memory index cannot be
		// constructed at all, which indicates a broken build rather than
		// a recoverable runtime condition.
		panic(err)
	}
	return idx
}

// Upsert writes the product row, its embedding vector, and its lexical
// content in that order so a crash mid-upsert leaves the row store (the
// source of truth) the most likely to have the final write, and the
// indexes lagging rather than pointing at a nonexistent row.
func (g *sqliteGateway) Upsert(ctx context.Context, product types.Product, vector []float32) error {
	if _, err := g.products.upsert(ctx, product); err != nil {
		return err
	}
	if len(vector) > 0 {
		if err := g.ann.upsert(product.ID, vector); err != nil {
			return err
		}
	}
	if err := g.fuzzy.upsert(product.ID, product.Title, product.Tags); err != nil {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeVectorStoreUnavailable, "fuzzy index upsert failed", err)
	}
	return nil
}

// Search runs similarity search against the ANN index, fetches the
// matching rows with predicate pushdown, and orders results by strictly
// descending similarity with ties broken by ascending internal id — the
// gateway's ordering contract.
func (g *sqliteGateway) Search(ctx context.Context, queryVector []float32, filters Filters, limit, offset int, threshold float32) ([]ScoredProduct, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if limit < 0 || offset < 0 {
		return nil, ErrBadFilter{Reason: "limit and offset must be non-negative"}
	}

	// Over-fetch from the ANN index since predicate pushdown and the
	// threshold cut will eliminate some candidates before pagination.
	fetchK := (limit + offset) * 4
	if fetchK < 64 {
		fetchK = 64
	}

	hits, err := g.ann.search(queryVector, fetchK)
	if err != nil {
		if _, ok := err.(ErrDimensionMismatch); ok {
			return nil, searcherrors.IntegrityError(searcherrors.ErrCodeDimensionMismatch, err.Error(), err)
		}
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeVectorStoreUnavailable, "similarity search failed", err)
	}

	matching, err := g.products.idsMatching(ctx, filters)
	if err != nil {
		return nil, err
	}
	internalIDs := make([]int64, 0, len(hits))
	for _, h := range hits {
		internalIDs = append(internalIDs, matching[h.ID])
	}

	rows, err := g.products.byIDs(ctx, internalIDs, filters)
	if err != nil {
		return nil, err
	}

	candidates := make([]ScoredProduct, 0, len(hits))
	internalIDByID := make(map[string]int64, len(hits))
	for _, h := range hits {
		if h.Similarity < threshold {
			continue
		}
		row, ok := rows[matching[h.ID]]
		if !ok {
			continue // filtered out by predicate pushdown, or stale ANN entry
		}
		candidates = append(candidates, ScoredProduct{Product: row, Similarity: h.Similarity})
		internalIDByID[row.ID] = matching[h.ID]
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return internalIDByID[candidates[i].Product.ID] < internalIDByID[candidates[j].Product.ID]
	})

	return paginate(candidates, limit, offset), nil
}

// FuzzySearch runs the lexical fallback, predicate-filters the hits,
// and orders by descending match count with ties broken by ascending
// internal id.
func (g *sqliteGateway) FuzzySearch(ctx context.Context, text string, filters Filters, limit, offset int) ([]FuzzyProduct, error) {
	if err := filters.Validate(); err != nil {
		return nil, err
	}
	if limit < 0 || offset < 0 {
		return nil, ErrBadFilter{Reason: "limit and offset must be non-negative"}
	}

	fetchSize := (limit + offset) * 4
	if fetchSize < 64 {
		fetchSize = 64
	}

	hits, err := g.fuzzy.search(ctx, text, fetchSize)
	if err != nil {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeVectorStoreUnavailable, "fuzzy search failed", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	matching, err := g.products.idsMatching(ctx, filters)
	if err != nil {
		return nil, err
	}

	candidates := make([]FuzzyProduct, 0, len(hits))
	internalIDByID := make(map[string]int64, len(hits))
	internalIDs := make([]int64, 0, len(hits))
	idByInternalID := make(map[int64]string, len(hits))
	for _, h := range hits {
		internalID, ok := matching[h.ID]
		if !ok {
			continue
		}
		internalIDByID[h.ID] = internalID
		internalIDs = append(internalIDs, internalID)
		idByInternalID[internalID] = h.ID
	}

	rows, err := g.products.byIDs(ctx, internalIDs, Filters{})
	if err != nil {
		return nil, err
	}

	for _, h := range hits {
		internalID, ok := internalIDByID[h.ID]
		if !ok {
			continue
		}
		row, ok := rows[internalID]
		if !ok {
			continue
		}
		candidates = append(candidates, FuzzyProduct{Product: row, MatchScore: h.MatchCount})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].MatchScore != candidates[j].MatchScore {
			return candidates[i].MatchScore > candidates[j].MatchScore
		}
		return internalIDByID[candidates[i].Product.ID] < internalIDByID[candidates[j].Product.ID]
	})

	return paginateFuzzy(candidates, limit, offset), nil
}

func (g *sqliteGateway) Count(ctx context.Context, filters Filters) (int, error) {
	if err := filters.Validate(); err != nil {
		return 0, err
	}
	return g.products.count(ctx, filters)
}

func (g *sqliteGateway) Close() error {
	if err := g.fuzzy.close(); err != nil {
		return err
	}
	return g.products.close()
}

func paginate(items []ScoredProduct, limit, offset int) []ScoredProduct {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func paginateFuzzy(items []FuzzyProduct, limit, offset int) []FuzzyProduct {
	if offset >= len(items) {
		return nil
	}
	end := offset + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
