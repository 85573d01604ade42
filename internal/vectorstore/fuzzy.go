package vectorstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// fuzzyIndex is the lexical fallback used by fuzzy_search: a Bleve
// in-memory index over title + tags, matched case-insensitively,
// ordered by match count (number of distinct matched terms).
type fuzzyIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

type fuzzyDoc struct {
	Content string `json:"content"`
}

func newFuzzyIndex() (*fuzzyIndex, error) {
	mapping := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(mapping)
	if err != nil {
		return nil, fmt.Errorf("create fuzzy index: %w", err)
	}
	return &fuzzyIndex{index: idx}, nil
}

// upsert (re)indexes id's searchable content — title plus its tags,
// space-joined so Bleve's default analyzer tokenizes and lowercases
// both uniformly.
func (f *fuzzyIndex) upsert(id, title string, tags []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	content := strings.Join(append([]string{title}, tags...), " ")
	return f.index.Index(id, fuzzyDoc{Content: content})
}

func (f *fuzzyIndex) delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Delete(id)
}

// search returns product ids ordered by descending match count (the
// number of distinct query terms found), matching spec's "simple
// score (match-count)" ordering contract. Tie-breaking by internal id
// is applied by the caller, which owns the authoritative id ordering.
func (f *fuzzyIndex) search(ctx context.Context, text string, limit int) ([]fuzzyHit, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	query := bleve.NewMatchQuery(text)
	query.SetField("content")

	req := bleve.NewSearchRequest(query)
	req.Size = limit
	req.IncludeLocations = true

	result, err := f.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("fuzzy search failed: %w", err)
	}

	hits := make([]fuzzyHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		matchCount := 0
		if locs, ok := hit.Locations["content"]; ok {
			matchCount = len(locs)
		}
		hits = append(hits, fuzzyHit{ID: hit.ID, MatchCount: matchCount})
	}
	return hits, nil
}

func (f *fuzzyIndex) close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.index.Close()
}

type fuzzyHit struct {
	ID         string
	MatchCount int
}
