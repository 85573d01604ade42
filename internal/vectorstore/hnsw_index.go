package vectorstore

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// annIndex wraps coder/hnsw with a string<->uint64 id mapping, the
// same shape the teacher's HNSWStore uses. Deletions are lazy — the
// old key is orphaned rather than removed from the graph, avoiding a
// known coder/hnsw issue where deleting the graph's last node leaves
// it unusable.
type annIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	dims    int
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

// ErrDimensionMismatch is returned when a vector's length does not
// match the index's configured dimension.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

func newANNIndex(dims int) *annIndex {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25
	return &annIndex{
		graph:  graph,
		dims:   dims,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}
}

// upsert adds or replaces the vector for id.
func (a *annIndex) upsert(id string, vec []float32) error {
	if len(vec) != a.dims {
		return ErrDimensionMismatch{Expected: a.dims, Got: len(vec)}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existingKey, ok := a.idMap[id]; ok {
		delete(a.keyMap, existingKey)
		delete(a.idMap, id)
	}

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	key := a.nextKey
	a.nextKey++
	a.graph.Add(hnsw.MakeNode(key, normalized))
	a.idMap[id] = key
	a.keyMap[key] = id
	return nil
}

// search returns up to k nearest neighbors with cosine similarity
// scores in [0,1] (1 - cosine_distance/2).
func (a *annIndex) search(query []float32, k int) ([]ScoredID, error) {
	if len(query) != a.dims {
		return nil, ErrDimensionMismatch{Expected: a.dims, Got: len(query)}
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := a.graph.Search(normalized, k)
	out := make([]ScoredID, 0, len(nodes))
	for _, node := range nodes {
		id, ok := a.keyMap[node.Key]
		if !ok {
			continue // orphaned key from a lazy delete/replace
		}
		distance := a.graph.Distance(normalized, node.Value)
		out = append(out, ScoredID{ID: id, InternalKey: a.idMap[id], Similarity: 1 - distance/2})
	}
	return out, nil
}

// delete orphans id's key, lazily.
func (a *annIndex) delete(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if key, ok := a.idMap[id]; ok {
		delete(a.keyMap, key)
		delete(a.idMap, id)
	}
}

func (a *annIndex) count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.idMap)
}

// ScoredID is an ANN search hit before the gateway enriches it with
// the full product row.
type ScoredID struct {
	ID          string
	InternalKey uint64
	Similarity  float32
}

func normalizeInPlace(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
