package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/shopsearch/internal/adaptive"
	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/cache"
	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/intent"
	"github.com/aman-cerp/shopsearch/internal/orchestrator"
	"github.com/aman-cerp/shopsearch/internal/types"
	"github.com/aman-cerp/shopsearch/internal/vectorstore"
)

type stubEmbedder struct{ vector []float32 }

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return s.vector, nil
}
func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}
func (s *stubEmbedder) EmbedImage(ctx context.Context, imageURL string) ([]float32, error) {
	return s.vector, nil
}
func (s *stubEmbedder) Dimensions() int                    { return 3 }
func (s *stubEmbedder) ModelName() string                  { return "stub" }
func (s *stubEmbedder) Available(ctx context.Context) bool { return true }
func (s *stubEmbedder) Close() error                       { return nil }

type stubGateway struct{ results []vectorstore.ScoredProduct }

func (g *stubGateway) Upsert(ctx context.Context, product types.Product, vector []float32) error {
	return nil
}
func (g *stubGateway) Search(ctx context.Context, queryVector []float32, filters vectorstore.Filters, limit, offset int, threshold float32) ([]vectorstore.ScoredProduct, error) {
	return g.results, nil
}
func (g *stubGateway) FuzzySearch(ctx context.Context, text string, filters vectorstore.Filters, limit, offset int) ([]vectorstore.FuzzyProduct, error) {
	return nil, nil
}
func (g *stubGateway) Count(ctx context.Context, filters vectorstore.Filters) (int, error) {
	return len(g.results), nil
}
func (g *stubGateway) Close() error { return nil }

type stubInbound struct{}

func (stubInbound) Check(fingerprint string, now time.Time) error { return nil }

func testHandler(t *testing.T) http.Handler {
	t.Helper()
	embedder := &stubEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	gateway := &stubGateway{results: []vectorstore.ScoredProduct{
		{Product: types.Product{ID: "p1", Title: "Item", PriceCents: 1000, Currency: "USD", Status: "active"}, Similarity: 0.9},
	}}
	resultCache := cache.New(cache.TTLs{SemanticSearch: time.Minute, FuzzySearch: time.Minute})
	adaptiveEngine := adaptive.New(adaptive.DefaultStrategies(), config.AdaptiveConfig{MaxStrategiesPerQuery: 3, MinImprovementPct: 10})
	classifier := intent.New()
	store, err := analytics.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	recorder := analytics.NewRecorder(store, config.AnalyticsConfig{BufferSize: 16, WriterCount: 1, BatchSize: 1, FlushInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = recorder.Close() })

	cfg := config.SearchConfig{DefaultSimilarityThreshold: 0.5, MaxPageSize: 50}
	orch := orchestrator.New(embedder, gateway, resultCache, stubInbound{}, adaptiveEngine, classifier, recorder, cfg, nil)

	return NewHandler(orch, resultCache, nil)
}

// Given: a well-formed search request, When: POSTed, Then: the handler
// returns a 200 with a JSON response body.
func TestHandleSearch_OK(t *testing.T) {
	handler := testHandler(t)
	body, _ := json.Marshal(map[string]any{"store_scope": "store-a", "query": "running shoes", "limit": 10})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 1)
}

// Given: an empty query, When: POSTed, Then: the handler returns 400
// with a machine-readable error body.
func TestHandleSearch_ValidationError(t *testing.T) {
	handler := testHandler(t)
	body, _ := json.Marshal(map[string]any{"store_scope": "store-a", "query": "   ", "limit": 10})
	req := httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Given: a GET to the search endpoint, When: dispatched, Then: the
// handler rejects it with 405 rather than attempting to decode a body.
func TestHandleSearch_RejectsGet(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/search", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// Given: a freshly built handler, When: cache stats is queried, Then:
// it answers 200 with a JSON body that decodes as cache stats.
func TestHandleCacheStats(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/internal/cache/stats", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var stats cacheStatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
}

// Given: a store_scope with no recorded queries, When: the popular
// endpoint is queried, Then: it returns 200 with an empty list rather
// than an error.
func TestHandlePopularQueries_OK(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/popular?store_scope=store-a&limit=5", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var queries []types.PopularQuery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queries))
	assert.Empty(t, queries)
}

// Given: a POST to the popular endpoint, When: dispatched, Then: the
// handler rejects it with 405.
func TestHandlePopularQueries_RejectsPost(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/popular", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	handler := testHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
