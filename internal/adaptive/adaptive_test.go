package adaptive

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/intent"
	"github.com/aman-cerp/shopsearch/internal/types"
	"github.com/aman-cerp/shopsearch/internal/vectorstore"
)

func product(category, brand, color string, priceCents int64) types.Product {
	return types.Product{Category: category, Brand: brand, Color: color, PriceCents: priceCents}
}

func scored(sim float32, p types.Product) vectorstore.ScoredProduct {
	return vectorstore.ScoredProduct{Product: p, Similarity: sim}
}

func testCfg() config.AdaptiveConfig {
	return config.AdaptiveConfig{MinImprovementPct: 10, MaxStrategiesPerQuery: 3}
}

// Given: a strong, diverse result set, When: analyzed, Then: no issues
// are detected.
func TestAnalyzePerformance_HealthySetHasNoIssues(t *testing.T) {
	results := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "red", 5000)),
		scored(0.85, product("jackets", "adidas", "blue", 6000)),
		scored(0.8, product("shirts", "puma", "green", 4000)),
		scored(0.82, product("pants", "gap", "black", 4500)),
		scored(0.78, product("hats", "nike", "white", 2000)),
	}
	metrics, issues := AnalyzePerformance(results, nil)
	assert.Empty(t, issues)
	assert.Greater(t, metrics.AvgScore, 0.6)
}

// Given: an empty result set, When: analyzed, Then: insufficient
// results is reported.
func TestAnalyzePerformance_EmptySetIsInsufficient(t *testing.T) {
	_, issues := AnalyzePerformance(nil, nil)
	assert.Contains(t, issues, IssueInsufficientResults)
}

// Given: low-similarity results, When: analyzed, Then: low relevance is
// reported.
func TestAnalyzePerformance_LowScoresFlagLowRelevance(t *testing.T) {
	results := []vectorstore.ScoredProduct{
		scored(0.3, product("shoes", "nike", "red", 5000)),
		scored(0.2, product("shoes", "nike", "red", 5000)),
		scored(0.25, product("shoes", "nike", "red", 5000)),
		scored(0.1, product("shoes", "nike", "red", 5000)),
		scored(0.3, product("shoes", "nike", "red", 5000)),
	}
	_, issues := AnalyzePerformance(results, nil)
	assert.Contains(t, issues, IssueLowRelevance)
}

// Given: every result sharing one category, When: analyzed, Then: low
// category coverage is reported.
func TestAnalyzePerformance_SingleCategoryFlagsLowCoverage(t *testing.T) {
	results := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "red", 5000)),
		scored(0.9, product("shoes", "adidas", "blue", 5000)),
		scored(0.9, product("shoes", "puma", "green", 5000)),
		scored(0.9, product("shoes", "gap", "black", 5000)),
		scored(0.9, product("shoes", "asics", "white", 5000)),
	}
	_, issues := AnalyzePerformance(results, nil)
	assert.Contains(t, issues, IssueLowCategoryCoverage)
}

// Given: a detected price intent that the results fall outside, When:
// analyzed, Then: price mismatch is reported.
func TestAnalyzePerformance_OutOfRangePricesFlagMismatch(t *testing.T) {
	min := 1000.0
	max := 2000.0
	results := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "red", 500000)),
		scored(0.9, product("jackets", "adidas", "blue", 600000)),
		scored(0.9, product("shirts", "puma", "green", 700000)),
		scored(0.9, product("pants", "gap", "black", 800000)),
		scored(0.9, product("hats", "asics", "white", 900000)),
	}
	_, issues := AnalyzePerformance(results, &intent.PriceRange{MinPrice: &min, MaxPrice: &max})
	assert.Contains(t, issues, IssuePriceMismatch)
}

// Given: an underperforming set and a requerier returning a strictly
// better candidate, When: applied, Then: the candidate replaces the
// original and the strategy is recorded as applied.
func TestApply_AcceptsImprovedCandidate(t *testing.T) {
	poor := []vectorstore.ScoredProduct{
		scored(0.2, product("shoes", "nike", "red", 5000)),
		scored(0.2, product("shoes", "nike", "red", 5000)),
	}
	better := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "red", 5000)),
		scored(0.85, product("jackets", "adidas", "blue", 5000)),
		scored(0.8, product("shirts", "puma", "green", 5000)),
		scored(0.82, product("pants", "gap", "black", 5000)),
		scored(0.78, product("hats", "asics", "white", 5000)),
	}

	engine := New(DefaultStrategies(), testCfg())
	requery := func(ctx context.Context, a Amendment) ([]vectorstore.ScoredProduct, error) {
		return better, nil
	}

	result := engine.Apply(context.Background(), poor, nil, requery)
	require.True(t, result.Improved)
	assert.NotEmpty(t, result.AppliedStrategies)
	assert.Greater(t, result.FinalScore, result.OriginalScore)
}

// Given: a requerier that always fails, When: applied, Then: the
// original results are retained and nothing is marked improved.
func TestApply_RetainsOriginalWhenRequerierFails(t *testing.T) {
	poor := []vectorstore.ScoredProduct{
		scored(0.2, product("shoes", "nike", "red", 5000)),
	}
	engine := New(DefaultStrategies(), testCfg())
	requery := func(ctx context.Context, a Amendment) ([]vectorstore.ScoredProduct, error) {
		return nil, errors.New("downstream unavailable")
	}

	result := engine.Apply(context.Background(), poor, nil, requery)
	assert.False(t, result.Improved)
	assert.Equal(t, poor, result.Results)
}

// Given: a healthy result set, When: applied, Then: no strategies run
// and the original is returned unchanged.
func TestApply_NoIssuesSkipsStrategies(t *testing.T) {
	healthy := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "red", 5000)),
		scored(0.85, product("jackets", "adidas", "blue", 5000)),
		scored(0.8, product("shirts", "puma", "green", 5000)),
		scored(0.82, product("pants", "gap", "black", 5000)),
		scored(0.78, product("hats", "asics", "white", 5000)),
	}
	engine := New(DefaultStrategies(), testCfg())
	called := false
	requery := func(ctx context.Context, a Amendment) ([]vectorstore.ScoredProduct, error) {
		called = true
		return nil, nil
	}

	result := engine.Apply(context.Background(), healthy, nil, requery)
	assert.False(t, result.Improved)
	assert.False(t, called)
}

// Given: a low-diversity set dominated by one category, When: the
// diversity_improve strategy runs (no requery needed), Then: the third
// result of the dominant category moves behind the other category.
func TestForceDiversity_CapsRepeatedCategory(t *testing.T) {
	results := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "a", "red", 1000)),
		scored(0.8, product("shoes", "b", "blue", 1000)),
		scored(0.7, product("shoes", "c", "green", 1000)),
		scored(0.6, product("jackets", "d", "black", 1000)),
	}
	reranked := forceDiversity(results)
	require.Len(t, reranked, 4)
	assert.Equal(t, "jackets", reranked[2].Product.Category)
}

// Given: a strategy selection pass, When: more candidates match than
// the configured cap, Then: only the cap's worth run.
func TestSelectStrategies_CapsAtMaxPerQuery(t *testing.T) {
	engine := New(DefaultStrategies(), config.AdaptiveConfig{MinImprovementPct: 10, MaxStrategiesPerQuery: 1})
	selected := engine.selectStrategies([]Issue{IssuePriceMismatch})
	assert.Len(t, selected, 1)
}

// Given: repeated attempts and one success, When: stats are read,
// Then: usage count and success rate reflect both.
func TestStats_TracksUsageAndSuccessRate(t *testing.T) {
	engine := New(DefaultStrategies(), testCfg())
	engine.recordAttempt("category_broaden", true)
	engine.recordAttempt("category_broaden", false)
	engine.recordSuccess("category_broaden")

	for _, s := range engine.Stats() {
		if s.Name == "category_broaden" {
			assert.Equal(t, int64(2), s.UsageCount)
			assert.Equal(t, 0.5, s.SuccessRate)
			return
		}
	}
	t.Fatal("category_broaden strategy not found in stats")
}

// Given: low category coverage, When: category_broaden is tried,
// Then: it issues a requery with a non-zero threshold relaxation
// rather than repeating the original search unchanged.
func TestTryStrategy_CategoryBroadenRelaxesThreshold(t *testing.T) {
	engine := New(DefaultStrategies(), testCfg())
	var seen Amendment
	requery := func(ctx context.Context, a Amendment) ([]vectorstore.ScoredProduct, error) {
		seen = a
		return nil, nil
	}

	var strategy types.FilterStrategy
	for _, s := range DefaultStrategies() {
		if s.Name == "category_broaden" {
			strategy = s
		}
	}
	require.Equal(t, "category_broaden", strategy.Name)

	_, err := engine.tryStrategy(context.Background(), strategy, nil, requery)
	require.NoError(t, err)
	assert.NotZero(t, seen.ThresholdDelta, "category_broaden must change the requery, not just name a facet to drop")
}

// Given: low relevance results, When: material_fallback and
// color_fallback are selected, Then: Apply can actually accept their
// candidate, since their requery now produces a different result set.
func TestApply_MaterialAndColorFallbackCanImproveResults(t *testing.T) {
	poor := []vectorstore.ScoredProduct{
		scored(0.2, product("shoes", "nike", "red", 5000)),
		scored(0.2, product("shoes", "nike", "red", 5000)),
	}
	better := []vectorstore.ScoredProduct{
		scored(0.9, product("shoes", "nike", "black", 5000)),
		scored(0.85, product("jackets", "adidas", "blue", 5000)),
		scored(0.8, product("shirts", "puma", "green", 5000)),
		scored(0.82, product("pants", "gap", "black", 5000)),
		scored(0.78, product("hats", "asics", "white", 5000)),
	}

	engine := New(DefaultStrategies(), testCfg())
	requery := func(ctx context.Context, a Amendment) ([]vectorstore.ScoredProduct, error) {
		if a.Strategy == "material_fallback" || a.Strategy == "color_fallback" {
			return better, nil
		}
		return nil, errors.New("unexpected strategy")
	}

	result := engine.Apply(context.Background(), poor, nil, requery)
	require.True(t, result.Improved)
	assert.Contains(t, []string{"material_fallback", "color_fallback"}, result.AppliedStrategies[0])
}
