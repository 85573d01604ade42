// Package adaptive implements the post-query filter engine (C7): it
// scores a result set, identifies weaknesses, and selects declarative
// FilterStrategy records to try in order, keeping only the first
// candidate that beats the original by a configured margin.
//
// Strategies carry no behavior of their own — each one is data
// (threshold/price deltas, facets to drop) matched against a detected
// issue. Adding a strategy means appending a FilterStrategy value, not
// writing code.
package adaptive

import (
	"context"
	"sort"
	"sync"

	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/intent"
	"github.com/aman-cerp/shopsearch/internal/types"
	"github.com/aman-cerp/shopsearch/internal/vectorstore"
)

// Issue names a detected weakness in a scored result set.
type Issue string

const (
	IssueLowRelevance        Issue = "low_relevance"
	IssueInsufficientResults Issue = "insufficient_results"
	IssueLowCategoryCoverage Issue = "low_category_coverage"
	IssueLowDiversity        Issue = "low_diversity"
	IssuePriceMismatch       Issue = "price_mismatch"
)

// topK bounds how many leading results the metrics below are computed
// over, mirroring the "top-k" framing the scoring step is specified
// against.
const topK = 10

// PerformanceMetrics scores one result set along the dimensions C7
// uses to decide whether a search underperformed.
type PerformanceMetrics struct {
	AvgScore         float64
	ResultCount      int
	CategoryCoverage float64
	DiversityScore   float64
	PriceCoherence   float64
}

// Composite collapses the metrics into the single score strategy
// acceptance compares before/after against.
func (m PerformanceMetrics) Composite() float64 {
	normalizedCount := float64(m.ResultCount) / float64(topK)
	if normalizedCount > 1 {
		normalizedCount = 1
	}
	return (m.AvgScore + normalizedCount + m.CategoryCoverage + m.DiversityScore + m.PriceCoherence) / 5
}

// AnalyzePerformance scores a result set and reports the issues it
// exhibits. priceRange is nil when the query carried no detected price
// intent, in which case price coherence is not evaluated.
func AnalyzePerformance(results []vectorstore.ScoredProduct, priceRange *intent.PriceRange) (PerformanceMetrics, []Issue) {
	top := results
	if len(top) > topK {
		top = top[:topK]
	}

	metrics := PerformanceMetrics{ResultCount: len(results), PriceCoherence: 1.0}
	if len(top) == 0 {
		var issues []Issue
		issues = append(issues, IssueInsufficientResults)
		return metrics, issues
	}

	var scoreSum float64
	categories := make(map[string]struct{})
	tuples := make(map[string]struct{})
	var withinPrice int
	for _, r := range top {
		scoreSum += float64(r.Similarity)
		categories[r.Product.Category] = struct{}{}
		tuples[r.Product.Brand+"|"+r.Product.Color+"|"+r.Product.Category] = struct{}{}
		if priceInRange(r.Product.PriceCents, priceRange) {
			withinPrice++
		}
	}

	metrics.AvgScore = scoreSum / float64(len(top))
	metrics.CategoryCoverage = float64(len(categories)) / float64(len(top))
	metrics.DiversityScore = float64(len(tuples)) / float64(len(top))
	if priceRange != nil && (priceRange.MinPrice != nil || priceRange.MaxPrice != nil) {
		metrics.PriceCoherence = float64(withinPrice) / float64(len(top))
	}

	var issues []Issue
	if metrics.AvgScore < 0.6 {
		issues = append(issues, IssueLowRelevance)
	}
	if metrics.ResultCount < 5 {
		issues = append(issues, IssueInsufficientResults)
	}
	if metrics.CategoryCoverage < 0.3 {
		issues = append(issues, IssueLowCategoryCoverage)
	}
	if metrics.DiversityScore < 0.4 {
		issues = append(issues, IssueLowDiversity)
	}
	if metrics.PriceCoherence < 0.5 {
		issues = append(issues, IssuePriceMismatch)
	}
	return metrics, issues
}

func priceInRange(cents int64, r *intent.PriceRange) bool {
	if r == nil {
		return true
	}
	price := float64(cents) / 100
	if r.MinPrice != nil && price < *r.MinPrice {
		return false
	}
	if r.MaxPrice != nil && price > *r.MaxPrice {
		return false
	}
	return true
}

// Amendment describes how a strategy wants the query re-run: relax
// the similarity threshold, widen the price band by a fraction of its
// width, or drop named facets from the request filters entirely. The
// orchestrator, which owns the original request's Filters, applies the
// amendment and re-queries C2 (or passes the same results through for
// in-place re-ranking when Rerank is set).
type Amendment struct {
	Strategy            string
	ThresholdDelta      float64
	PriceToleranceDelta float64
	DropFacets          []string
	Rerank              bool
}

// Requerier re-issues a search with an amendment applied. It is
// supplied by the caller (the orchestrator), which is the only
// component that knows how to translate an Amendment into an actual
// Filters value.
type Requerier func(ctx context.Context, amendment Amendment) ([]vectorstore.ScoredProduct, error)

// DefaultStrategies returns the built-in declarative strategy set,
// ordered as operators would tune priority: cheap, targeted widenings
// first, the last-resort "drop everything" strategy last. DropFacets
// on category_broaden/material_fallback/color_fallback records intent
// for a future facet-predicate requery; since vectorstore.Filters has
// no such predicate today, each also carries a ThresholdDelta so the
// requery actually admits a different, broader candidate set rather
// than repeating the original search verbatim.
func DefaultStrategies() []types.FilterStrategy {
	return []types.FilterStrategy{
		{
			Name:                "price_broaden_low",
			Priority:            1,
			AddressesIssue:      string(IssuePriceMismatch),
			PriceToleranceDelta: -0.2,
		},
		{
			Name:                "price_broaden_high",
			Priority:            1,
			AddressesIssue:      string(IssuePriceMismatch),
			PriceToleranceDelta: 0.2,
		},
		{
			Name:           "category_broaden",
			Priority:       2,
			AddressesIssue: string(IssueLowCategoryCoverage),
			ThresholdDelta: -0.1,
			DropFacets:     []string{"category"},
		},
		{
			Name:           "diversity_improve",
			Priority:       2,
			AddressesIssue: string(IssueLowDiversity),
		},
		{
			Name:           "material_fallback",
			Priority:       3,
			AddressesIssue: string(IssueLowRelevance),
			ThresholdDelta: -0.15,
			DropFacets:     []string{"material"},
		},
		{
			Name:           "color_fallback",
			Priority:       3,
			AddressesIssue: string(IssueLowRelevance),
			ThresholdDelta: -0.15,
			DropFacets:     []string{"color"},
		},
		{
			Name:           "emergency_fallback",
			Priority:       99,
			AddressesIssue: string(IssueInsufficientResults),
			ThresholdDelta: -0.3,
			DropFacets:     []string{"category", "brand", "color", "material", "size", "season", "style"},
		},
	}
}

// Result is the outcome of Apply: either the original results
// (Improved is false) or the best candidate found, along with the
// names of the strategies that were tried and accepted.
type Result struct {
	Results           []vectorstore.ScoredProduct
	AppliedStrategies []string
	Improved          bool
	OriginalScore     float64
	FinalScore        float64
}

// Engine selects and applies FilterStrategy records against an
// underperforming result set, tracking each strategy's success rate
// across calls.
type Engine struct {
	mu                sync.Mutex
	strategies        []types.FilterStrategy
	maxPerQuery       int
	minImprovementPct float64
}

// New builds an Engine over the given strategies, configured by the
// adaptive section of the service config.
func New(strategies []types.FilterStrategy, cfg config.AdaptiveConfig) *Engine {
	maxPerQuery := cfg.MaxStrategiesPerQuery
	if maxPerQuery <= 0 {
		maxPerQuery = 3
	}
	cloned := make([]types.FilterStrategy, len(strategies))
	copy(cloned, strategies)
	return &Engine{
		strategies:        cloned,
		maxPerQuery:       maxPerQuery,
		minImprovementPct: cfg.MinImprovementPct,
	}
}

// selectStrategies picks declared strategies whose AddressesIssue is
// among the detected issues, ordered by priority (ascending) then by
// observed success rate (descending), capped at maxPerQuery.
func (e *Engine) selectStrategies(issues []Issue) []types.FilterStrategy {
	issueSet := make(map[string]struct{}, len(issues))
	for _, iss := range issues {
		issueSet[string(iss)] = struct{}{}
	}

	e.mu.Lock()
	candidates := make([]types.FilterStrategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		if _, ok := issueSet[s.AddressesIssue]; ok {
			candidates = append(candidates, s)
		}
	}
	e.mu.Unlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Priority != candidates[j].Priority {
			return candidates[i].Priority < candidates[j].Priority
		}
		return candidates[i].SuccessRate() > candidates[j].SuccessRate()
	})

	if len(candidates) > e.maxPerQuery {
		candidates = candidates[:e.maxPerQuery]
	}
	return candidates
}

// Apply scores the original results, selects strategies to address
// whatever issues it finds, and tries each in priority order against
// requery, keeping the first candidate whose composite score beats the
// original by minImprovementPct. Strategy stats are updated as a side
// effect regardless of the outcome.
func (e *Engine) Apply(ctx context.Context, original []vectorstore.ScoredProduct, priceRange *intent.PriceRange, requery Requerier) Result {
	originalMetrics, issues := AnalyzePerformance(original, priceRange)
	result := Result{Results: original, OriginalScore: originalMetrics.Composite(), FinalScore: originalMetrics.Composite()}

	if len(issues) == 0 {
		return result
	}

	selected := e.selectStrategies(issues)
	threshold := originalMetrics.Composite() * (1 + e.minImprovementPct/100)

	for _, strategy := range selected {
		if ctx.Err() != nil {
			return result
		}

		candidate, err := e.tryStrategy(ctx, strategy, original, requery)
		e.recordAttempt(strategy.Name, err == nil)
		if err != nil {
			continue
		}

		candidateMetrics, _ := AnalyzePerformance(candidate, priceRange)
		if candidateMetrics.Composite() < threshold {
			continue
		}

		result.Results = candidate
		result.Improved = true
		result.FinalScore = candidateMetrics.Composite()
		result.AppliedStrategies = append(result.AppliedStrategies, strategy.Name)
		e.recordSuccess(strategy.Name)
		return result
	}

	return result
}

func (e *Engine) tryStrategy(ctx context.Context, strategy types.FilterStrategy, original []vectorstore.ScoredProduct, requery Requerier) ([]vectorstore.ScoredProduct, error) {
	if strategy.Name == "diversity_improve" {
		return forceDiversity(original), nil
	}
	if requery == nil {
		return nil, errNoRequerier{}
	}
	amendment := Amendment{
		Strategy:            strategy.Name,
		ThresholdDelta:      strategy.ThresholdDelta,
		PriceToleranceDelta: strategy.PriceToleranceDelta,
		DropFacets:          strategy.DropFacets,
	}
	return requery(ctx, amendment)
}

type errNoRequerier struct{}

func (errNoRequerier) Error() string {
	return "adaptive: strategy requires a requerier but none was supplied"
}

// forceDiversity re-ranks results, keeping the first two results of
// each category in their original order and moving every further
// result of that category to the end (also in original order), so the
// top of the list isn't dominated by one category.
func forceDiversity(results []vectorstore.ScoredProduct) []vectorstore.ScoredProduct {
	const maxPerCategory = 2
	counts := make(map[string]int, len(results))
	kept := make([]vectorstore.ScoredProduct, 0, len(results))
	deferred := make([]vectorstore.ScoredProduct, 0)
	for _, r := range results {
		if counts[r.Product.Category] < maxPerCategory {
			kept = append(kept, r)
			counts[r.Product.Category]++
		} else {
			deferred = append(deferred, r)
		}
	}
	return append(kept, deferred...)
}

func (e *Engine) recordAttempt(name string, succeeded bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.strategies {
		if e.strategies[i].Name == name {
			e.strategies[i].AttemptCount++
			return
		}
	}
}

func (e *Engine) recordSuccess(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range e.strategies {
		if e.strategies[i].Name == name {
			e.strategies[i].SuccessCount++
			return
		}
	}
}

// StrategyStat is one strategy's usage statistics, for operator
// visibility into which strategies are earning their priority.
type StrategyStat struct {
	Name        string
	Priority    int
	UsageCount  int64
	SuccessRate float64
}

// Stats reports usage count and success rate per declared strategy.
// This is a supplemented accessor: the engine is otherwise
// write-only from the serving path's perspective.
func (e *Engine) Stats() []StrategyStat {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := make([]StrategyStat, len(e.strategies))
	for i, s := range e.strategies {
		stats[i] = StrategyStat{
			Name:        s.Name,
			Priority:    s.Priority,
			UsageCount:  s.AttemptCount,
			SuccessRate: s.SuccessRate(),
		}
	}
	return stats
}
