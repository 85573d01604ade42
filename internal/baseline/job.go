package baseline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// failingScore is the default average-similarity threshold below which
// a category is mined for a PatternSuggestion.
const failingScore = 0.6

// AnalyticsSource is the subset of analytics.Store the job reads from.
// Declared as an interface so job tests can supply a fake without a
// real SQLite handle.
type AnalyticsSource interface {
	GroupStats(ctx context.Context, storeScope, groupKind string, since time.Time, minEvents int) ([]analytics.GroupStat, error)
	GroupLatencies(ctx context.Context, storeScope, groupKind, groupValue string, since time.Time) ([]int64, error)
	SuccessfulQueries(ctx context.Context, storeScope string, since time.Time, similarityThreshold float64, minCount int) ([]string, error)
	FailingCategories(ctx context.Context, storeScope string, since time.Time, threshold float64) ([]analytics.GroupStat, error)
}

// Job computes baselines, learned patterns, and suggestions for a store
// from recent analytics history and persists the results.
type Job struct {
	source AnalyticsSource
	store  *Store
	cfg    config.BaselineConfig
}

// NewJob builds a baseline job reading from source and writing to store.
func NewJob(source AnalyticsSource, store *Store, cfg config.BaselineConfig) *Job {
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = 7
	}
	if cfg.MinEventsPerGroup <= 0 {
		cfg.MinEventsPerGroup = 5
	}
	if cfg.SuccessSimilarityThreshold <= 0 {
		cfg.SuccessSimilarityThreshold = 0.8
	}
	if cfg.SuccessMinCount <= 0 {
		cfg.SuccessMinCount = 5
	}
	if cfg.FailingCategoryThreshold <= 0 {
		cfg.FailingCategoryThreshold = failingScore
	}
	return &Job{source: source, store: store, cfg: cfg}
}

// Run computes and persists baselines, learned patterns, and suggestions
// for a single store scope as of now.
func (j *Job) Run(ctx context.Context, storeScope string, now time.Time) error {
	since := now.AddDate(0, 0, -j.cfg.LookbackDays)

	for _, kind := range []string{"category", "intent"} {
		if err := j.computeGroupBaselines(ctx, storeScope, kind, since, now); err != nil {
			return fmt.Errorf("compute %s baselines for %s: %w", kind, storeScope, err)
		}
	}

	if err := j.minePatterns(ctx, storeScope, since, now); err != nil {
		return fmt.Errorf("mine patterns for %s: %w", storeScope, err)
	}

	if err := j.mineSuggestions(ctx, storeScope, since, now); err != nil {
		return fmt.Errorf("mine suggestions for %s: %w", storeScope, err)
	}

	return nil
}

func (j *Job) computeGroupBaselines(ctx context.Context, storeScope, groupKind string, since, now time.Time) error {
	groups, err := j.source.GroupStats(ctx, storeScope, groupKind, since, j.cfg.MinEventsPerGroup)
	if err != nil {
		return err
	}

	for _, g := range groups {
		latencies, err := j.source.GroupLatencies(ctx, storeScope, groupKind, g.GroupValue, since)
		if err != nil {
			return err
		}

		prev, hadPrev, err := j.store.LatestBaseline(ctx, storeScope, groupKind, g.GroupValue)
		if err != nil {
			return err
		}

		b := types.Baseline{
			StoreScope:     storeScope,
			GroupKind:      groupKind,
			GroupValue:     g.GroupValue,
			AvgSimilarity:  g.AvgSimilarity,
			AvgResultCount: g.AvgResultCount,
			SuccessRate:    g.SuccessRate,
			SampleSize:     g.SampleSize,
			P50LatencyMs:   float64(quantile(latencies, 0.5)),
			P95LatencyMs:   float64(quantile(latencies, 0.95)),
			ComputedAt:     now,
		}
		b.Trend = trendLabel(prev, hadPrev, b)
		b.PerformanceGrade = performanceGrade(b.SuccessRate)
		b.ImprovementOpportunities = improvementOpportunities(b)

		if err := j.store.UpsertBaseline(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// trendLabel compares the new baseline against the previous latest one
// for the same group, classifying by avg-similarity movement.
func trendLabel(prev types.Baseline, hadPrev bool, next types.Baseline) string {
	if !hadPrev {
		return "new"
	}
	delta := next.AvgSimilarity - prev.AvgSimilarity
	switch {
	case delta > 0.02:
		return "improving"
	case delta < -0.02:
		return "declining"
	default:
		return "stable"
	}
}

// performanceGrade maps a group's success rate onto a letter grade,
// grounded on the same A-F scale the original baseline generator used.
func performanceGrade(successRate float64) string {
	switch {
	case successRate >= 0.9:
		return "A"
	case successRate >= 0.8:
		return "B"
	case successRate >= 0.7:
		return "C"
	case successRate >= 0.6:
		return "D"
	default:
		return "F"
	}
}

// improvementOpportunities names the dimensions holding a baseline back
// from a better grade, for operator review alongside PatternSuggestion.
func improvementOpportunities(b types.Baseline) []string {
	var out []string
	if b.SuccessRate < 0.7 {
		out = append(out, "relevance below target: widen adaptive filter strategies for this group")
	}
	if b.P95LatencyMs > 500 {
		out = append(out, "tail latency above target: investigate slow queries in this group")
	}
	if b.AvgResultCount < 3 {
		out = append(out, "thin result sets: consider broadening catalog coverage or synonym expansion")
	}
	if b.SampleSize < int64(10) {
		out = append(out, "low sample size: grade has limited statistical confidence")
	}
	return out
}

// quantile returns the value at percentile p (0-1) from a sorted slice,
// or 0 for an empty slice.
func quantile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

func (j *Job) minePatterns(ctx context.Context, storeScope string, since, now time.Time) error {
	queries, err := j.source.SuccessfulQueries(ctx, storeScope, since, j.cfg.SuccessSimilarityThreshold, j.cfg.SuccessMinCount)
	if err != nil {
		return err
	}

	counts := map[string]int64{}
	for _, q := range queries {
		for _, term := range extractTerms(q) {
			counts[term]++
		}
	}

	for term, count := range counts {
		p := types.LearnedPattern{
			StoreScope:    storeScope,
			PatternKey:    term,
			PatternType:   "common_terms",
			StrategyName:  "",
			SuccessCount:  count,
			FailureCount:  0,
			SuccessRate:   1.0,
			Confidence:    confidenceFromCount(count),
			LastAppliedAt: now,
		}
		if err := j.store.UpsertLearnedPattern(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// confidenceFromCount saturates towards 1.0 as a mined term recurs
// across more successful queries, never reaching full certainty from
// a single run.
func confidenceFromCount(count int64) float64 {
	c := float64(count) / (float64(count) + 5)
	if c > 0.95 {
		c = 0.95
	}
	return c
}

// extractTerms extracts searchable terms from a query string: lowercased,
// filtered to a minimum length of 3 characters.
func extractTerms(query string) []string {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}
	var terms []string
	for _, w := range strings.Fields(query) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

func (j *Job) mineSuggestions(ctx context.Context, storeScope string, since, now time.Time) error {
	failing, err := j.source.FailingCategories(ctx, storeScope, since, j.cfg.FailingCategoryThreshold)
	if err != nil {
		return err
	}

	// Sort by avg similarity ascending so the worst-performing category
	// gets the lowest (most urgent) priority number.
	sort.Slice(failing, func(i, k int) bool { return failing[i].AvgSimilarity < failing[k].AvgSimilarity })

	for i, g := range failing {
		suggestionType, suggestion, steps := suggestionFor(g)
		p := types.PatternSuggestion{
			StoreScope:       storeScope,
			GroupValue:       g.GroupValue,
			SuggestionType:   suggestionType,
			Suggestion:       suggestion,
			Rationale:        fmt.Sprintf("avg similarity %.2f over %d queries is below the %.2f threshold", g.AvgSimilarity, g.SampleSize, j.cfg.FailingCategoryThreshold),
			Impact:           j.cfg.FailingCategoryThreshold - g.AvgSimilarity,
			Confidence:       confidenceFromCount(g.SampleSize),
			Priority:         i + 1,
			RecommendedSteps: steps,
			Status:           "open",
			GeneratedAt:      now,
		}
		if err := j.store.UpsertSuggestion(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// suggestionFor classifies a failing category into one of the three
// suggestion types by its dominant symptom.
func suggestionFor(g analytics.GroupStat) (suggestionType, suggestion string, steps []string) {
	switch {
	case g.AvgResultCount < 3:
		return "synonym_expansion",
			fmt.Sprintf("expand synonyms for %q: queries return too few matches", g.GroupValue),
			[]string{"review zero/low-result queries in this category", "add synonym mappings for recurring terms", "re-run the baseline job to confirm improvement"}
	case g.AvgLatencyMs > 400:
		return "caching_optimization",
			fmt.Sprintf("cache popular queries for %q: latency is elevated", g.GroupValue),
			[]string{"identify top repeated queries in this category", "add a cache namespace entry with an appropriate TTL", "monitor cache hit rate after rollout"}
	default:
		return "query_refinement",
			fmt.Sprintf("refine matching for %q: relevance is below target", g.GroupValue),
			[]string{"sample low-similarity queries in this category", "check facet filters for over-restriction", "consider a dedicated adaptive filter strategy for this category"}
	}
}
