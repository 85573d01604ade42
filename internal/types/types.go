// Package types defines the shared value types that flow between the
// search service's components: catalog products, query fingerprints,
// cached results, analytics events, rolling aggregates, baselines,
// learned patterns, and adaptive filter strategies.
//
// Ownership is split across components rather than centralized in a
// repository layer: the vector store owns Product rows, the cache owns
// CachedResult, analytics owns AnalyticsEvent/PopularQuery/FacetUsage/
// DailyPerformance, and the baseline job owns Baseline/LearnedPattern/
// PatternSuggestion. This package only defines the shapes; it holds no
// behavior and no storage.
package types

import "time"

// Product is a single catalog item as indexed for search.
type Product struct {
	ID          string    `json:"id"`
	StoreScope  string    `json:"store_scope"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Brand       string    `json:"brand"`
	Color       string    `json:"color"`
	Material    string    `json:"material"`
	Size        string    `json:"size"`
	Season      string    `json:"season"`
	Style       string    `json:"style"`
	Tags        []string  `json:"tags"`
	PriceCents  int64     `json:"price_cents"`
	Currency    string    `json:"currency"`
	InStock     bool      `json:"in_stock"`
	Status      string    `json:"status"` // "active", "archived", "draft"
	ImageURL    string    `json:"image_url,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// QueryFingerprint is the normalized, hashable identity of a search
// request used for cache keys and analytics grouping. Two requests that
// differ only in formatting (casing, whitespace, filter ordering)
// produce the same fingerprint.
type QueryFingerprint struct {
	StoreScope     string            `json:"store_scope"`
	NormalizedText string            `json:"normalized_text"`
	Filters        map[string]string `json:"filters"`
	PriceMinCents  *int64            `json:"price_min_cents,omitempty"`
	PriceMaxCents  *int64            `json:"price_max_cents,omitempty"`
	Hash           string            `json:"hash"`
}

// CachedResult is a previously computed search response kept under a
// TTL namespace (semantic_search, fuzzy_search, popular_aggregates,
// facets) by the cache component.
type CachedResult struct {
	Fingerprint QueryFingerprint `json:"fingerprint"`
	Namespace   string           `json:"namespace"`
	Payload     []byte           `json:"payload"`
	CreatedAt   time.Time        `json:"created_at"`
	ExpiresAt   time.Time        `json:"expires_at"`
}

// AnalyticsEvent records a single served query for offline aggregation.
// Identity for idempotent upsert is (SessionID, Timestamp, QueryHash).
type AnalyticsEvent struct {
	SessionID      string    `json:"session_id"`
	StoreScope     string    `json:"store_scope"`
	QueryHash      string    `json:"query_hash"`
	QueryText      string    `json:"query_text"`
	PrimaryIntent  string    `json:"primary_intent"`
	TopCategory    string    `json:"top_category,omitempty"`
	ResultCount    int       `json:"result_count"`
	AvgSimilarity  float64   `json:"avg_similarity"`
	StrategiesUsed []string  `json:"strategies_used,omitempty"`
	LatencyMillis  int64     `json:"latency_millis"`
	ClientIPHash   string    `json:"client_ip_hash,omitempty"`
	CacheHit       bool      `json:"cache_hit"`
	Timestamp      time.Time `json:"timestamp"`
}

// PopularQuery is a rolling aggregate of query volume per fingerprint.
type PopularQuery struct {
	StoreScope     string    `json:"store_scope"`
	NormalizedText string    `json:"normalized_text"`
	Count          int64     `json:"count"`
	AvgResultCount float64   `json:"avg_result_count"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

// FacetUsage is a rolling aggregate of how often a facet value was
// present in returned results, used to prioritize facet display order.
type FacetUsage struct {
	StoreScope string `json:"store_scope"`
	Dimension  string `json:"dimension"`
	Value      string `json:"value"`
	Count      int64  `json:"count"`
}

// DailyPerformance is a per-day rollup of serving performance, the
// input to baseline computation.
type DailyPerformance struct {
	StoreScope    string    `json:"store_scope"`
	Day           time.Time `json:"day"`
	QueryCount    int64     `json:"query_count"`
	AvgLatencyMs  float64   `json:"avg_latency_ms"`
	AvgSimilarity float64   `json:"avg_similarity"`
	ZeroResultPct float64   `json:"zero_result_pct"`
}

// Baseline is the expected-performance envelope for a (store, category)
// or (store, intent) group, computed periodically by the baseline job
// and consulted by the adaptive filter component to judge whether a
// result set underperforms.
type Baseline struct {
	StoreScope       string  `json:"store_scope"`
	GroupKind        string  `json:"group_kind"` // "category" or "intent"
	GroupValue       string  `json:"group_value"`
	AvgSimilarity    float64 `json:"avg_similarity"`
	AvgResultCount   float64 `json:"avg_result_count"`
	P50LatencyMs     float64 `json:"p50_latency_ms"`
	P95LatencyMs     float64 `json:"p95_latency_ms"`
	SuccessRate      float64 `json:"success_rate"`
	SampleSize       int64   `json:"sample_size"`
	Trend            string  `json:"trend"`             // "improving", "stable", "declining", "new"
	PerformanceGrade string  `json:"performance_grade"` // "A".."F"
	// ImprovementOpportunities lists human-readable gaps against the
	// grading thresholds (e.g. "latency above target for this group").
	ImprovementOpportunities []string  `json:"improvement_opportunities,omitempty"`
	ComputedAt               time.Time `json:"computed_at"`
	IsLatest                 bool      `json:"is_latest"`
}

// LearnedPattern is a query shape the adaptive filter has observed
// succeeding or failing repeatedly, mined by the baseline job and
// retired by the retention policy once stale and unsuccessful.
type LearnedPattern struct {
	StoreScope    string    `json:"store_scope"`
	PatternKey    string    `json:"pattern_key"`
	PatternType   string    `json:"pattern_type"` // e.g. "common_terms"
	StrategyName  string    `json:"strategy_name"`
	SuccessCount  int64     `json:"success_count"`
	FailureCount  int64     `json:"failure_count"`
	SuccessRate   float64   `json:"success_rate"`
	Confidence    float64   `json:"confidence"`
	LastAppliedAt time.Time `json:"last_applied_at"`
}

// UsageCount returns the total number of times the pattern has been
// observed, successful or not.
func (p LearnedPattern) UsageCount() int64 {
	return p.SuccessCount + p.FailureCount
}

// PatternSuggestion is a candidate improvement emitted by the baseline
// job for operator review (e.g. "widen price tolerance for category X").
type PatternSuggestion struct {
	StoreScope       string    `json:"store_scope"`
	GroupValue       string    `json:"group_value"`
	SuggestionType   string    `json:"suggestion_type"` // synonym_expansion, caching_optimization, query_refinement
	Suggestion       string    `json:"suggestion"`
	Rationale        string    `json:"rationale"`
	Impact           float64   `json:"impact"` // expected improvement, 0-1
	Confidence       float64   `json:"confidence"`
	Priority         int       `json:"priority"` // lower is more urgent
	RecommendedSteps []string  `json:"recommended_steps,omitempty"`
	Status           string    `json:"status"` // "open", "acknowledged", "resolved"
	GeneratedAt      time.Time `json:"generated_at"`
}

// FilterStrategy is a declarative adjustment the adaptive component can
// apply to a search when the initial result set underperforms: relax a
// threshold, widen a price band, drop a facet filter, etc.
type FilterStrategy struct {
	Name                string   `json:"name"`
	Priority            int      `json:"priority"` // lower runs first
	AddressesIssue      string   `json:"addresses_issue"`
	ThresholdDelta      float64  `json:"threshold_delta,omitempty"`
	PriceToleranceDelta float64  `json:"price_tolerance_delta,omitempty"`
	DropFacets          []string `json:"drop_facets,omitempty"`
	SuccessCount        int64    `json:"success_count"`
	AttemptCount        int64    `json:"attempt_count"`
}

// SuccessRate returns the strategy's observed success rate, or 0 when
// it has never been attempted.
func (s FilterStrategy) SuccessRate() float64 {
	if s.AttemptCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.AttemptCount)
}
