package retention

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/baseline"
	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/types"
)

func newStores(t *testing.T) (*analytics.Store, *baseline.Store) {
	t.Helper()
	a, err := analytics.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	b, err := baseline.NewStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })

	return a, b
}

// Given: old analytics events and learned patterns, When: the standard
// policy table runs, Then: stale rows are removed according to each
// policy's own horizon and predicate.
func TestBuildPolicies_EndToEndCleansStaleRows(t *testing.T) {
	a, b := newStores(t)
	old := time.Now().Add(-120 * 24 * time.Hour)
	now := time.Now()

	require.NoError(t, a.CommitBatch(context.Background(), []types.AnalyticsEvent{{
		SessionID: "s1", StoreScope: "store-a", QueryHash: "h1", QueryText: "old query",
		ResultCount: 1, AvgSimilarity: 0.5, LatencyMillis: 10, Timestamp: old,
	}}))
	require.NoError(t, b.UpsertLearnedPattern(context.Background(), types.LearnedPattern{
		StoreScope: "store-a", PatternKey: "stale", SuccessRate: 0.1, LastAppliedAt: old,
	}))

	cfg := config.RetentionConfig{
		AnalyticsDays:                 30,
		ClicksDays:                    30,
		PerformanceDays:               30,
		LearnedPatternsMinSuccessRate: 0.5,
		LearnedPatternsStaleDays:      30,
	}
	manager := NewManager(nil)
	for _, p := range BuildPolicies(a, b, cfg) {
		manager.Register(p)
	}

	results := manager.RunAll(context.Background(), now)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	patterns, err := b.LearnedPatterns(context.Background(), "store-a")
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

// Given: a zero-value config, When: policies are built, Then: sensible
// fallback horizons are used instead of a zero (immediate-delete-everything) window.
func TestBuildPolicies_FallsBackToDefaultHorizons(t *testing.T) {
	a, b := newStores(t)
	policies := BuildPolicies(a, b, config.RetentionConfig{})

	for _, p := range policies {
		assert.Positive(t, p.Horizon, "policy %q should have a positive default horizon", p.Name)
	}
}
