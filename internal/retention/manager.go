package retention

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/aman-cerp/shopsearch/internal/analytics"
	"github.com/aman-cerp/shopsearch/internal/baseline"
	"github.com/aman-cerp/shopsearch/internal/config"
)

// Manager runs a fixed policy table at a configured cadence, tracking
// each policy's last-cleanup timestamp and deletion count for operator
// visibility (surfaced by the "retention run" CLI command).
type Manager struct {
	mu       sync.Mutex
	policies []Policy
	last     map[string]Result
	log      *slog.Logger
}

// NewManager builds an empty retention manager; use Register or
// BuildPolicies to populate its policy table.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{last: make(map[string]Result), log: log}
}

// Register adds a policy to the table. Not safe to call concurrently
// with RunAll.
func (m *Manager) Register(p Policy) {
	m.policies = append(m.policies, p)
}

// RunAll executes every registered policy once against now, logging a
// retention metric per policy and recording its result for LastResults.
// A policy's failure does not prevent the others from running.
func (m *Manager) RunAll(ctx context.Context, now time.Time) []Result {
	results := make([]Result, 0, len(m.policies))
	for _, p := range m.policies {
		cutoff := now.Add(-p.Horizon)
		count, err := p.Delete(ctx, cutoff)
		res := Result{Policy: p.Name, CutoffAt: cutoff, RanAt: now, DeletedCount: count, Err: err}
		results = append(results, res)

		m.mu.Lock()
		m.last[p.Name] = res
		m.mu.Unlock()

		if err != nil {
			m.log.Error("retention policy failed", "policy", p.Name, "error", err)
			continue
		}
		m.log.Info("retention policy ran", "policy", p.Name, "deleted_count", count, "cutoff_at", cutoff)
	}
	return results
}

// LastResults returns the most recent outcome of every policy that has
// run at least once.
func (m *Manager) LastResults() []Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Result, 0, len(m.last))
	for _, r := range m.last {
		out = append(out, r)
	}
	return out
}

// BuildPolicies wires the standard policy table against the concrete
// analytics and baseline stores, per spec.md §4.10 and the persisted
// entities those components own: raw analytics events, the
// popular-query rollup (which the clicks horizon applies to, since no
// click data is recorded), daily performance rollups, non-latest baseline
// snapshots, and learned patterns under the dual stale-and-unsuccessful
// condition.
func BuildPolicies(analyticsStore *analytics.Store, baselineStore *baseline.Store, cfg config.RetentionConfig) []Policy {
	analyticsDays := days(cfg.AnalyticsDays, 90)
	clicksDays := days(cfg.ClicksDays, 90)
	performanceDays := days(cfg.PerformanceDays, 180)
	staleDays := days(cfg.LearnedPatternsStaleDays, 60)
	minSuccessRate := cfg.LearnedPatternsMinSuccessRate

	return []Policy{
		{
			Name:    "analytics_events",
			Horizon: analyticsDays,
			Delete:  analyticsStore.PurgeEventsBefore,
		},
		{
			Name:    "popular_queries",
			Horizon: clicksDays,
			Delete:  analyticsStore.PurgePopularQueriesBefore,
		},
		{
			Name:    "daily_performance",
			Horizon: performanceDays,
			Delete:  analyticsStore.PurgeDailyPerformanceBefore,
		},
		{
			Name:    "baselines",
			Horizon: performanceDays,
			Delete:  baselineStore.PurgeBaselinesBefore,
		},
		{
			Name:    "learned_patterns",
			Horizon: staleDays,
			Delete: func(ctx context.Context, cutoff time.Time) (int64, error) {
				return baselineStore.PurgeLearnedPatternsBefore(ctx, cutoff, minSuccessRate)
			},
		},
	}
}

func days(n, fallback int) time.Duration {
	if n <= 0 {
		n = fallback
	}
	return time.Duration(n) * 24 * time.Hour
}
