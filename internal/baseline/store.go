// Package baseline is the offline baseline and pattern store (C9): a
// scheduled job scans analytics rollups, snapshots per-(store, category)
// and per-(store, intent) performance envelopes, mines learned query
// patterns and improvement suggestions, and persists all three for
// operator review. It never mutates the serving path directly.
package baseline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// Store is the SQLite-backed persistence layer for Baseline, LearnedPattern,
// and PatternSuggestion rows. It mirrors the analytics store's single-writer
// connection pool, since modernc.org/sqlite does not multiplex writes
// across pooled connections.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewStore opens (or creates) the baseline database at path. An empty
// path opens an in-memory database, used by tests.
func NewStore(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create baseline store dir: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open baseline store: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init baseline schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS baselines (
		store_scope        TEXT NOT NULL,
		group_kind         TEXT NOT NULL,
		group_value        TEXT NOT NULL,
		avg_similarity     REAL NOT NULL DEFAULT 0,
		avg_result_count   REAL NOT NULL DEFAULT 0,
		p50_latency_ms     REAL NOT NULL DEFAULT 0,
		p95_latency_ms     REAL NOT NULL DEFAULT 0,
		success_rate       REAL NOT NULL DEFAULT 0,
		sample_size        INTEGER NOT NULL DEFAULT 0,
		trend              TEXT NOT NULL DEFAULT 'new',
		performance_grade  TEXT NOT NULL DEFAULT 'F',
		improvement_opportunities TEXT NOT NULL DEFAULT '',
		computed_at        TEXT NOT NULL,
		is_latest          INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_baselines_latest
		ON baselines (store_scope, group_kind, group_value, is_latest);

	CREATE TABLE IF NOT EXISTS learned_patterns (
		store_scope     TEXT NOT NULL,
		pattern_key     TEXT NOT NULL,
		pattern_type    TEXT NOT NULL DEFAULT '',
		strategy_name   TEXT NOT NULL DEFAULT '',
		success_count   INTEGER NOT NULL DEFAULT 0,
		failure_count   INTEGER NOT NULL DEFAULT 0,
		success_rate    REAL NOT NULL DEFAULT 0,
		confidence      REAL NOT NULL DEFAULT 0,
		last_applied_at TEXT NOT NULL,
		PRIMARY KEY (store_scope, pattern_key)
	);

	CREATE TABLE IF NOT EXISTS pattern_suggestions (
		store_scope       TEXT NOT NULL,
		group_value       TEXT NOT NULL,
		suggestion_type   TEXT NOT NULL,
		suggestion        TEXT NOT NULL,
		rationale         TEXT NOT NULL DEFAULT '',
		impact            REAL NOT NULL DEFAULT 0,
		confidence        REAL NOT NULL DEFAULT 0,
		priority          INTEGER NOT NULL DEFAULT 0,
		recommended_steps TEXT NOT NULL DEFAULT '',
		status            TEXT NOT NULL DEFAULT 'open',
		generated_at      TEXT NOT NULL,
		PRIMARY KEY (store_scope, group_value, suggestion_type)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LatestBaseline returns the current canonical baseline for a (store,
// group) pair, or (zero, false) if none has been computed yet.
func (s *Store) LatestBaseline(ctx context.Context, storeScope, groupKind, groupValue string) (types.Baseline, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.Baseline{}, false, searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT avg_similarity, avg_result_count, p50_latency_ms, p95_latency_ms,
		       success_rate, sample_size, trend, performance_grade,
		       improvement_opportunities, computed_at
		FROM baselines
		WHERE store_scope = ? AND group_kind = ? AND group_value = ? AND is_latest = 1`,
		storeScope, groupKind, groupValue)

	var b types.Baseline
	var opportunities, computedAt string
	err := row.Scan(&b.AvgSimilarity, &b.AvgResultCount, &b.P50LatencyMs, &b.P95LatencyMs,
		&b.SuccessRate, &b.SampleSize, &b.Trend, &b.PerformanceGrade, &opportunities, &computedAt)
	if err == sql.ErrNoRows {
		return types.Baseline{}, false, nil
	}
	if err != nil {
		return types.Baseline{}, false, mapBaselineError(err)
	}
	b.StoreScope, b.GroupKind, b.GroupValue = storeScope, groupKind, groupValue
	b.IsLatest = true
	b.ComputedAt, _ = time.Parse(time.RFC3339Nano, computedAt)
	b.ImprovementOpportunities = splitNonEmpty(opportunities)
	return b, true, nil
}

// UpsertBaseline persists a new baseline snapshot and marks it as the
// latest for its (store, group) pair, demoting any prior latest row.
func (s *Store) UpsertBaseline(ctx context.Context, b types.Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapBaselineError(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		UPDATE baselines SET is_latest = 0
		WHERE store_scope = ? AND group_kind = ? AND group_value = ? AND is_latest = 1`,
		b.StoreScope, b.GroupKind, b.GroupValue); err != nil {
		return mapBaselineError(err)
	}

	if _, err := tx.Exec(`
		INSERT INTO baselines
			(store_scope, group_kind, group_value, avg_similarity, avg_result_count,
			 p50_latency_ms, p95_latency_ms, success_rate, sample_size, trend,
			 performance_grade, improvement_opportunities, computed_at, is_latest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		b.StoreScope, b.GroupKind, b.GroupValue, b.AvgSimilarity, b.AvgResultCount,
		b.P50LatencyMs, b.P95LatencyMs, b.SuccessRate, b.SampleSize, b.Trend,
		b.PerformanceGrade, strings.Join(b.ImprovementOpportunities, "|"), b.ComputedAt.Format(time.RFC3339Nano)); err != nil {
		return mapBaselineError(err)
	}

	if err := tx.Commit(); err != nil {
		return mapBaselineError(err)
	}
	return nil
}

// UpsertLearnedPattern records (or refreshes) a mined pattern, keyed by
// (store, pattern key).
func (s *Store) UpsertLearnedPattern(ctx context.Context, p types.LearnedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO learned_patterns
			(store_scope, pattern_key, pattern_type, strategy_name, success_count,
			 failure_count, success_rate, confidence, last_applied_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_scope, pattern_key) DO UPDATE SET
			pattern_type = excluded.pattern_type,
			strategy_name = excluded.strategy_name,
			success_count = excluded.success_count,
			failure_count = excluded.failure_count,
			success_rate = excluded.success_rate,
			confidence = excluded.confidence,
			last_applied_at = excluded.last_applied_at`,
		p.StoreScope, p.PatternKey, p.PatternType, p.StrategyName, p.SuccessCount,
		p.FailureCount, p.SuccessRate, p.Confidence, p.LastAppliedAt.Format(time.RFC3339Nano))
	if err != nil {
		return mapBaselineError(err)
	}
	return nil
}

// LearnedPatterns returns every pattern recorded for a store.
func (s *Store) LearnedPatterns(ctx context.Context, storeScope string) ([]types.LearnedPattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_key, pattern_type, strategy_name, success_count, failure_count,
		       success_rate, confidence, last_applied_at
		FROM learned_patterns WHERE store_scope = ?`, storeScope)
	if err != nil {
		return nil, mapBaselineError(err)
	}
	defer rows.Close()

	var out []types.LearnedPattern
	for rows.Next() {
		p := types.LearnedPattern{StoreScope: storeScope}
		var lastApplied string
		if err := rows.Scan(&p.PatternKey, &p.PatternType, &p.StrategyName, &p.SuccessCount,
			&p.FailureCount, &p.SuccessRate, &p.Confidence, &lastApplied); err != nil {
			return nil, mapBaselineError(err)
		}
		p.LastAppliedAt, _ = time.Parse(time.RFC3339Nano, lastApplied)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgeLearnedPatternsBefore deletes patterns last applied before cutoff
// whose success rate is below minSuccessRate (the dual stale-and-
// unsuccessful condition the retention manager applies). Used by C10.
func (s *Store) PurgeLearnedPatternsBefore(ctx context.Context, cutoff time.Time, minSuccessRate float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM learned_patterns WHERE last_applied_at < ? AND success_rate < ?`,
		cutoff.Format(time.RFC3339Nano), minSuccessRate)
	if err != nil {
		return 0, mapBaselineError(err)
	}
	return res.RowsAffected()
}

// UpsertSuggestion records (or refreshes) an operator-facing improvement
// suggestion, keyed by (store, group, suggestion type).
func (s *Store) UpsertSuggestion(ctx context.Context, p types.PatternSuggestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	if p.Status == "" {
		p.Status = "open"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pattern_suggestions
			(store_scope, group_value, suggestion_type, suggestion, rationale, impact,
			 confidence, priority, recommended_steps, status, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (store_scope, group_value, suggestion_type) DO UPDATE SET
			suggestion = excluded.suggestion,
			rationale = excluded.rationale,
			impact = excluded.impact,
			confidence = excluded.confidence,
			priority = excluded.priority,
			recommended_steps = excluded.recommended_steps,
			generated_at = excluded.generated_at`,
		p.StoreScope, p.GroupValue, p.SuggestionType, p.Suggestion, p.Rationale, p.Impact,
		p.Confidence, p.Priority, strings.Join(p.RecommendedSteps, "|"), p.Status,
		p.GeneratedAt.Format(time.RFC3339Nano))
	if err != nil {
		return mapBaselineError(err)
	}
	return nil
}

// Suggestions returns open suggestions for a store, most urgent first.
func (s *Store) Suggestions(ctx context.Context, storeScope string) ([]types.PatternSuggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_value, suggestion_type, suggestion, rationale, impact, confidence,
		       priority, recommended_steps, status, generated_at
		FROM pattern_suggestions WHERE store_scope = ? AND status = 'open'
		ORDER BY priority ASC`, storeScope)
	if err != nil {
		return nil, mapBaselineError(err)
	}
	defer rows.Close()

	var out []types.PatternSuggestion
	for rows.Next() {
		p := types.PatternSuggestion{StoreScope: storeScope}
		var steps, generatedAt string
		if err := rows.Scan(&p.GroupValue, &p.SuggestionType, &p.Suggestion, &p.Rationale,
			&p.Impact, &p.Confidence, &p.Priority, &steps, &p.Status, &generatedAt); err != nil {
			return nil, mapBaselineError(err)
		}
		p.RecommendedSteps = splitNonEmpty(steps)
		p.GeneratedAt, _ = time.Parse(time.RFC3339Nano, generatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// PurgeBaselinesBefore deletes non-latest baseline snapshots computed
// before cutoff, retaining the canonical latest row regardless of age.
// Used by the retention manager.
func (s *Store) PurgeBaselinesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store is closed", nil)
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM baselines WHERE computed_at < ? AND is_latest = 0`,
		cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, mapBaselineError(err)
	}
	return res.RowsAffected()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func splitNonEmpty(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, "|")
}

func mapBaselineError(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return searcherrors.QueryTimeout(searcherrors.ErrCodeQueryTimeout, "baseline store query timed out", err)
	}
	return searcherrors.StoreUnavailable(searcherrors.ErrCodeBaselineStoreUnavailable, "baseline store operation failed", err)
}
