// Package analytics is the offline recorder (C6): a bounded buffered
// channel absorbs served-query events without blocking the serving
// path, a small pool of writers drains it in batches, and commits land
// as idempotent incremental upserts against rolling aggregates.
package analytics

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

// Store is the SQLite-backed analytics sink: raw events plus the
// rolling aggregates (PopularQuery, FacetUsage, DailyPerformance) the
// baseline job consumes. A single-writer connection pool mirrors the
// gateway's product store, since modernc.org/sqlite does not multiplex
// writes across pooled connections.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	closed bool
}

// NewStore opens (or creates) the analytics database at path. An empty
// path opens an in-memory database, used by tests.
func NewStore(path string) (*Store, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create analytics store dir: %w", err)
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open analytics store: %w", err)
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
		return nil, fmt.Errorf("init analytics schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS analytics_events (
		session_id     TEXT NOT NULL,
		store_scope    TEXT NOT NULL,
		query_hash     TEXT NOT NULL,
		timestamp      TEXT NOT NULL,
		query_text     TEXT NOT NULL DEFAULT '',
		primary_intent TEXT NOT NULL DEFAULT '',
		top_category   TEXT NOT NULL DEFAULT '',
		result_count   INTEGER NOT NULL DEFAULT 0,
		avg_similarity REAL NOT NULL DEFAULT 0,
		strategies_used TEXT NOT NULL DEFAULT '',
		latency_millis INTEGER NOT NULL DEFAULT 0,
		client_ip_hash TEXT NOT NULL DEFAULT '',
		cache_hit      INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (session_id, timestamp, query_hash)
	);

	CREATE TABLE IF NOT EXISTS popular_queries (
		store_scope      TEXT NOT NULL,
		normalized_text  TEXT NOT NULL,
		count            INTEGER NOT NULL DEFAULT 0,
		result_count_sum INTEGER NOT NULL DEFAULT 0,
		last_seen_at     TEXT NOT NULL,
		PRIMARY KEY (store_scope, normalized_text)
	);

	CREATE TABLE IF NOT EXISTS facet_usage (
		store_scope TEXT NOT NULL,
		dimension   TEXT NOT NULL,
		value       TEXT NOT NULL,
		count       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (store_scope, dimension, value)
	);

	CREATE TABLE IF NOT EXISTS daily_performance (
		store_scope     TEXT NOT NULL,
		day             TEXT NOT NULL,
		query_count     INTEGER NOT NULL DEFAULT 0,
		latency_sum_ms  REAL NOT NULL DEFAULT 0,
		similarity_sum  REAL NOT NULL DEFAULT 0,
		zero_result_count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (store_scope, day)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CommitBatch writes a batch of events idempotently (re-delivery of an
// already-seen (session, timestamp, query hash) is a no-op on the raw
// event table and on the aggregates) and folds each newly inserted
// event's contribution into the rolling aggregates in the same
// transaction.
func (s *Store) CommitBatch(ctx context.Context, events []types.AnalyticsEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mapAnalyticsError(err)
	}
	defer tx.Rollback()

	for _, e := range events {
		inserted, err := insertEvent(tx, e)
		if err != nil {
			return mapAnalyticsError(err)
		}
		if !inserted {
			continue
		}
		if err := upsertPopularQuery(tx, e); err != nil {
			return mapAnalyticsError(err)
		}
		if err := upsertDailyPerformance(tx, e); err != nil {
			return mapAnalyticsError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return mapAnalyticsError(err)
	}
	return nil
}

func insertEvent(tx *sql.Tx, e types.AnalyticsEvent) (bool, error) {
	res, err := tx.Exec(`
		INSERT OR IGNORE INTO analytics_events
			(session_id, store_scope, query_hash, timestamp, query_text, primary_intent, top_category,
			 result_count, avg_similarity, strategies_used, latency_millis, client_ip_hash, cache_hit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.StoreScope, e.QueryHash, e.Timestamp.Format(time.RFC3339Nano),
		e.QueryText, e.PrimaryIntent, e.TopCategory, e.ResultCount, e.AvgSimilarity,
		strings.Join(e.StrategiesUsed, ","), e.LatencyMillis, e.ClientIPHash, boolToInt(e.CacheHit))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func upsertPopularQuery(tx *sql.Tx, e types.AnalyticsEvent) error {
	normalized := strings.ToLower(strings.TrimSpace(e.QueryText))
	if normalized == "" {
		return nil
	}
	_, err := tx.Exec(`
		INSERT INTO popular_queries (store_scope, normalized_text, count, result_count_sum, last_seen_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (store_scope, normalized_text) DO UPDATE SET
			count = count + 1,
			result_count_sum = result_count_sum + excluded.result_count_sum,
			last_seen_at = excluded.last_seen_at`,
		e.StoreScope, normalized, e.ResultCount, e.Timestamp.Format(time.RFC3339Nano))
	return err
}

func upsertDailyPerformance(tx *sql.Tx, e types.AnalyticsEvent) error {
	day := e.Timestamp.UTC().Format("2006-01-02")
	zero := 0
	if e.ResultCount == 0 {
		zero = 1
	}
	_, err := tx.Exec(`
		INSERT INTO daily_performance (store_scope, day, query_count, latency_sum_ms, similarity_sum, zero_result_count)
		VALUES (?, ?, 1, ?, ?, ?)
		ON CONFLICT (store_scope, day) DO UPDATE SET
			query_count = query_count + 1,
			latency_sum_ms = latency_sum_ms + excluded.latency_sum_ms,
			similarity_sum = similarity_sum + excluded.similarity_sum,
			zero_result_count = zero_result_count + excluded.zero_result_count`,
		e.StoreScope, day, float64(e.LatencyMillis), e.AvgSimilarity, zero)
	return err
}

// RecordFacetUsage folds one result set's facet value occurrences into
// the rolling facet-usage aggregate. Called by the orchestrator after
// facet building, separately from the per-query event batch since the
// facet cardinality per query varies.
func (s *Store) RecordFacetUsage(ctx context.Context, storeScope, dimension, value string, count int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facet_usage (store_scope, dimension, value, count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (store_scope, dimension, value) DO UPDATE SET count = count + excluded.count`,
		storeScope, dimension, value, count)
	if err != nil {
		return mapAnalyticsError(err)
	}
	return nil
}

// DailyPerformance returns the per-day performance rollup for a store
// within [from, to], the input to baseline computation.
func (s *Store) DailyPerformance(ctx context.Context, storeScope string, from, to time.Time) ([]types.DailyPerformance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT day, query_count, latency_sum_ms, similarity_sum, zero_result_count
		FROM daily_performance
		WHERE store_scope = ? AND day >= ? AND day <= ?
		ORDER BY day ASC`,
		storeScope, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"))
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var out []types.DailyPerformance
	for rows.Next() {
		var dayStr string
		var count int64
		var latencySum, similaritySum float64
		var zeroCount int64
		if err := rows.Scan(&dayStr, &count, &latencySum, &similaritySum, &zeroCount); err != nil {
			return nil, mapAnalyticsError(err)
		}
		day, _ := time.Parse("2006-01-02", dayStr)
		perf := types.DailyPerformance{StoreScope: storeScope, Day: day, QueryCount: count}
		if count > 0 {
			perf.AvgLatencyMs = latencySum / float64(count)
			perf.AvgSimilarity = similaritySum / float64(count)
			perf.ZeroResultPct = float64(zeroCount) / float64(count) * 100
		}
		out = append(out, perf)
	}
	return out, rows.Err()
}

// GroupStat summarizes the events for one (store, group) pair the
// baseline job computes an envelope for: either a category or an
// intent, as selected by GroupStats' groupKind argument.
type GroupStat struct {
	GroupValue     string
	AvgSimilarity  float64
	AvgLatencyMs   float64
	AvgResultCount float64
	SuccessRate    float64 // fraction with avg_similarity >= 0.7
	SampleSize     int64
}

// GroupStats aggregates events since `since` for a store, grouped by
// either top_category or primary_intent, keeping only groups with at
// least minEvents samples.
func (s *Store) GroupStats(ctx context.Context, storeScope, groupKind string, since time.Time, minEvents int) ([]GroupStat, error) {
	column := "primary_intent"
	if groupKind == "category" {
		column = "top_category"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}

	query := `
		SELECT ` + column + ` AS group_value,
		       AVG(avg_similarity) AS avg_sim,
		       AVG(latency_millis) AS avg_latency,
		       AVG(result_count) AS avg_result_count,
		       SUM(CASE WHEN avg_similarity >= 0.7 THEN 1 ELSE 0 END) * 1.0 / COUNT(*) AS success_rate,
		       COUNT(*) AS sample_size
		FROM analytics_events
		WHERE store_scope = ? AND timestamp >= ? AND ` + column + ` != ''
		GROUP BY ` + column + `
		HAVING COUNT(*) >= ?
		ORDER BY group_value ASC`

	rows, err := s.db.QueryContext(ctx, query, storeScope, since.Format(time.RFC3339Nano), minEvents)
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var out []GroupStat
	for rows.Next() {
		var g GroupStat
		if err := rows.Scan(&g.GroupValue, &g.AvgSimilarity, &g.AvgLatencyMs, &g.AvgResultCount, &g.SuccessRate, &g.SampleSize); err != nil {
			return nil, mapAnalyticsError(err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// GroupLatencies returns the raw per-event latencies for one (store,
// group) pair since `since`, sorted ascending, for percentile
// computation the baseline job performs in memory.
func (s *Store) GroupLatencies(ctx context.Context, storeScope, groupKind, groupValue string, since time.Time) ([]int64, error) {
	column := "primary_intent"
	if groupKind == "category" {
		column = "top_category"
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT latency_millis FROM analytics_events
		WHERE store_scope = ? AND `+column+` = ? AND timestamp >= ?
		ORDER BY latency_millis ASC`,
		storeScope, groupValue, since.Format(time.RFC3339Nano))
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			return nil, mapAnalyticsError(err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SuccessfulQueries returns distinct query texts since `since` with
// similarity at or above the given threshold and at least minCount
// occurrences, the candidate pool the baseline job mines for
// LearnedPattern token extraction.
func (s *Store) SuccessfulQueries(ctx context.Context, storeScope string, since time.Time, similarityThreshold float64, minCount int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT query_text, COUNT(*) AS c
		FROM analytics_events
		WHERE store_scope = ? AND timestamp >= ? AND avg_similarity >= ? AND query_text != ''
		GROUP BY query_text
		HAVING c >= ?
		ORDER BY c DESC`,
		storeScope, since.Format(time.RFC3339Nano), similarityThreshold, minCount)
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		var count int
		if err := rows.Scan(&text, &count); err != nil {
			return nil, mapAnalyticsError(err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}

// FailingCategories returns categories since `since` whose average
// similarity fell below threshold, for PatternSuggestion mining.
func (s *Store) FailingCategories(ctx context.Context, storeScope string, since time.Time, threshold float64) ([]GroupStat, error) {
	stats, err := s.GroupStats(ctx, storeScope, "category", since, 1)
	if err != nil {
		return nil, err
	}
	var failing []GroupStat
	for _, g := range stats {
		if g.AvgSimilarity < threshold {
			failing = append(failing, g)
		}
	}
	return failing, nil
}

// PurgeEventsBefore deletes raw events older than cutoff, returning the
// number of rows removed. Used by the retention manager.
func (s *Store) PurgeEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM analytics_events WHERE timestamp < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, mapAnalyticsError(err)
	}
	return res.RowsAffected()
}

// PurgeDailyPerformanceBefore deletes daily rollup rows older than
// cutoff, returning the number of rows removed. Used by the retention
// manager's "performance_days" policy.
func (s *Store) PurgeDailyPerformanceBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM daily_performance WHERE day < ?`, cutoff.UTC().Format("2006-01-02"))
	if err != nil {
		return 0, mapAnalyticsError(err)
	}
	return res.RowsAffected()
}

// PopularQueries returns the most-searched normalized query texts for a
// store, highest count first, capped at limit. This is the sole reachable
// shape of the source's duplicate-defined popular-searches accessor (see
// DESIGN.md); ties break by most-recently-seen so a newly trending query
// outranks a stale one with the same count.
func (s *Store) PopularQueries(ctx context.Context, storeScope string, limit int) ([]types.PopularQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT store_scope, normalized_text, count, result_count_sum, last_seen_at
		FROM popular_queries
		WHERE store_scope = ?
		ORDER BY count DESC, last_seen_at DESC
		LIMIT ?`,
		storeScope, limit)
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var out []types.PopularQuery
	for rows.Next() {
		var q types.PopularQuery
		var resultCountSum int64
		var lastSeenStr string
		if err := rows.Scan(&q.StoreScope, &q.NormalizedText, &q.Count, &resultCountSum, &lastSeenStr); err != nil {
			return nil, mapAnalyticsError(err)
		}
		if q.Count > 0 {
			q.AvgResultCount = float64(resultCountSum) / float64(q.Count)
		}
		q.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenStr)
		out = append(out, q)
	}
	return out, rows.Err()
}

// PurgePopularQueriesBefore deletes popular-query rollups not seen since
// cutoff, returning the number of rows removed. Used by the retention
// manager's "clicks_days" policy: no click data is recorded, so that
// horizon is applied to this rollup's last_seen_at instead.
func (s *Store) PurgePopularQueriesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM popular_queries WHERE last_seen_at < ?`, cutoff.Format(time.RFC3339Nano))
	if err != nil {
		return 0, mapAnalyticsError(err)
	}
	return res.RowsAffected()
}

// DistinctStoreScopes returns every store scope that has at least one
// recorded event, for callers (the baseline scheduler) that need to
// iterate "every store with traffic" without a separate store registry.
func (s *Store) DistinctStoreScopes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store is closed", nil)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT store_scope FROM analytics_events ORDER BY store_scope`)
	if err != nil {
		return nil, mapAnalyticsError(err)
	}
	defer rows.Close()

	var scopes []string
	for rows.Next() {
		var scope string
		if err := rows.Scan(&scope); err != nil {
			return nil, mapAnalyticsError(err)
		}
		scopes = append(scopes, scope)
	}
	return scopes, mapAnalyticsError(rows.Err())
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

func mapAnalyticsError(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return searcherrors.QueryTimeout(searcherrors.ErrCodeQueryTimeout, "analytics store query timed out", err)
	}
	return searcherrors.StoreUnavailable(searcherrors.ErrCodeAnalyticsStoreUnavailable, "analytics store operation failed", err)
}
