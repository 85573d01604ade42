package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)

	searcherrors "github.com/aman-cerp/shopsearch/internal/errors"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// productStore is the SQLite-backed row store for products: the
// authoritative source for everything the vector and fuzzy indexes
// don't carry (price, status, stock, store scope, timestamps), queried
// via predicate pushdown rather than post-filtering in memory.
type productStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

func validateProductDBIntegrity(path string) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity_check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity_check reported: %s", result)
	}
	return nil
}

// newProductStore opens (or creates) the SQLite database at path. An
// empty path opens an in-memory database, used by tests. A corrupted
// on-disk database is cleared and rebuilt rather than left to fail
// every subsequent query.
func newProductStore(path string) (*productStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create product store dir: %w", err)
			}
		}
		if _, statErr := os.Stat(path); statErr == nil {
			if validErr := validateProductDBIntegrity(path); validErr != nil {
				if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
					return nil, fmt.Errorf("product store corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
				}
				_ = os.Remove(path + "-wal")
				_ = os.Remove(path + "-shm")
			}
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open product store: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY under modernc.org/sqlite,
	// which does not multiplex writes across pooled connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &productStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init product store schema: %w", err)
	}
	return s, nil
}

func (s *productStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS products (
		id            TEXT PRIMARY KEY,
		internal_id   INTEGER,
		store_scope   TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		category      TEXT NOT NULL DEFAULT '',
		brand         TEXT NOT NULL DEFAULT '',
		color         TEXT NOT NULL DEFAULT '',
		material      TEXT NOT NULL DEFAULT '',
		size          TEXT NOT NULL DEFAULT '',
		season        TEXT NOT NULL DEFAULT '',
		style         TEXT NOT NULL DEFAULT '',
		tags          TEXT NOT NULL DEFAULT '',
		price_cents   INTEGER NOT NULL DEFAULT 0,
		currency      TEXT NOT NULL DEFAULT '',
		in_stock      INTEGER NOT NULL DEFAULT 1,
		status        TEXT NOT NULL DEFAULT 'active',
		image_url     TEXT NOT NULL DEFAULT '',
		updated_at    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_products_store_scope ON products(store_scope);
	CREATE INDEX IF NOT EXISTS idx_products_price ON products(price_cents);
	CREATE INDEX IF NOT EXISTS idx_products_status ON products(status);
	CREATE INDEX IF NOT EXISTS idx_products_in_stock ON products(in_stock);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := s.db.Exec(schema)
	return err
}

// nextInternalID assigns a strictly increasing internal numeric id on
// first insert, preserved across updates, so similarity ties can be
// broken by ascending internal id as the gateway requires.
func (s *productStore) nextInternalID(tx *sql.Tx) (int64, error) {
	var max sql.NullInt64
	if err := tx.QueryRow("SELECT MAX(internal_id) FROM products").Scan(&max); err != nil {
		return 0, err
	}
	if !max.Valid {
		return 1, nil
	}
	return max.Int64 + 1, nil
}

// upsert writes a product row transactionally, assigning an internal
// id on first insert and keeping it stable on update.
func (s *productStore) upsert(ctx context.Context, p types.Product) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, searcherrors.StoreUnavailable(searcherrors.ErrCodeVectorStoreUnavailable, "product store is closed", nil)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, mapSQLiteError(err)
	}
	defer tx.Rollback()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT internal_id FROM products WHERE id = ?`, p.ID).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		existing, err = s.nextInternalID(tx)
		if err != nil {
			return 0, mapSQLiteError(err)
		}
	case err != nil:
		return 0, mapSQLiteError(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (
			id, internal_id, store_scope, title, description, category, brand,
			color, material, size, season, style, tags, price_cents, currency,
			in_stock, status, image_url, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			store_scope=excluded.store_scope, title=excluded.title,
			description=excluded.description, category=excluded.category,
			brand=excluded.brand, color=excluded.color, material=excluded.material,
			size=excluded.size, season=excluded.season, style=excluded.style,
			tags=excluded.tags, price_cents=excluded.price_cents,
			currency=excluded.currency, in_stock=excluded.in_stock,
			status=excluded.status, image_url=excluded.image_url,
			updated_at=excluded.updated_at
	`,
		p.ID, existing, p.StoreScope, p.Title, p.Description, p.Category, p.Brand,
		p.Color, p.Material, p.Size, p.Season, p.Style, strings.Join(p.Tags, ","),
		p.PriceCents, p.Currency, boolToInt(p.InStock), p.Status, p.ImageURL,
		p.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, mapSQLiteError(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, mapSQLiteError(err)
	}
	return existing, nil
}

// get fetches a single product row by its internal numeric id.
func (s *productStore) get(ctx context.Context, internalID int64) (types.Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE internal_id = ?`, internalID)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return types.Product{}, false, nil
	}
	if err != nil {
		return types.Product{}, false, mapSQLiteError(err)
	}
	return p, true, nil
}

// byIDs fetches product rows for a set of internal ids, predicate-filtered,
// preserving no particular order (callers re-sort by the id ordering).
func (s *productStore) byIDs(ctx context.Context, internalIDs []int64, f Filters) (map[int64]types.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(internalIDs) == 0 {
		return map[int64]types.Product{}, nil
	}

	placeholders := make([]string, len(internalIDs))
	args := make([]any, 0, len(internalIDs)+8)
	for i, id := range internalIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}

	query := selectColumns + ` WHERE internal_id IN (` + strings.Join(placeholders, ",") + `)`
	query, args = appendFilterClause(query, args, f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	out := make(map[int64]types.Product, len(internalIDs))
	for rows.Next() {
		p, internalID, err := scanProductWithID(rows)
		if err != nil {
			return nil, mapSQLiteError(err)
		}
		out[internalID] = p
	}
	return out, mapSQLiteError(rows.Err())
}

// count reports how many rows satisfy f.
func (s *productStore) count(ctx context.Context, f Filters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM products WHERE 1=1`
	var args []any
	query, args = appendFilterClause(query, args, f)

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mapSQLiteError(err)
	}
	return n, nil
}

// idsMatching returns the internal ids of every row matching f, used
// by fuzzy_search to predicate-filter lexical hits.
func (s *productStore) idsMatching(ctx context.Context, f Filters) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, internal_id FROM products WHERE 1=1`
	var args []any
	query, args = appendFilterClause(query, args, f)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapSQLiteError(err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var internalID int64
		if err := rows.Scan(&id, &internalID); err != nil {
			return nil, mapSQLiteError(err)
		}
		out[id] = internalID
	}
	return out, mapSQLiteError(rows.Err())
}

func (s *productStore) delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	return mapSQLiteError(err)
}

func (s *productStore) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

const selectColumns = `SELECT id, internal_id, store_scope, title, description, category, brand,
	color, material, size, season, style, tags, price_cents, currency,
	in_stock, status, image_url, updated_at FROM products`

type scannable interface {
	Scan(dest ...any) error
}

func scanProduct(row scannable) (types.Product, error) {
	p, _, err := scanProductWithID(row)
	return p, err
}

func scanProductWithID(row scannable) (types.Product, int64, error) {
	var (
		p          types.Product
		internalID int64
		tags       string
		inStock    int
		updatedAt  string
	)
	err := row.Scan(
		&p.ID, &internalID, &p.StoreScope, &p.Title, &p.Description, &p.Category,
		&p.Brand, &p.Color, &p.Material, &p.Size, &p.Season, &p.Style, &tags,
		&p.PriceCents, &p.Currency, &inStock, &p.Status, &p.ImageURL, &updatedAt,
	)
	if err != nil {
		return types.Product{}, 0, err
	}
	if tags != "" {
		p.Tags = strings.Split(tags, ",")
	}
	p.InStock = inStock != 0
	if parsed, perr := time.Parse(time.RFC3339Nano, updatedAt); perr == nil {
		p.UpdatedAt = parsed
	}
	return p, internalID, nil
}

// appendFilterClause pushes Filters down into a SQL WHERE clause,
// matching the predicate set the gateway contract defines: store-scope
// equality, closed-interval price range with nullable ends, status
// equality, and stock-status equality.
func appendFilterClause(query string, args []any, f Filters) (string, []any) {
	var b strings.Builder
	b.WriteString(query)
	if f.StoreScope != "" {
		b.WriteString(" AND store_scope = ?")
		args = append(args, f.StoreScope)
	}
	if f.PriceMinCents != nil {
		b.WriteString(" AND price_cents >= ?")
		args = append(args, *f.PriceMinCents)
	}
	if f.PriceMaxCents != nil {
		b.WriteString(" AND price_cents <= ?")
		args = append(args, *f.PriceMaxCents)
	}
	if f.Status != "" {
		b.WriteString(" AND status = ?")
		args = append(args, f.Status)
	}
	if f.InStock != nil {
		b.WriteString(" AND in_stock = ?")
		args = append(args, boolToInt(*f.InStock))
	}
	return b.String(), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapSQLiteError classifies a raw database error into the StoreUnavailable
// Kind the gateway's contract promises, rather than letting a driver error
// leak to callers unlabeled.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return searcherrors.QueryTimeout(searcherrors.ErrCodeQueryTimeout, "product store query timed out", err)
	}
	return searcherrors.StoreUnavailable(searcherrors.ErrCodeVectorStoreUnavailable, "product store operation failed", err)
}
