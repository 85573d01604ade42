package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/shopsearch/internal/types"
)

func newTestProductStore(t *testing.T) *productStore {
	t.Helper()
	s, err := newProductStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.close() })
	return s
}

// Given: a fresh product store, When: a product is upserted, Then: it
// receives internal id 1, and a second distinct product receives 2.
func TestProductStore_Upsert_AssignsSequentialInternalIDs(t *testing.T) {
	s := newTestProductStore(t)

	id1, err := s.upsert(context.Background(), types.Product{ID: "a", StoreScope: "s", Title: "a", UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id1)

	id2, err := s.upsert(context.Background(), types.Product{ID: "b", StoreScope: "s", Title: "b", UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), id2)
}

// Given: an existing product, When: it is upserted again, Then: its
// internal id does not change.
func TestProductStore_Upsert_PreservesInternalIDOnUpdate(t *testing.T) {
	s := newTestProductStore(t)

	first, err := s.upsert(context.Background(), types.Product{ID: "a", StoreScope: "s", Title: "a", PriceCents: 100, UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)

	second, err := s.upsert(context.Background(), types.Product{ID: "a", StoreScope: "s", Title: "a updated", PriceCents: 200, UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	row, ok, err := s.get(context.Background(), first)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a updated", row.Title)
	assert.Equal(t, int64(200), row.PriceCents)
}

// Given: products across stores and prices, When: filtered, Then:
// appendFilterClause pushes every predicate into the WHERE clause.
func TestProductStore_Count_AppliesAllPredicates(t *testing.T) {
	s := newTestProductStore(t)
	ctx := context.Background()

	inStock := true
	outOfStock := false
	_, err := s.upsert(ctx, types.Product{ID: "a", StoreScope: "s1", Title: "a", PriceCents: 1000, Status: "active", InStock: inStock, UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	_, err = s.upsert(ctx, types.Product{ID: "b", StoreScope: "s1", Title: "b", PriceCents: 5000, Status: "archived", InStock: outOfStock, UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)
	_, err = s.upsert(ctx, types.Product{ID: "c", StoreScope: "s2", Title: "c", PriceCents: 1000, Status: "active", InStock: inStock, UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)

	n, err := s.count(ctx, Filters{StoreScope: "s1", Status: "active", InStock: &inStock})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.count(ctx, Filters{PriceMinCents: ptr(900), PriceMaxCents: ptr(1100)})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// Given: a product's tags, When: round-tripped through upsert and get,
// Then: tags survive the comma-joined encoding unchanged.
func TestProductStore_RoundTripsTags(t *testing.T) {
	s := newTestProductStore(t)
	ctx := context.Background()

	id, err := s.upsert(ctx, types.Product{
		ID: "a", StoreScope: "s", Title: "a", Tags: []string{"red", "sale", "summer"},
		UpdatedAt: time.Unix(0, 0),
	})
	require.NoError(t, err)

	row, ok, err := s.get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"red", "sale", "summer"}, row.Tags)
}

// Given: a deleted product, When: counted, Then: it no longer appears.
func TestProductStore_Delete_RemovesRow(t *testing.T) {
	s := newTestProductStore(t)
	ctx := context.Background()

	_, err := s.upsert(ctx, types.Product{ID: "a", StoreScope: "s", Title: "a", UpdatedAt: time.Unix(0, 0)})
	require.NoError(t, err)

	require.NoError(t, s.delete(ctx, "a"))

	n, err := s.count(ctx, Filters{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// Given: a Filters with min greater than max, When: validated, Then:
// ErrBadFilter is returned.
func TestFilters_Validate_RejectsInvertedPriceRange(t *testing.T) {
	f := Filters{PriceMinCents: ptr(500), PriceMaxCents: ptr(100)}
	err := f.Validate()
	require.Error(t, err)
	assert.IsType(t, ErrBadFilter{}, err)
}

// Given: a Filters with a negative bound, When: validated, Then:
// ErrBadFilter is returned.
func TestFilters_Validate_RejectsNegativeBound(t *testing.T) {
	f := Filters{PriceMinCents: ptr(-1)}
	err := f.Validate()
	require.Error(t, err)
}
