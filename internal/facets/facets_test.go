package facets

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/types"
)

func testDims() []config.FacetDimension {
	return []config.FacetDimension{
		{Name: "color", Values: []string{"red", "blue"}},
		{Name: "material", Values: []string{"cotton", "wool"}},
	}
}

func cents(v int64) *int64 { return &v }

func testBuckets() []config.PriceBucket {
	return []config.PriceBucket{
		{Label: "$0-50", MinCents: 0, MaxCents: cents(5000)},
		{Label: "$50+", MinCents: 5000, MaxCents: nil},
	}
}

// Given: products with structured color/material fields, When: built,
// Then: each dimension counts its matching field values, not tags.
func TestBuild_CountsStructuredDimensionValues(t *testing.T) {
	products := []types.Product{
		{ID: "a", Color: "red", Material: "cotton", PriceCents: 1000},
		{ID: "b", Color: "red", Material: "wool", PriceCents: 2000},
		{ID: "c", Color: "blue", PriceCents: 3000},
	}

	result := Build(products, testDims(), testBuckets())

	colorCounts := map[string]int{}
	for _, v := range result.Dimensions["color"] {
		colorCounts[v.Value] = v.Count
	}
	assert.Equal(t, 2, colorCounts["red"])
	assert.Equal(t, 1, colorCounts["blue"])
}

// Given: a structured field whose value is outside the configured
// vocabulary, When: built, Then: it is excluded from that dimension
// rather than silently admitted.
func TestBuild_StructuredFieldOutsideVocabIsExcluded(t *testing.T) {
	products := []types.Product{
		{ID: "a", Color: "chartreuse", PriceCents: 1000},
	}

	result := Build(products, testDims(), testBuckets())
	assert.Empty(t, result.Dimensions["color"])
}

// Given: a dimension with no configured vocabulary (an open-ended
// field such as brand or category), When: built, Then: every observed
// value is counted, not just a curated subset.
func TestBuild_OpenVocabStructuredDimensionCountsEveryValue(t *testing.T) {
	dims := []config.FacetDimension{{Name: "brand", Values: []string{}}}
	products := []types.Product{
		{ID: "a", Brand: "nike", PriceCents: 1000},
		{ID: "b", Brand: "new-brand", PriceCents: 2000},
	}

	result := Build(products, dims, testBuckets())

	brandCounts := map[string]int{}
	for _, v := range result.Dimensions["brand"] {
		brandCounts[v.Value] = v.Count
	}
	assert.Equal(t, 1, brandCounts["nike"])
	assert.Equal(t, 1, brandCounts["new-brand"])
}

// Given: a custom, non-structured dimension name configured by the
// storefront, When: built, Then: it still counts from matching tags.
func TestBuild_CustomDimensionStillMatchesTags(t *testing.T) {
	dims := []config.FacetDimension{{Name: "fit", Values: []string{"slim", "relaxed"}}}
	products := []types.Product{
		{ID: "a", Tags: []string{"slim"}, PriceCents: 1000},
		{ID: "b", Tags: []string{"relaxed"}, PriceCents: 2000},
	}

	result := Build(products, dims, testBuckets())

	fitCounts := map[string]int{}
	for _, v := range result.Dimensions["fit"] {
		fitCounts[v.Value] = v.Count
	}
	assert.Equal(t, 1, fitCounts["slim"])
	assert.Equal(t, 1, fitCounts["relaxed"])
}

// Given: a tag not in any configured dimension's vocabulary, When:
// built, Then: it appears under general tags instead.
func TestBuild_UnrecognizedTagGoesToGeneralTags(t *testing.T) {
	products := []types.Product{
		{ID: "a", Tags: []string{"limited-edition"}, PriceCents: 1000},
	}

	result := Build(products, testDims(), testBuckets())
	assert.Empty(t, result.Dimensions["color"])

	found := false
	for _, v := range result.GeneralTags {
		if v.Value == "limited-edition" {
			found = true
		}
	}
	assert.True(t, found)
}

// Given: products at different price points, When: built, Then: each
// falls into exactly one price bucket.
func TestBuild_BucketsPriceRanges(t *testing.T) {
	products := []types.Product{
		{ID: "a", PriceCents: 2000},
		{ID: "b", PriceCents: 8000},
	}

	result := Build(products, testDims(), testBuckets())

	counts := map[string]int{}
	for _, v := range result.PriceRanges {
		counts[v.Value] = v.Count
	}
	assert.Equal(t, 1, counts["$0-50"])
	assert.Equal(t, 1, counts["$50+"])
}

// Given: price ranges, When: built, Then: they appear in ascending
// price order regardless of count.
func TestBuild_PriceRangesPreserveAscendingOrder(t *testing.T) {
	products := []types.Product{
		{ID: "a", PriceCents: 8000},
		{ID: "b", PriceCents: 8100},
		{ID: "c", PriceCents: 1000},
	}

	result := Build(products, testDims(), testBuckets())
	require := result.PriceRanges
	if len(require) == 2 {
		assert.Equal(t, "$0-50", require[0].Value)
		assert.Equal(t, "$50+", require[1].Value)
	}
}

// Given: an empty result set, When: built, Then: every bucket is empty
// rather than nil-panicking.
func TestBuild_EmptyResultSet(t *testing.T) {
	result := Build(nil, testDims(), testBuckets())
	assert.Empty(t, result.Dimensions["color"])
	assert.Empty(t, result.PriceRanges)
	assert.Empty(t, result.GeneralTags)
}
