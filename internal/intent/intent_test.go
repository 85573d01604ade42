package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Given: a query naming a color, When: classified, Then: color is the
// primary intent with no secondary intents.
func TestClassify_SingleIntent_HasNoSecondary(t *testing.T) {
	c := New()
	result := c.Classify("blue")

	assert.Equal(t, IntentColor, result.PrimaryIntent)
	assert.Empty(t, result.SecondaryIntents)
}

// Given: a query naming a color, a material and a category, When:
// classified, Then: all three intents appear, with the primary and the
// secondaries ordered by descending confidence.
func TestClassify_MultipleIntents_RankedByConfidence(t *testing.T) {
	c := New()
	result := c.Classify("red leather jacket")

	all := append([]Intent{result.PrimaryIntent}, result.SecondaryIntents...)
	assert.Contains(t, all, IntentColor)
	assert.Contains(t, all, IntentMaterial)
	assert.Contains(t, all, IntentCategory)
	assert.Equal(t, IntentMaterial, result.PrimaryIntent)
	assert.Equal(t, []Intent{IntentCategory, IntentColor}, result.SecondaryIntents)
}

// Given: a query with no recognized keywords, When: classified, Then:
// PrimaryIntent is empty.
func TestClassify_NoMatch_EmptyPrimaryIntent(t *testing.T) {
	c := New()
	result := c.Classify("xyzzy plugh")

	assert.Equal(t, Intent(""), result.PrimaryIntent)
}

// Given: a short query, When: classified, Then: difficulty is easy.
func TestClassify_ShortQuery_IsEasy(t *testing.T) {
	c := New()
	result := c.Classify("shoes")
	assert.Equal(t, DifficultyEasy, result.Difficulty)
}

// Given: a long query with numbers, currency, and multiple intents,
// When: classified, Then: difficulty escalates to hard.
func TestClassify_ComplexQuery_IsHard(t *testing.T) {
	c := New()
	result := c.Classify("I need a $50-$100 red cotton summer dress in size medium for a formal event!")
	assert.Equal(t, DifficultyHard, result.Difficulty)
}

// Given: the same query classified twice, When: compared, Then: the
// results are identical (pure and deterministic).
func TestClassify_IsDeterministic(t *testing.T) {
	c := New()
	a := c.Classify("blue cotton shirt")
	b := c.Classify("blue cotton shirt")
	assert.Equal(t, a, b)
}

// Given: a range price phrase, When: extracted, Then: both bounds are
// captured with high confidence.
func TestExtractPriceRange_Range(t *testing.T) {
	r := ExtractPriceRange("shoes between 50 and 100 dollars")
	assert.Equal(t, "range", r.Method)
	assert.Equal(t, 50.0, *r.MinPrice)
	assert.Equal(t, 100.0, *r.MaxPrice)
}

// Given: a "below" price phrase, When: extracted, Then: only the max
// bound is set.
func TestExtractPriceRange_Below(t *testing.T) {
	r := ExtractPriceRange("jacket under $80")
	assert.Equal(t, "below", r.Method)
	assert.Nil(t, r.MinPrice)
	assert.Equal(t, 80.0, *r.MaxPrice)
}

// Given: an "above" price phrase, When: extracted, Then: only the min
// bound is set.
func TestExtractPriceRange_Above(t *testing.T) {
	r := ExtractPriceRange("jacket over $80")
	assert.Equal(t, "above", r.Method)
	assert.Nil(t, r.MaxPrice)
	assert.Equal(t, 80.0, *r.MinPrice)
}

// Given: a query with no price phrase, When: extracted, Then: Method
// is empty and both bounds are nil.
func TestExtractPriceRange_NoMatch(t *testing.T) {
	r := ExtractPriceRange("blue cotton shirt")
	assert.Empty(t, r.Method)
	assert.Nil(t, r.MinPrice)
	assert.Nil(t, r.MaxPrice)
}

// Given: a query with an embedded price phrase, When: cleaned, Then:
// the price tokens are removed and the rest of the query survives.
func TestCleanQueryFromPriceIntent_RemovesPricePhrase(t *testing.T) {
	cleaned := CleanQueryFromPriceIntent("red shoes under $80 please")
	assert.NotContains(t, cleaned, "$80")
	assert.Contains(t, cleaned, "red shoes")
}

// Given: an empty catalog, When: price statistics are derived, Then:
// the documented fallback constants are returned.
func TestPriceStatisticsFromSortedCents_EmptyFallsBack(t *testing.T) {
	stats := PriceStatisticsFromSortedCents(nil)
	assert.Equal(t, 10.0, stats.Min)
	assert.Equal(t, 500.0, stats.Max)
}

// Given: a sorted price distribution, When: statistics are derived,
// Then: budget sits below premium.
func TestPriceStatisticsFromSortedCents_BudgetBelowPremium(t *testing.T) {
	prices := []int64{1000, 2000, 3000, 4000, 5000, 6000, 7000, 8000}
	stats := PriceStatisticsFromSortedCents(prices)
	assert.Less(t, stats.Budget, stats.Premium)
}
