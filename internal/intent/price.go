package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// PriceRange is the outcome of extracting a price intent from a raw
// query: a nullable min/max in major currency units and a confidence
// in how certain the pattern match was, plus the method that produced
// it for observability.
type PriceRange struct {
	MinPrice   *float64
	MaxPrice   *float64
	Confidence float64
	Method     string // "range", "below", "above", "exact", or "" when nothing matched
}

// Combined regex patterns mirroring the range/below/above/exact/cleanup
// shape of the price-phrase detector this was generalized from, reduced
// to the English-language subset this storefront's queries use.
var (
	rangePattern = regexp.MustCompile(`(?i)\bbetween\s+(\d+(?:[.,]\d+)?)\s+and\s+(\d+(?:[.,]\d+)?)|(\d+(?:[.,]\d+)?)\s*[-–—]\s*(\d+(?:[.,]\d+)?)\s*(?:dollars?|usd|\$)?|(?:\$|usd)\s*(\d+(?:[.,]\d+)?)\s*[-–—]\s*(\d+(?:[.,]\d+)?)`)
	belowPattern = regexp.MustCompile(`(?i)\b(?:under|below|less than|max|up to)\s+(?:\$|usd\s+)?(\d+(?:[.,]\d+)?)|(?:\$|usd)\s*(\d+(?:[.,]\d+)?)\s*(?:or less)`)
	abovePattern = regexp.MustCompile(`(?i)\b(?:over|above|more than|min|starting at)\s+(?:\$|usd\s+)?(\d+(?:[.,]\d+)?)|(?:\$|usd)\s*(\d+(?:[.,]\d+)?)\s*(?:or more)`)
	exactPattern = regexp.MustCompile(`(?i)\b(\d+(?:[.,]\d+)?)\s*(?:dollars?|usd|\$)|(?:\$|usd)\s*(\d+(?:[.,]\d+)?)|(?:about|around|roughly)\s+(?:\$|usd\s+)?(\d+(?:[.,]\d+)?)`)

	cleanupPattern = regexp.MustCompile(`(?i)\bbetween\s+\d+(?:[.,]\d+)?\s+and\s+\d+(?:[.,]\d+)?\s*(?:dollars?|usd|\$)?|` +
		`\d+(?:[.,]\d+)?\s*[-–—]\s*\d+(?:[.,]\d+)?\s*(?:dollars?|usd|\$)?|` +
		`(?:\$|usd)\s*\d+(?:[.,]\d+)?\s*[-–—]\s*\d+(?:[.,]\d+)?|` +
		`(?:under|below|less than|max|up to|over|above|more than|min|starting at)\s+(?:\$|usd\s+)?\d+(?:[.,]\d+)?|` +
		`(?:\$|usd)\s*\d+(?:[.,]\d+)?\s*(?:or less|or more)|` +
		`\d+(?:[.,]\d+)?\s*(?:dollars?|usd|\$)|` +
		`(?:\$|usd)\s*\d+(?:[.,]\d+)?|` +
		`(?:about|around|roughly)\s+(?:\$|usd\s+)?\d+(?:[.,]\d+)?`)
)

func parsePrice(s string) float64 {
	v, _ := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	return v
}

func firstNonEmpty(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return g
		}
	}
	return ""
}

// ExtractPriceRange looks for an explicit price phrase in query,
// trying range, then below, then above, then a single exact figure
// (interpreted as a ±10% band). It returns a zero-value PriceRange
// with Method == "" when no pattern matches.
func ExtractPriceRange(query string) PriceRange {
	q := strings.ToLower(strings.TrimSpace(query))

	if m := rangePattern.FindStringSubmatch(q); m != nil {
		min := parsePrice(firstNonEmpty([]string{m[1], m[3], m[5]}))
		max := parsePrice(firstNonEmpty([]string{m[2], m[4], m[6]}))
		if min > max {
			min, max = max, min
		}
		return PriceRange{MinPrice: &min, MaxPrice: &max, Confidence: 0.95, Method: "range"}
	}

	if m := belowPattern.FindStringSubmatch(q); m != nil {
		max := parsePrice(firstNonEmpty([]string{m[1], m[2]}))
		return PriceRange{MaxPrice: &max, Confidence: 0.9, Method: "below"}
	}

	if m := abovePattern.FindStringSubmatch(q); m != nil {
		min := parsePrice(firstNonEmpty([]string{m[1], m[2]}))
		return PriceRange{MinPrice: &min, Confidence: 0.9, Method: "above"}
	}

	if m := exactPattern.FindStringSubmatch(q); m != nil {
		price := parsePrice(firstNonEmpty([]string{m[1], m[2], m[3]}))
		min := price * 0.9
		max := price * 1.1
		return PriceRange{MinPrice: &min, MaxPrice: &max, Confidence: 0.85, Method: "exact"}
	}

	return PriceRange{}
}

// CleanQueryFromPriceIntent removes the matched price phrase so the
// residual text is what gets embedded, rather than polluting the
// semantic query with numeric/currency tokens the price filter already
// captured.
func CleanQueryFromPriceIntent(query string) string {
	if query == "" {
		return query
	}
	cleaned := cleanupPattern.ReplaceAllString(query, "")
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned == "" {
		return query
	}
	return cleaned
}

// StorePriceStatistics is the fallback band used when a query carries
// no explicit price phrase but C7 still needs a price reference point,
// computed from the catalog's own price distribution.
type StorePriceStatistics struct {
	Min, Max, Median, Budget, Premium float64
}

// PriceStatisticsFromSortedCents derives budget/premium quartile bands
// from a store's price distribution (cents, ascending). Budget is 1.5x
// the first quartile; premium is 1.2x the third quartile, mirroring
// the fallback heuristic this was generalized from.
func PriceStatisticsFromSortedCents(sortedCents []int64) StorePriceStatistics {
	if len(sortedCents) == 0 {
		return StorePriceStatistics{Min: 10, Max: 500, Median: 50, Budget: 50, Premium: 150}
	}

	toDollars := func(cents int64) float64 { return float64(cents) / 100 }
	q1 := quantile(sortedCents, 0.25)
	q3 := quantile(sortedCents, 0.75)

	return StorePriceStatistics{
		Min:     toDollars(sortedCents[0]),
		Max:     toDollars(sortedCents[len(sortedCents)-1]),
		Median:  toDollars(quantile(sortedCents, 0.5)),
		Budget:  toDollars(q1) * 1.5,
		Premium: toDollars(q3) * 1.2,
	}
}

func quantile(sorted []int64, p float64) int64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
