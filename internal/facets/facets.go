// Package facets derives per-dimension value counts from a result set
// (C11): color, material, size, brand, category, season, style, a
// configured price bucketization, and a "top general tags" bucket for
// tokens no configured dimension claims. The seven structured
// dimensions are read directly from their matching Product field;
// any other configured dimension name is matched against the
// product's free-form Tags instead. The builder is a pure function of
// its inputs and is safe to cache by result-set identity.
package facets

import (
	"sort"
	"strings"

	"github.com/aman-cerp/shopsearch/internal/config"
	"github.com/aman-cerp/shopsearch/internal/types"
)

// Value is one bucketed value within a dimension, with its count
// among the result set.
type Value struct {
	Value string
	Label string
	Count int
}

// Result is the full facet breakdown for one result set: one Value
// list per configured dimension, a price-bucket breakdown, and a
// residual "general tags" bucket.
type Result struct {
	Dimensions  map[string][]Value
	PriceRanges []Value
	GeneralTags []Value
}

// topK bounds how many values each dimension surfaces, mirroring the
// per-category caps (colors top 10, materials top 8, sizes top 12,
// ...) the bucketization this was generalized from applied per facet
// type; a single cap here keeps the builder config-driven instead of
// hardcoding one constant per dimension name.
const topK = 10

// Build derives a Result from products and the configured dimension
// vocabulary and price bucketization. It performs no I/O.
func Build(products []types.Product, dims []config.FacetDimension, buckets []config.PriceBucket) Result {
	dimensionValues := make(map[string]map[string]int, len(dims))
	dimensionVocab := make(map[string]map[string]struct{}, len(dims))
	for _, d := range dims {
		dimensionValues[d.Name] = make(map[string]int)
		vocab := make(map[string]struct{}, len(d.Values))
		for _, v := range d.Values {
			vocab[strings.ToLower(v)] = struct{}{}
		}
		dimensionVocab[d.Name] = vocab
	}

	generalTagCounts := make(map[string]int)
	priceBucketCounts := make(map[string]int)

	for _, p := range products {
		for _, d := range dims {
			if !isStructuredField(d.Name) {
				continue
			}
			val := strings.ToLower(strings.TrimSpace(structuredFieldValue(p, d.Name)))
			if val == "" {
				continue
			}
			if vocab := dimensionVocab[d.Name]; len(vocab) > 0 {
				if _, ok := vocab[val]; !ok {
					continue
				}
			}
			dimensionValues[d.Name][val]++
		}

		claimed := make(map[string]bool)
		for _, tag := range p.Tags {
			lower := strings.ToLower(tag)
			matchedAny := false
			for dimName, vocab := range dimensionVocab {
				if isStructuredField(dimName) {
					continue
				}
				if _, ok := vocab[lower]; ok {
					dimensionValues[dimName][lower]++
					matchedAny = true
				}
			}
			if !matchedAny && !claimed[lower] {
				generalTagCounts[lower]++
				claimed[lower] = true
			}
		}

		if bucket := bucketFor(p.PriceCents, buckets); bucket != "" {
			priceBucketCounts[bucket]++
		}
	}

	result := Result{Dimensions: make(map[string][]Value, len(dims))}
	for _, d := range dims {
		result.Dimensions[d.Name] = topValues(dimensionValues[d.Name], topK, titleCase)
	}
	result.GeneralTags = topValues(generalTagCounts, topK, titleCase)
	result.PriceRanges = priceRangeValues(priceBucketCounts, buckets)

	return result
}

// isStructuredField reports whether name names one of the Product
// struct fields dedicated to a facetable attribute, as opposed to a
// custom dimension that can only be derived from free-form Tags.
func isStructuredField(name string) bool {
	switch name {
	case "category", "brand", "color", "material", "size", "season", "style":
		return true
	}
	return false
}

// structuredFieldValue returns p's value for the Product field name
// names, or "" if name does not name a structured field.
func structuredFieldValue(p types.Product, name string) string {
	switch name {
	case "category":
		return p.Category
	case "brand":
		return p.Brand
	case "color":
		return p.Color
	case "material":
		return p.Material
	case "size":
		return p.Size
	case "season":
		return p.Season
	case "style":
		return p.Style
	}
	return ""
}

func bucketFor(priceCents int64, buckets []config.PriceBucket) string {
	for _, b := range buckets {
		if priceCents < b.MinCents {
			continue
		}
		if b.MaxCents == nil || priceCents < *b.MaxCents {
			return b.Label
		}
	}
	return ""
}

// priceRangeValues preserves the configured bucket order (ascending
// by price) rather than sorting by count, since price ranges read
// naturally low-to-high regardless of which bucket is most populous.
func priceRangeValues(counts map[string]int, buckets []config.PriceBucket) []Value {
	out := make([]Value, 0, len(buckets))
	for _, b := range buckets {
		count := counts[b.Label]
		if count == 0 {
			continue
		}
		out = append(out, Value{Value: b.Label, Label: b.Label, Count: count})
	}
	return out
}

// topValues sorts by descending count (ties broken alphabetically for
// determinism) and returns at most k entries.
func topValues(counts map[string]int, k int, label func(string) string) []Value {
	values := make([]Value, 0, len(counts))
	for v, c := range counts {
		values = append(values, Value{Value: v, Label: label(v), Count: c})
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Value < values[j].Value
	})
	if len(values) > k {
		values = values[:k]
	}
	return values
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	words := strings.Fields(s)
	for i, w := range words {
		if len(w) == 0 {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
