package embedding

import (
	"math"
	"strings"
	"unicode"
)

// normalizeWhitespace collapses runs of whitespace to a single space and
// trims the ends.
func normalizeWhitespace(s string) string {
	fields := strings.FieldsFunc(s, unicode.IsSpace)
	return strings.Join(fields, " ")
}

// toLowerASCIIAware lowercases s using Unicode case folding rules so
// non-ASCII product titles fold consistently too.
func toLowerASCIIAware(s string) string {
	return strings.ToLower(s)
}

// normalizeVector returns a copy of v scaled to unit length (v itself is
// left unchanged; a zero vector is returned as is) so cosine distance
// in the vector store behaves consistently regardless of the magnitude
// a provider happens to return.
func normalizeVector(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / norm
	}
	return out
}
