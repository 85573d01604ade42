// Package intent implements the rule-based query intent classifier
// (C8): a pure, deterministic function from normalized query text to
// a primary intent, secondary intents, per-intent confidence, a
// composite complexity score, and a difficulty label. It performs no
// I/O and needs no cache.
package intent

import (
	"regexp"
	"strings"
	"unicode"
)

// Intent is one of the fixed lexicon-backed categories a query can
// express. A query can trigger more than one.
type Intent string

const (
	IntentPrice    Intent = "price"
	IntentColor    Intent = "color"
	IntentMaterial Intent = "material"
	IntentCategory Intent = "category"
	IntentBrand    Intent = "brand"
	IntentSize     Intent = "size"
	IntentSeason   Intent = "season"
	IntentStyle    Intent = "style"
)

// Difficulty buckets the composite complexity score for display.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Classification is the classifier's full output for one query.
type Classification struct {
	PrimaryIntent    Intent
	SecondaryIntents []Intent
	Confidence       map[Intent]float64
	ComplexityScore  float64
	Difficulty       Difficulty
}

// defaultLexicon maps each intent to the keywords whose presence
// contributes to its confidence. Defaults are English-language
// storefront terms; a deployment with a different catalog vocabulary
// can supply its own lexicon in their place via NewWithLexicon.
var defaultLexicon = map[Intent][]string{
	IntentPrice:    {"cheap", "affordable", "expensive", "budget", "premium", "price", "cost", "under", "over", "between", "deal", "sale", "discount"},
	IntentColor:    {"red", "blue", "green", "black", "white", "yellow", "pink", "purple", "orange", "brown", "grey", "gray", "navy", "beige"},
	IntentMaterial: {"cotton", "wool", "leather", "silk", "linen", "polyester", "denim", "suede", "cashmere", "nylon"},
	IntentCategory: {"shirt", "shoes", "dress", "jacket", "pants", "jeans", "sweater", "hat", "bag", "accessory", "coat", "skirt"},
	IntentBrand:    {"brand", "designer", "label"},
	IntentSize:     {"small", "medium", "large", "xl", "xxl", "size", "fit", "tall", "petite"},
	IntentSeason:   {"summer", "winter", "spring", "fall", "autumn", "seasonal"},
	IntentStyle:    {"casual", "formal", "vintage", "modern", "classic", "trendy", "minimalist", "elegant"},
}

var (
	numericPattern  = regexp.MustCompile(`\d`)
	currencyPattern = regexp.MustCompile(`[$€£¥]`)
	acronymPattern  = regexp.MustCompile(`\b[A-Z]{2,}\b`)
)

// Classifier is a pure lexicon-driven classifier. The zero value is
// not usable; construct with New or NewWithLexicon.
type Classifier struct {
	lexicon map[Intent][]string
}

// New builds a classifier using the default English lexicon.
func New() *Classifier {
	return &Classifier{lexicon: defaultLexicon}
}

// NewWithLexicon builds a classifier using a caller-supplied lexicon,
// for storefronts whose vocabulary differs from the defaults.
func NewWithLexicon(lexicon map[Intent][]string) *Classifier {
	return &Classifier{lexicon: lexicon}
}

// Classify is pure and deterministic: the same query always produces
// the same Classification, so callers need not cache the result.
func (c *Classifier) Classify(query string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(query))
	tokens := strings.Fields(normalized)
	tokenSet := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		tokenSet[strings.Trim(tok, ".,!?;:")] = struct{}{}
	}

	confidence := make(map[Intent]float64)
	for intentName, keywords := range c.lexicon {
		matches := 0
		for _, kw := range keywords {
			if _, ok := tokenSet[kw]; ok {
				matches++
			}
		}
		if matches > 0 {
			confidence[intentName] = scoreConfidence(matches, len(keywords))
		}
	}

	primary, secondary := rankIntents(confidence)
	complexity := complexityScore(query, tokens, len(confidence))

	return Classification{
		PrimaryIntent:    primary,
		SecondaryIntents: secondary,
		Confidence:       confidence,
		ComplexityScore:  complexity,
		Difficulty:       difficultyFor(complexity),
	}
}

// scoreConfidence grows with the fraction of a lexicon's keywords that
// matched, capped so a single keyword hit never claims full certainty.
func scoreConfidence(matches, lexiconSize int) float64 {
	base := 0.5 + 0.5*float64(matches)/float64(lexiconSize)
	if base > 1.0 {
		return 1.0
	}
	return base
}

// rankIntents splits triggered intents into the single highest-confidence
// primary and the remainder as secondary, ordered by descending
// confidence with ties broken alphabetically for determinism.
func rankIntents(confidence map[Intent]float64) (Intent, []Intent) {
	if len(confidence) == 0 {
		return "", nil
	}

	ranked := make([]Intent, 0, len(confidence))
	for in := range confidence {
		ranked = append(ranked, in)
	}
	sortIntents(ranked, confidence)

	return ranked[0], ranked[1:]
}

func sortIntents(intents []Intent, confidence map[Intent]float64) {
	for i := 1; i < len(intents); i++ {
		for j := i; j > 0; j-- {
			a, b := intents[j-1], intents[j]
			if confidence[a] < confidence[b] || (confidence[a] == confidence[b] && a > b) {
				intents[j-1], intents[j] = intents[j], intents[j-1]
			} else {
				break
			}
		}
	}
}

// complexityScore combines token count, the number of triggered
// intents, and the presence of numeric tokens, currency symbols, or
// acronyms into a single [0,1] score.
func complexityScore(rawQuery string, tokens []string, intentCount int) float64 {
	score := 0.0

	switch {
	case len(tokens) <= 2:
		score += 0.1
	case len(tokens) <= 5:
		score += 0.3
	default:
		score += 0.5
	}

	switch {
	case intentCount == 0:
		// no contribution
	case intentCount == 1:
		score += 0.1
	default:
		score += 0.2 + 0.1*float64(intentCount-2)
	}

	if numericPattern.MatchString(rawQuery) {
		score += 0.1
	}
	if currencyPattern.MatchString(rawQuery) {
		score += 0.1
	}
	if acronymPattern.MatchString(rawQuery) {
		score += 0.05
	}
	if hasPunctuation(rawQuery) {
		score += 0.05
	}

	if score > 1.0 {
		return 1.0
	}
	return score
}

func hasPunctuation(s string) bool {
	for _, r := range s {
		if unicode.IsPunct(r) {
			return true
		}
	}
	return false
}

func difficultyFor(score float64) Difficulty {
	switch {
	case score < 0.35:
		return DifficultyEasy
	case score < 0.65:
		return DifficultyMedium
	default:
		return DifficultyHard
	}
}
