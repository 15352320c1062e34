// Package lexical centralizes the text-scoring primitives shared by
// the Chunker, Hybrid Retrieval, Tabula Rasa, and the Adaptive
// Compressor, following the teacher's pkg/vector convention of
// centralizing shared (de)serialize helpers rather than duplicating
// them per caller.
package lexical

import (
	"math"
	"regexp"
	"strings"
)

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}]+`)

// stopWords is the fixed stop-word set used by every caller in this
// module for tokenization and keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {}, "being": {},
	"have": {}, "has": {}, "had": {}, "do": {}, "does": {}, "did": {},
	"will": {}, "would": {}, "could": {}, "should": {}, "may": {}, "might": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "it": {}, "its": {},
	"i": {}, "you": {}, "he": {}, "she": {}, "we": {}, "they": {}, "them": {},
	"my": {}, "your": {}, "his": {}, "her": {}, "our": {}, "their": {},
	"what": {}, "which": {}, "who": {}, "whom": {}, "when": {}, "where": {},
	"why": {}, "how": {}, "all": {}, "any": {}, "both": {}, "each": {},
	"few": {}, "more": {}, "most": {}, "other": {}, "some": {}, "such": {},
	"no": {}, "nor": {}, "not": {}, "only": {}, "own": {}, "same": {}, "so": {},
	"than": {}, "too": {}, "very": {}, "can": {}, "just": {}, "about": {},
	"also": {}, "as": {}, "from": {}, "into": {}, "then": {}, "there": {},
}

// Extract lowercases text, replaces non-word runs with spaces, splits
// on whitespace, drops tokens of length <= 2 and stop words, and dedupes
// while preserving first-seen order. This is the one extraction routine
// shared by the Chunker (lexicalFilters), Hybrid Retrieval (query terms),
// and Tabula Rasa (topic extraction).
func Extract(text string) []string {
	lower := strings.ToLower(text)
	cleaned := nonWord.ReplaceAllString(lower, " ")
	fields := strings.Fields(cleaned)

	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))

	for _, tok := range fields {
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}

	return out
}

// Take returns the first n elements of tokens, or all of them if
// tokens is shorter than n.
func Take(tokens []string, n int) []string {
	if len(tokens) <= n {
		return tokens
	}
	return tokens[:n]
}

// LexicalScore scores content against query terms as
// |T ∩ words(c)| / |T|, with substring fallback for partial matches.
// Returns the score and the matched terms.
func LexicalScore(terms []string, content string) (score float64, matched []string) {
	if len(terms) == 0 {
		return 0, nil
	}

	words := Extract(content)
	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[w] = struct{}{}
	}

	lowerContent := strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if _, ok := wordSet[t]; ok {
			hits++
			matched = append(matched, t)
			continue
		}
		if strings.Contains(lowerContent, t) {
			hits++
			matched = append(matched, t)
		}
	}

	return float64(hits) / float64(len(terms)), matched
}

// Jaccard computes |A∩B| / |A∪B| over two token sets.
func Jaccard(a, b []string) float64 {
	setA := toSet(a)
	setB := toSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	union := make(map[string]struct{}, len(setA)+len(setB))
	for k := range setA {
		union[k] = struct{}{}
		if _, ok := setB[k]; ok {
			intersection++
		}
	}
	for k := range setB {
		union[k] = struct{}{}
	}

	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func toSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

// CosineSimilarity computes the cosine similarity between two
// equal-length vectors. Returns 0 if either vector has zero magnitude.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, magA, magB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// MeanVector returns the element-wise mean of a list of equal-dimension
// vectors. Returns nil if vectors is empty.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}

	dim := len(vectors[0])
	mean := make([]float64, dim)
	for _, v := range vectors {
		for i := 0; i < dim && i < len(v); i++ {
			mean[i] += float64(v[i])
		}
	}

	out := make([]float32, dim)
	for i, sum := range mean {
		out[i] = float32(sum / float64(len(vectors)))
	}
	return out
}

// WordDistance computes 1 - |A∩B|/|A∪B| over content words (len > 3) of
// a against b, the fallback semantic-distance estimate used by the
// Adaptive Compressor when no embeddings are available.
func WordDistance(a, b string) float64 {
	wordsA := longWords(a)
	wordsB := longWords(b)
	return 1 - Jaccard(wordsA, wordsB)
}

func longWords(text string) []string {
	all := Extract(text)
	out := make([]string, 0, len(all))
	for _, w := range all {
		if len(w) > 3 {
			out = append(out, w)
		}
	}
	return out
}

// TokenEstimate approximates token count as ceil(len(text)/4), the
// estimator used throughout the spec for budget accounting.
func TokenEstimate(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// Truncate truncates s to at most maxLen runes for preview/summary
// text. Unlike pkg/utils.Truncate it appends no ellipsis.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
