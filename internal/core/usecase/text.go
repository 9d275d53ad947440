package usecase

import (
	"math"
	"strings"
	"unicode"
)

var baseStopwords = newWordSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "been",
	"being", "have", "has", "had", "do", "does", "did", "will",
	"would", "could", "should", "may", "might", "shall", "can",
	"of", "in", "to", "for", "with", "on", "at", "by", "from",
	"as", "into", "about", "that", "this", "it", "and", "or",
	"but", "not", "no", "if", "then", "so",
)

// queryStopwords also drops question and instruction words.
var queryStopwords = baseStopwords.with(
	"what", "how", "which", "who", "where", "when", "why", "my", "your",
	"me", "explain", "describe", "tell", "give", "please",
)

var conceptStopwords = queryStopwords.with(
	"between", "related", "its", "their", "these", "those",
)

var failureStopwords = newWordSet(
	"the", "a", "an", "is", "are", "was", "were", "be", "of", "in",
	"to", "for", "with", "on", "at", "by", "from", "and", "or", "it",
	"this", "that", "what", "how", "which", "who", "explain", "describe",
	"tell", "please", "me", "my", "your", "but", "not", "no",
)

type wordSet map[string]struct{}

func newWordSet(words ...string) wordSet {
	out := make(wordSet, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func (s wordSet) with(words ...string) wordSet {
	out := make(wordSet, len(s)+len(words))
	for w := range s {
		out[w] = struct{}{}
	}
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}

func (s wordSet) has(word string) bool {
	_, ok := s[word]
	return ok
}

// splitWordsLower splits on anything that is not a letter, digit or underscore.
func splitWordsLower(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func toTokenSet(s string) map[string]struct{} {
	tokens := splitWordsLower(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// keywordSet is the token set of s minus stop.
func keywordSet(s string, stop wordSet) map[string]struct{} {
	out := toTokenSet(s)
	for token := range out {
		if stop.has(token) {
			delete(out, token)
		}
	}
	return out
}

// tokenOverlap is |query ∩ chunk| / |query|.
func tokenOverlap(query, chunk map[string]struct{}) float64 {
	if len(query) == 0 || len(chunk) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := chunk[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// joinedLowerText concatenates chunk texts, lower-cased, separated by spaces.
func joinedLowerText(texts []string) string {
	return strings.ToLower(strings.Join(texts, " "))
}

// QueryStopwords returns a copy of the stopword list applied to query text,
// for adapters that tokenize queries themselves.
func QueryStopwords() map[string]struct{} {
	return queryStopwords.with()
}
