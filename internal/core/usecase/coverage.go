package usecase

import (
	"strings"
	"unicode"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	defaultCoverageMin     = 0.70
	defaultCoverageGap     = 0.30
	defaultMaxGapQueries   = 3
	coverageChunkShare     = 0.3
	partialConceptCredit   = 0.5
	minConceptUnigramRunes = 3
)

type coverageOptions struct {
	MinCoverage   float64
	GapFloor      float64
	MaxGapQueries int
}

func (o coverageOptions) withDefaults() coverageOptions {
	if o.MinCoverage <= 0 {
		o.MinCoverage = defaultCoverageMin
	}
	if o.GapFloor <= 0 {
		o.GapFloor = defaultCoverageGap
	}
	if o.MaxGapQueries <= 0 {
		o.MaxGapQueries = defaultMaxGapQueries
	}
	return o
}

// extractConcepts returns bigrams (unless both words are stopwords) followed
// by meaningful unigrams not already part of a collected concept.
func extractConcepts(query string) []string {
	words := strings.Fields(cleanConceptText(query))

	concepts := make([]string, 0, len(words)*2)
	seen := make(map[string]struct{}, len(words)*2)
	for i := 0; i+1 < len(words); i++ {
		w1, w2 := words[i], words[i+1]
		if conceptStopwords.has(w1) && conceptStopwords.has(w2) {
			continue
		}
		bigram := w1 + " " + w2
		if _, ok := seen[bigram]; ok {
			continue
		}
		seen[bigram] = struct{}{}
		concepts = append(concepts, bigram)
	}

	for _, w := range words {
		if conceptStopwords.has(w) || len([]rune(w)) < minConceptUnigramRunes {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		covered := false
		for _, c := range concepts {
			if strings.Contains(c, w) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		seen[w] = struct{}{}
		concepts = append(concepts, w)
	}
	return concepts
}

// cleanConceptText lower-cases and drops punctuation other than hyphens.
func cleanConceptText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func measureConceptCoverage(concepts []string, chunks []domain.Chunk) []domain.ConceptCoverage {
	if len(concepts) == 0 || len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = strings.ToLower(chunk.Text)
	}
	evidence := strings.Join(texts, " ")
	denom := float64(len(chunks)) * coverageChunkShare
	if denom < 1 {
		denom = 1
	}

	out := make([]domain.ConceptCoverage, 0, len(concepts))
	for _, concept := range concepts {
		score := 0.0
		switch {
		case strings.Contains(evidence, concept):
			containing := 0
			for _, text := range texts {
				if strings.Contains(text, concept) {
					containing++
				}
			}
			score = round(clamp(float64(containing)/denom, 0, 1), 3)
		default:
			parts := strings.Fields(concept)
			if len(parts) > 1 {
				hits := 0
				for _, part := range parts {
					if strings.Contains(evidence, part) {
						hits++
					}
				}
				score = round(float64(hits)/float64(len(parts))*partialConceptCredit, 3)
			}
		}
		out = append(out, domain.ConceptCoverage{Concept: concept, Score: score})
	}
	return out
}

func buildGapQueries(gaps []string, query string, limit int) []string {
	if len(gaps) == 0 {
		return nil
	}
	if limit > 0 && len(gaps) > limit {
		gaps = gaps[:limit]
	}
	query = strings.TrimSpace(query)
	out := make([]string, 0, len(gaps))
	for _, gap := range gaps {
		if query == "" {
			out = append(out, gap)
			continue
		}
		out = append(out, gap+" "+query)
	}
	return out
}

// analyzeCoverage measures how well chunks cover the query's concepts and
// proposes gap-fill queries when coverage is short of the target.
func analyzeCoverage(query string, chunks []domain.Chunk, opts coverageOptions) domain.CoverageReport {
	opts = opts.withDefaults()

	concepts := extractConcepts(query)
	scores := measureConceptCoverage(concepts, chunks)

	report := domain.CoverageReport{
		Concepts:       concepts,
		CoverageScores: scores,
		Gaps:           []string{},
	}
	switch {
	case len(concepts) == 0:
		report.Overall = 1.0
	case len(scores) == 0:
		report.Overall = 0
	default:
		sum := 0.0
		for _, s := range scores {
			sum += s.Score
			if s.Score < opts.GapFloor {
				report.Gaps = append(report.Gaps, s.Concept)
			}
		}
		report.Overall = round(sum/float64(len(scores)), 3)
	}

	report.NeedsGapFill = report.Overall < opts.MinCoverage && len(report.Gaps) > 0
	if report.NeedsGapFill {
		report.GapQueries = buildGapQueries(report.Gaps, query, opts.MaxGapQueries)
	}
	return report
}
