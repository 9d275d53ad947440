package usecase

import (
	"sort"
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	defaultConfidenceHigh = 0.70
	defaultConfidenceLow  = 0.35
	densitySampleSize     = 5
)

var defaultConfidenceWeights = domain.ConfidenceWeights{
	TopSimilarity:      0.30,
	ScoreGap:           0.15,
	KeywordOverlap:     0.20,
	SemanticCoverage:   0.20,
	InformationDensity: 0.15,
}

var builtinConfidenceProfiles = map[domain.QueryType]domain.ConfidenceWeights{
	domain.QueryConceptual:       {TopSimilarity: 0.20, ScoreGap: 0.10, KeywordOverlap: 0.15, SemanticCoverage: 0.35, InformationDensity: 0.20},
	domain.QueryFactVerification: {TopSimilarity: 0.25, ScoreGap: 0.15, KeywordOverlap: 0.35, SemanticCoverage: 0.15, InformationDensity: 0.10},
	domain.QueryComparative:      {TopSimilarity: 0.20, ScoreGap: 0.10, KeywordOverlap: 0.20, SemanticCoverage: 0.25, InformationDensity: 0.25},
	domain.QueryMultiHop:         {TopSimilarity: 0.20, ScoreGap: 0.10, KeywordOverlap: 0.20, SemanticCoverage: 0.30, InformationDensity: 0.20},
	domain.QueryTemporal:         {TopSimilarity: 0.30, ScoreGap: 0.15, KeywordOverlap: 0.25, SemanticCoverage: 0.15, InformationDensity: 0.15},
}

type confidenceProfiles map[domain.QueryType]domain.ConfidenceWeights

// newConfidenceProfiles layers overrides on top of the built-in profiles.
// general and unknown types fall back to the default weights.
func newConfidenceProfiles(overrides map[domain.QueryType]domain.ConfidenceWeights) confidenceProfiles {
	out := make(confidenceProfiles, len(builtinConfidenceProfiles)+len(overrides))
	for qt, w := range builtinConfidenceProfiles {
		out[qt] = w
	}
	for qt, w := range overrides {
		if w.Sum() > 0 {
			out[qt] = w
		}
	}
	return out
}

func (p confidenceProfiles) weightsFor(qt domain.QueryType) domain.ConfidenceWeights {
	if w, ok := p[qt]; ok {
		return w
	}
	return defaultConfidenceWeights
}

// computeRetrievalConfidence blends five evidence signals into one score and
// maps it to a level and recommendation using the given thresholds.
func computeRetrievalConfidence(query string, queryType domain.QueryType, chunks []domain.Chunk, thresholds domain.Thresholds, profiles confidenceProfiles) domain.RetrievalConfidence {
	if len(chunks) == 0 {
		return domain.RetrievalConfidence{
			Score:          0,
			Level:          domain.ConfidenceLow,
			Recommendation: domain.RecommendRetry,
			Thresholds:     thresholds,
		}
	}

	scores := confidenceScores(chunks)
	topSim := 0.0
	for _, s := range scores {
		if s > topSim {
			topSim = s
		}
	}
	gap := scoreGap(scores)
	keywords := keywordSet(query, queryStopwords)
	kwOverlap := evidenceKeywordOverlap(keywords, chunks)
	coverage := keywordCoverage(keywords, chunks)
	density := chunkInformationDensity(chunks)

	w := profiles.weightsFor(queryType)
	score := w.TopSimilarity*topSim +
		w.ScoreGap*gap +
		w.KeywordOverlap*kwOverlap +
		w.SemanticCoverage*coverage +
		w.InformationDensity*density
	score = round(clamp(score, 0, 1), 4)

	level := confidenceLevel(score, thresholds)
	return domain.RetrievalConfidence{
		Score:              score,
		Level:              level,
		TopSimilarity:      round(topSim, 4),
		ScoreGap:           round(gap, 4),
		KeywordOverlap:     round(kwOverlap, 4),
		SemanticCoverage:   round(coverage, 4),
		InformationDensity: round(density, 4),
		Recommendation:     recommend(level, topSim, kwOverlap, coverage),
		Thresholds:         thresholds,
	}
}

// confidenceScores uses the rerank score when one was assigned, zero
// included, and otherwise the raw score clamped to [0,1].
func confidenceScores(chunks []domain.Chunk) []float64 {
	out := make([]float64, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.Annotations.RerankScore != nil {
			out = append(out, clamp(*chunk.Annotations.RerankScore, 0, 1))
			continue
		}
		out = append(out, clamp(chunk.RawScore, 0, 1))
	}
	return out
}

func scoreGap(scores []float64) float64 {
	if len(scores) < 2 {
		return 0.5
	}
	sorted := append([]float64(nil), scores...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	top := sorted[0]
	if top == 0 {
		return 0
	}
	gap := (top - sorted[1]) / top
	median := sorted[len(sorted)/2]
	medianGap := (top - median) / top
	return clamp((gap+medianGap)/2, 0, 1)
}

func evidenceKeywordOverlap(keywords map[string]struct{}, chunks []domain.Chunk) float64 {
	if len(keywords) == 0 {
		return 0
	}
	evidence := make(map[string]struct{})
	for _, chunk := range chunks {
		for _, token := range splitWordsLower(chunk.Text) {
			evidence[token] = struct{}{}
		}
	}
	return tokenOverlap(keywords, evidence)
}

// keywordCoverage is the fraction of keywords found as a substring of some chunk.
func keywordCoverage(keywords map[string]struct{}, chunks []domain.Chunk) float64 {
	if len(keywords) == 0 {
		return 0
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = strings.ToLower(chunk.Text)
	}
	covered := 0
	for token := range keywords {
		for _, text := range texts {
			if strings.Contains(text, token) {
				covered++
				break
			}
		}
	}
	return float64(covered) / float64(len(keywords))
}

func chunkInformationDensity(chunks []domain.Chunk) float64 {
	sample := trimCandidates(chunks, densitySampleSize)
	if len(sample) == 0 {
		return 0
	}
	total := 0.0
	for _, chunk := range sample {
		words := strings.Fields(chunk.Text)
		var d float64
		switch n := len(words); {
		case n < 10:
			d = 0.1
		case n < 30:
			d = 0.4
		case n < 80:
			d = 0.7
		default:
			d = 0.9
		}
		unique := make(map[string]struct{}, len(words))
		for _, w := range words {
			unique[strings.ToLower(w)] = struct{}{}
		}
		denom := len(words)
		if denom < 1 {
			denom = 1
		}
		d += float64(len(unique)) / float64(denom) * 0.2
		if d > 1 {
			d = 1
		}
		total += d
	}
	return total / float64(len(sample))
}

func confidenceLevel(score float64, t domain.Thresholds) domain.ConfidenceLevel {
	switch {
	case score >= t.High:
		return domain.ConfidenceHigh
	case score >= t.Low:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

func recommend(level domain.ConfidenceLevel, topSim, kwOverlap, coverage float64) domain.Recommendation {
	switch level {
	case domain.ConfidenceHigh:
		return domain.RecommendProceed
	case domain.ConfidenceMedium:
		if coverage < 0.5 || kwOverlap < 0.4 {
			return domain.RecommendExpand
		}
		return domain.RecommendProceed
	default:
		if topSim < 0.2 || coverage < 0.3 {
			return domain.RecommendRetry
		}
		return domain.RecommendGroundedOnly
	}
}
