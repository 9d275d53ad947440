package usecase

import (
	"regexp"
	"sort"
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	genericChunkPenalty   = -0.15
	shortMentionPenalty   = -0.10
	genericMinTokens      = 8
	genericStopwordRatio  = 0.75
	shortMentionMaxWords  = 20
	shortMentionDefFloor  = 0.05
	conceptualSectionHit  = 0.8
	definitionPhraseScore = 0.35
	definitionNounScore   = 0.10
	definitionSubjectHit  = 0.20
	densityLengthCap      = 0.3
	densityLengthWords    = 300.0
)

var (
	conceptualRerankWeights = domain.RerankWeights{
		Semantic:    0.50,
		Definition:  0.18,
		Keyword:     0.14,
		Section:     0.08,
		Document:    0.02,
		InfoDensity: 0.08,
	}
	defaultRerankWeights = domain.RerankWeights{
		Semantic:    0.50,
		Keyword:     0.25,
		Section:     0.15,
		Document:    0.10,
		InfoDensity: 0.05,
	}
)

var definitionPhrasePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\b(is|are) (a|an)\b`),
	regexp.MustCompile(`\brefers? to\b`),
	regexp.MustCompile(`\bconsists? of\b`),
	regexp.MustCompile(`\b(is|are) defined as\b`),
	regexp.MustCompile(`\b(is|are) known as\b`),
}

var definitionNouns = []string{
	"architecture", "algorithm", "method", "technique", "process",
	"framework", "model", "mechanism", "approach",
}

var conceptualSections = map[domain.SectionType]struct{}{
	domain.SectionDefinition:   {},
	domain.SectionIntroduction: {},
	domain.SectionOverview:     {},
}

type rerankProfiles struct {
	Conceptual domain.RerankWeights
	Default    domain.RerankWeights
}

func defaultRerankProfiles() rerankProfiles {
	return rerankProfiles{Conceptual: conceptualRerankWeights, Default: defaultRerankWeights}
}

func (p rerankProfiles) pick(conceptual bool) domain.RerankWeights {
	if conceptual {
		return p.Conceptual
	}
	return p.Default
}

// normalizeScores min-max scales RawScore into NormalizedScore. Equal scores
// all map to 0.5.
func normalizeScores(chunks []domain.Chunk) {
	if len(chunks) == 0 {
		return
	}
	minScore, maxScore := chunks[0].RawScore, chunks[0].RawScore
	for _, chunk := range chunks[1:] {
		if chunk.RawScore < minScore {
			minScore = chunk.RawScore
		}
		if chunk.RawScore > maxScore {
			maxScore = chunk.RawScore
		}
	}
	rangeScore := maxScore - minScore
	for i := range chunks {
		if rangeScore <= 0 {
			chunks[i].NormalizedScore = 0.5
			continue
		}
		chunks[i].NormalizedScore = (chunks[i].RawScore - minScore) / rangeScore
	}
}

// semanticRerank scores every chunk with the weighted signal blend and sorts
// by rerank score, then chunk id.
func semanticRerank(q domain.QueryContext, chunks []domain.Chunk, profiles rerankProfiles, queryEmbedding []float32) []domain.Chunk {
	if len(chunks) == 0 {
		return chunks
	}

	out := copyChunks(chunks)
	normalizeScores(out)

	query := q.Text()
	queryTokens := keywordSet(query, queryStopwords)
	if len(queryTokens) == 0 {
		queryTokens = toTokenSet(query)
	}
	weights := profiles.pick(q.IsConceptual)

	for i := range out {
		chunk := &out[i]
		tokens := splitWordsLower(chunk.Text)
		words := wordCount(chunk.Text)

		semantic := chunk.NormalizedScore
		if len(queryEmbedding) > 0 && len(chunk.Embedding) > 0 {
			semantic = clamp(cosineSimilarity(queryEmbedding, chunk.Embedding), 0, 1)
		}
		keyword := tokenOverlap(queryTokens, toTokenSet(chunk.Text))
		section := sectionMatchScore(q, chunk.Section())
		document := 0.0
		if q.PreferUserDocuments && chunk.SourceType.IsUserSourced() {
			document = 1.0
		}
		definition := 0.0
		if q.IsConceptual {
			definition = definitionPresenceScore(chunk.Text, queryTokens)
		}
		density := informationDensity(tokens, words)
		generic := isGenericChunk(tokens)

		combined := weights.Semantic*semantic +
			weights.Keyword*keyword +
			weights.Section*section +
			weights.Document*document +
			weights.Definition*definition +
			weights.InfoDensity*density
		if generic {
			combined += genericChunkPenalty
		}
		if q.IsConceptual && words < shortMentionMaxWords && definition < shortMentionDefFloor {
			combined += shortMentionPenalty
		}
		combined = round(clamp(combined, 0, 1), 4)

		chunk.Annotations.RerankScore = domain.Float(combined)
		chunk.Annotations.SemanticScore = domain.Float(round(semantic, 4))
		chunk.Annotations.KeywordScore = domain.Float(round(keyword, 4))
		chunk.Annotations.SectionScore = domain.Float(section)
		chunk.Annotations.DocumentScore = domain.Float(document)
		chunk.Annotations.DefinitionPresenceScore = domain.Float(round(definition, 4))
		chunk.Annotations.InfoDensityScore = domain.Float(round(density, 4))
		chunk.Annotations.IsGeneric = domain.Bool(generic)
	}

	sortByRerankScore(out)
	return out
}

func sortByRerankScore(chunks []domain.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		si, sj := chunks[i].RankingScore(), chunks[j].RankingScore()
		if si != sj {
			return si > sj
		}
		return chunks[i].Key() < chunks[j].Key()
	})
}

func sectionMatchScore(q domain.QueryContext, section domain.SectionType) float64 {
	if q.TargetSection != "" && section == q.TargetSection {
		return 1.0
	}
	if q.IsConceptual {
		if _, ok := conceptualSections[section]; ok {
			return conceptualSectionHit
		}
	}
	return 0
}

// definitionPresenceScore rates definitional phrasing, capped at 1.
func definitionPresenceScore(text string, queryTokens map[string]struct{}) float64 {
	lower := strings.ToLower(text)
	score := 0.0
	for _, pattern := range definitionPhrasePatterns {
		if pattern.MatchString(lower) {
			score += definitionPhraseScore
		}
	}
	for _, noun := range definitionNouns {
		if strings.Contains(lower, noun) {
			score += definitionNounScore
		}
	}
	for token := range queryTokens {
		if len(token) <= 2 {
			continue
		}
		if strings.Contains(lower, token+" is ") || strings.Contains(lower, token+" are ") {
			score += definitionSubjectHit
			break
		}
	}
	return clamp(score, 0, 1)
}

func informationDensity(tokens []string, words int) float64 {
	if len(tokens) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		if !baseStopwords.has(token) {
			unique[token] = struct{}{}
		}
	}
	ratio := float64(len(unique)) / float64(len(tokens))
	lengthBonus := float64(words) / densityLengthWords
	if lengthBonus > densityLengthCap {
		lengthBonus = densityLengthCap
	}
	return clamp(ratio+lengthBonus, 0, 1)
}

func isGenericChunk(tokens []string) bool {
	if len(tokens) < genericMinTokens {
		return true
	}
	stop := 0
	for _, token := range tokens {
		if baseStopwords.has(token) {
			stop++
		}
	}
	return float64(stop)/float64(len(tokens)) > genericStopwordRatio
}
