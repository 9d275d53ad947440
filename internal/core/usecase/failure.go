package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	defaultRiskRetryThreshold  = 0.60
	defaultRiskGroundThreshold = 0.80
	riskExpandBand             = 0.7
	answerSignalSample         = 5
	fragmentationSample        = 10
)

var answerSignalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bis\s+defined\s+as\b`),
	regexp.MustCompile(`(?i)\brefers?\s+to\b`),
	regexp.MustCompile(`(?i)\bmeans?\b`),
	regexp.MustCompile(`(?i)\bconsists?\s+of\b`),
	regexp.MustCompile(`(?i)\binvolves?\b`),
	regexp.MustCompile(`\d+\.?\d*\s*%`),
	regexp.MustCompile(`(?i)\d+\.?\d*\s*(kg|km|m|cm|mm|g|mg|ml|l|hours?|minutes?|seconds?)`),
	regexp.MustCompile(`(?i)\baccording\s+to\b`),
	regexp.MustCompile(`(?i)\bfor\s+example\b`),
	regexp.MustCompile(`(?i)\bsuch\s+as\b`),
	regexp.MustCompile(`(?i)\b(therefore|thus|hence|consequently)\b`),
}

type failureOptions struct {
	RetryThreshold  float64
	GroundThreshold float64
	// AnswerSignal overrides the pattern heuristic when a verifier supplied one.
	AnswerSignal *float64
	// Confidence is blended into stability when present.
	Confidence *float64
}

// predictFailure estimates how likely synthesis is to fail on these chunks.
func predictFailure(query string, chunks []domain.Chunk, opts failureOptions) domain.FailurePrediction {
	if opts.RetryThreshold <= 0 {
		opts.RetryThreshold = defaultRiskRetryThreshold
	}
	if opts.GroundThreshold <= 0 {
		opts.GroundThreshold = defaultRiskGroundThreshold
	}

	if len(chunks) == 0 {
		return domain.FailurePrediction{
			RiskLevel:    1.0,
			ShouldRetry:  true,
			ShouldGround: true,
			Explanation:  "no chunks retrieved",
		}
	}

	coverage := failureCoverageSignal(query, chunks)
	answer := answerSignal(chunks)
	if opts.AnswerSignal != nil {
		answer = clamp(*opts.AnswerSignal, 0, 1)
	}
	fragmentation := contextFragmentation(chunks)
	stability := scoreStability(chunks, opts.Confidence)

	risk := 0.30*(1-coverage) +
		0.25*(1-answer) +
		0.20*fragmentation +
		0.25*(1-stability)
	risk = round(clamp(risk, 0, 1), 4)

	reasons := make([]string, 0, 4)
	if coverage < 0.5 {
		reasons = append(reasons, "low semantic coverage")
	}
	if answer < 0.3 {
		reasons = append(reasons, "weak answer signals")
	}
	if fragmentation > 0.6 {
		reasons = append(reasons, "high context fragmentation")
	}
	if stability < 0.4 {
		reasons = append(reasons, "unstable confidence")
	}
	explanation := "acceptable risk"
	if len(reasons) > 0 {
		explanation = strings.Join(reasons, "; ")
	}

	return domain.FailurePrediction{
		RiskLevel:    risk,
		ShouldRetry:  risk > opts.RetryThreshold,
		ShouldExpand: risk > opts.RetryThreshold*riskExpandBand && risk <= opts.RetryThreshold,
		ShouldGround: risk > opts.GroundThreshold,
		Signals: domain.FailureSignals{
			SemanticCoverage: round(coverage, 4),
			AnswerSignal:     round(answer, 4),
			Fragmentation:    round(fragmentation, 4),
			Stability:        round(stability, 4),
		},
		Explanation: explanation,
	}
}

// failureCoverageSignal is 1.0 when the query has no content words.
func failureCoverageSignal(query string, chunks []domain.Chunk) float64 {
	tokens := keywordSet(query, failureStopwords)
	if len(tokens) == 0 {
		return 1.0
	}
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}
	evidence := joinedLowerText(texts)
	covered := 0
	for token := range tokens {
		if strings.Contains(evidence, token) {
			covered++
		}
	}
	return float64(covered) / float64(len(tokens))
}

func answerSignal(chunks []domain.Chunk) float64 {
	sample := trimCandidates(chunks, answerSignalSample)
	if len(sample) == 0 {
		return 0
	}
	hits := 0
	for _, chunk := range sample {
		for _, pattern := range answerSignalPatterns {
			if pattern.MatchString(chunk.Text) {
				hits++
			}
		}
	}
	denom := float64(len(answerSignalPatterns)*len(sample)) * 0.3
	if denom < 1 {
		denom = 1
	}
	return clamp(float64(hits)/denom, 0, 1)
}

// contextFragmentation grows with the number of distinct documents and
// sections among the top chunks.
func contextFragmentation(chunks []domain.Chunk) float64 {
	if len(chunks) <= 1 {
		return 0
	}
	sample := trimCandidates(chunks, fragmentationSample)
	docs := make(map[string]struct{}, len(sample))
	sections := make(map[domain.SectionType]struct{}, len(sample))
	for _, chunk := range sample {
		if chunk.DocumentID != "" {
			docs[chunk.DocumentID] = struct{}{}
		}
		sections[chunk.Section()] = struct{}{}
	}
	n := float64(len(sample))
	return clamp(float64(len(docs))/n*0.6+float64(len(sections))/n*0.4, 0, 1)
}

func scoreStability(chunks []domain.Chunk, confidence *float64) float64 {
	sample := trimCandidates(chunks, fragmentationSample)
	if len(sample) == 0 {
		return 0
	}
	mean := 0.0
	for _, chunk := range sample {
		mean += chunk.RawScore
	}
	mean /= float64(len(sample))
	variance := 0.0
	for _, chunk := range sample {
		d := chunk.RawScore - mean
		variance += d * d
	}
	variance /= float64(len(sample))

	stability := math.Max(0, 1-2*math.Sqrt(variance))
	if confidence != nil {
		stability = 0.7*stability + 0.3*(*confidence)
	}
	return round(stability, 4)
}
