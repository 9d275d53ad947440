package usecase

import (
	"fmt"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const defaultQualityFloor = 0.30

// validateRetrieval checks the reranked set against the query's intent:
// top score above the floor, a chunk from the target section, and a
// user-sourced chunk when the intent asks for the user's documents.
func validateRetrieval(q domain.QueryContext, chunks []domain.Chunk, qualityFloor float64) domain.ValidationResult {
	if qualityFloor <= 0 {
		qualityFloor = defaultQualityFloor
	}
	if len(chunks) == 0 {
		return domain.ValidationResult{Reason: "no chunks retrieved", ShouldRetry: true}
	}

	result := domain.ValidationResult{TopScore: validationTopScore(chunks)}
	for _, chunk := range chunks {
		if q.TargetSection != "" && chunk.Section() == q.TargetSection {
			result.SectionMatchCount++
		}
		if chunk.SourceType.IsUserSourced() {
			result.DocumentMatchCount++
		}
	}

	switch {
	case result.TopScore < qualityFloor:
		result.Reason = fmt.Sprintf("top score %.3f below threshold %.2f", result.TopScore, qualityFloor)
	case q.TargetSection != "" && result.SectionMatchCount == 0:
		result.Reason = fmt.Sprintf("no chunks match target section %q", q.TargetSection)
	case q.Intent.RequiresUserDocuments() && result.DocumentMatchCount == 0:
		result.Reason = "no user-uploaded document chunks found"
	default:
		result.IsValid = true
		result.Reason = "all checks passed"
		return result
	}
	result.ShouldRetry = true
	return result
}

// validationTopScore prefers rerank, then normalized, then raw score.
func validationTopScore(chunks []domain.Chunk) float64 {
	top := 0.0
	for i, chunk := range chunks {
		score := chunk.RawScore
		switch {
		case chunk.Annotations.RerankScore != nil:
			score = *chunk.Annotations.RerankScore
		case chunk.NormalizedScore != 0:
			score = chunk.NormalizedScore
		}
		if i == 0 || score > top {
			top = score
		}
	}
	return top
}
