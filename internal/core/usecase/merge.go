package usecase

import (
	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const minNormalizationBase = 1e-8

// mergeCandidatePools flattens the pools, keeping the highest raw score per
// chunk key (first seen wins ties), then sets normalized_score relative to
// the best raw score.
func mergeCandidatePools(pools ...domain.CandidatePool) []domain.Chunk {
	total := 0
	for _, pool := range pools {
		total += len(pool.Chunks)
	}
	if total == 0 {
		return nil
	}

	index := make(map[string]int, total)
	out := make([]domain.Chunk, 0, total)
	for _, pool := range pools {
		for _, chunk := range pool.Chunks {
			key := chunk.Key()
			pos, ok := index[key]
			if !ok {
				index[key] = len(out)
				out = append(out, chunk)
				continue
			}
			out[pos] = preferRicherChunk(out[pos], chunk)
		}
	}

	maxRaw := out[0].RawScore
	for _, chunk := range out[1:] {
		if chunk.RawScore > maxRaw {
			maxRaw = chunk.RawScore
		}
	}
	if maxRaw < minNormalizationBase {
		maxRaw = minNormalizationBase
	}
	for i := range out {
		out[i].NormalizedScore = out[i].RawScore / maxRaw
	}
	return out
}

// preferRicherChunk picks the higher-scoring duplicate and fills metadata the
// winner is missing from the other copy. Identity fields are never rewritten.
func preferRicherChunk(current, candidate domain.Chunk) domain.Chunk {
	winner, other := current, candidate
	if candidate.RawScore > current.RawScore {
		winner, other = candidate, current
	}
	if winner.SectionType == "" && other.SectionType != "" {
		winner.SectionType = other.SectionType
	}
	if winner.SourceType == "" && other.SourceType != "" {
		winner.SourceType = other.SourceType
	}
	if len(winner.Embedding) == 0 && len(other.Embedding) > 0 {
		winner.Embedding = other.Embedding
	}
	return winner
}

func trimCandidates(chunks []domain.Chunk, limit int) []domain.Chunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}
	return chunks[:limit]
}

// copyChunks returns a slice the caller may reorder and mutate freely.
func copyChunks(chunks []domain.Chunk) []domain.Chunk {
	if chunks == nil {
		return nil
	}
	out := make([]domain.Chunk, len(chunks))
	copy(out, chunks)
	return out
}
