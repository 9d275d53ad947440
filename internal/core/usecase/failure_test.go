package usecase

import (
	"math"
	"testing"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

func TestPredictFailureEmpty(t *testing.T) {
	got := predictFailure("anything", nil, failureOptions{})
	if got.RiskLevel != 1 || !got.ShouldRetry || !got.ShouldGround {
		t.Fatalf("expected risk 1 with retry and ground, got %+v", got)
	}
}

func TestPredictFailureLowRisk(t *testing.T) {
	text := "Gradient descent is defined as an iterative method; for example it is used in training, therefore it converges."
	chunks := []domain.Chunk{
		{ChunkID: "1", DocumentID: "doc-1", Text: text, RawScore: 0.8},
		{ChunkID: "2", DocumentID: "doc-1", Text: text, RawScore: 0.8},
	}

	got := predictFailure("gradient descent", chunks, failureOptions{})
	if got.Signals.SemanticCoverage != 1 {
		t.Fatalf("expected full coverage, got %f", got.Signals.SemanticCoverage)
	}
	if got.Signals.Fragmentation != 0.5 {
		t.Fatalf("expected fragmentation 0.5, got %f", got.Signals.Fragmentation)
	}
	if got.Signals.Stability != 1 {
		t.Fatalf("expected stability 1, got %f", got.Signals.Stability)
	}
	if got.RiskLevel >= 0.2 {
		t.Fatalf("expected low risk, got %f", got.RiskLevel)
	}
	if got.ShouldRetry || got.ShouldExpand || got.ShouldGround {
		t.Fatalf("expected no action flags, got %+v", got)
	}
	if got.Explanation != "acceptable risk" {
		t.Fatalf("unexpected explanation %q", got.Explanation)
	}
}

func TestPredictFailureHighRisk(t *testing.T) {
	chunks := []domain.Chunk{
		{ChunkID: "1", DocumentID: "doc-1", Text: "cats sleep often", RawScore: 0.9},
		{ChunkID: "2", DocumentID: "doc-2", Text: "weather today sunny", RawScore: 0.1},
	}

	got := predictFailure("quantum chromodynamics", chunks, failureOptions{})
	if math.Abs(got.RiskLevel-0.91) > 1e-9 {
		t.Fatalf("expected risk 0.91, got %f", got.RiskLevel)
	}
	if !got.ShouldRetry || !got.ShouldGround || got.ShouldExpand {
		t.Fatalf("expected retry and ground without expand, got %+v", got)
	}
	want := "low semantic coverage; weak answer signals; high context fragmentation; unstable confidence"
	if got.Explanation != want {
		t.Fatalf("expected %q, got %q", want, got.Explanation)
	}
}

func TestPredictFailureExpandBand(t *testing.T) {
	chunks := []domain.Chunk{
		{ChunkID: "1", DocumentID: "doc-1", Text: "cats sleep often", RawScore: 0.5},
		{ChunkID: "2", DocumentID: "doc-1", Text: "cats sleep often", RawScore: 0.5},
	}
	answer := 0.0
	// coverage 0 -> 0.30, answer 0 -> 0.25, fragmentation 0.5 -> 0.10, stability 1 -> 0
	got := predictFailure("quantum", chunks, failureOptions{AnswerSignal: &answer, RetryThreshold: 0.7})
	if math.Abs(got.RiskLevel-0.65) > 1e-9 {
		t.Fatalf("expected risk 0.65, got %f", got.RiskLevel)
	}
	if got.ShouldRetry || !got.ShouldExpand {
		t.Fatalf("expected expand band, got %+v", got)
	}
}

func TestScoreStabilityBlendsConfidence(t *testing.T) {
	chunks := []domain.Chunk{{RawScore: 0.4}, {RawScore: 0.4}}
	conf := 0.5
	if got := scoreStability(chunks, &conf); got != 0.85 {
		t.Fatalf("expected 0.85, got %f", got)
	}
	if got := scoreStability(chunks, nil); got != 1 {
		t.Fatalf("expected 1 without confidence, got %f", got)
	}
}

func TestFailureCoverageSignalWithoutContentWords(t *testing.T) {
	if got := failureCoverageSignal("what is it", []domain.Chunk{{Text: "x"}}); got != 1 {
		t.Fatalf("expected 1.0 when query has no content words, got %f", got)
	}
}
