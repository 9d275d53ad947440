package usecase

import (
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	thresholdHighMin     = 0.40
	thresholdHighMax     = 0.90
	thresholdLowMin      = 0.15
	thresholdMinSpread   = 0.10
	complexityHighFactor = -0.05
	memoryBlendComputed  = 0.60
	memoryBlendLearned   = 0.40
)

type thresholdDelta struct {
	high float64
	low  float64
}

var queryTypeThresholdDeltas = map[domain.QueryType]thresholdDelta{
	domain.QueryConceptual:       {high: -0.05, low: -0.05},
	domain.QueryFactVerification: {high: 0.05, low: 0.05},
	domain.QueryComparative:      {high: -0.03, low: -0.03},
	domain.QueryMultiHop:         {high: -0.08, low: -0.05},
	domain.QueryTemporal:         {},
	domain.QueryGeneral:          {},
}

var complexityConnectors = newWordSet(
	"and", "or", "but", "because", "since", "while", "whereas",
	"however", "although", "moreover", "furthermore", "also",
)

// adaptiveThresholds adjusts the static (high, low) pair for query type and
// complexity and blends in memory hints when available. The result always
// satisfies 0.40 <= high <= 0.90 and low <= high-0.10.
func adaptiveThresholds(base domain.Thresholds, qt domain.QueryType, complexity *float64, hints *domain.Thresholds) domain.Thresholds {
	high, low := base.High, base.Low

	delta := queryTypeThresholdDeltas[qt]
	high += delta.high
	low += delta.low

	if complexity != nil {
		adj := complexityHighFactor * (*complexity)
		high += adj
		low += adj * 0.5
	}

	if hints != nil {
		high = memoryBlendComputed*high + memoryBlendLearned*hints.High
		low = memoryBlendComputed*low + memoryBlendLearned*hints.Low
	}

	high = round(clamp(high, thresholdHighMin, thresholdHighMax), 3)
	low = round(clamp(low, thresholdLowMin, high-thresholdMinSpread), 3)
	return domain.Thresholds{High: high, Low: low}
}

// queryComplexity scores 0..1 from length, connector words and repeated
// question marks.
func queryComplexity(query string) float64 {
	words := strings.Fields(query)

	var lengthScore float64
	switch n := len(words); {
	case n <= 5:
		lengthScore = 0.2
	case n <= 10:
		lengthScore = 0.4
	case n <= 20:
		lengthScore = 0.6
	default:
		lengthScore = 0.8
	}

	connectors := 0
	for _, w := range words {
		if complexityConnectors.has(strings.ToLower(w)) {
			connectors++
		}
	}
	connectorScore := clamp(float64(connectors)*0.3, 0, 1)

	questionScore := 0.0
	if q := strings.Count(query, "?"); q > 1 {
		questionScore = clamp(float64(q)*0.3, 0, 1)
	}

	return round(clamp(0.50*lengthScore+0.30*connectorScore+0.20*questionScore, 0, 1), 3)
}
