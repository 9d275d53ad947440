package domain

import "time"

// MemoryOutcome is one append-only row of the retrieval memory.
type MemoryOutcome struct {
	QueryHash      string         `json:"query_hash"`
	QueryType      QueryType      `json:"query_type"`
	ChunkTypes     []string       `json:"chunk_types"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	OutcomeQuality float64        `json:"outcome_quality"`
	Timestamp      time.Time      `json:"timestamp"`
}

// OutcomeQuery selects recent outcomes of one query type, newest first.
type OutcomeQuery struct {
	QueryType QueryType
	Window    time.Duration
	// QualityAbove keeps rows with outcome_quality strictly above it. Zero
	// disables the filter.
	QualityAbove float64
	// Limit caps the row count; zero or less returns every matching row.
	Limit int
}

// QualityFloor is the exclusive lower bound to bind in SQL; -1 matches all rows.
func (q OutcomeQuery) QualityFloor() float64 {
	if q.QualityAbove > 0 {
		return q.QualityAbove
	}
	return -1
}

// OutcomeFeedback is what downstream synthesis reports once answer quality is known.
type OutcomeFeedback struct {
	Query          string         `json:"query"`
	QueryType      QueryType      `json:"query_type"`
	ChunkTypes     []string       `json:"chunk_types"`
	Confidence     float64        `json:"confidence"`
	Recommendation Recommendation `json:"recommendation"`
	OutcomeQuality float64        `json:"outcome_quality"`
}
