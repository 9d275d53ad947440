package httpadapter

import (
	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

type scoreRequest struct {
	QueryContext domain.QueryContext    `json:"query_context"`
	Pools        []domain.CandidatePool `json:"pools"`
}

type queryRequest struct {
	Query               string             `json:"query"`
	QueryType           domain.QueryType   `json:"query_type"`
	TargetSection       domain.SectionType `json:"target_section"`
	Intent              domain.QueryIntent `json:"intent"`
	PreferUserDocuments bool               `json:"prefer_user_documents"`
	Limit               int                `json:"limit"`
}

func (r queryRequest) toQueryContext() domain.QueryContext {
	return domain.QueryContext{
		RawQuery:            r.Query,
		QueryType:           r.QueryType,
		TargetSection:       r.TargetSection,
		Intent:              r.Intent,
		PreferUserDocuments: r.PreferUserDocuments,
	}
}

type outcomeRequest struct {
	Query          string                `json:"query"`
	QueryType      domain.QueryType      `json:"query_type"`
	ChunkTypes     []string              `json:"chunk_types"`
	Confidence     float64               `json:"confidence"`
	Recommendation domain.Recommendation `json:"recommendation"`
	OutcomeQuality *float64              `json:"outcome_quality"`
}

func (r outcomeRequest) toFeedback() domain.OutcomeFeedback {
	return domain.OutcomeFeedback{
		Query:          r.Query,
		QueryType:      r.QueryType,
		ChunkTypes:     r.ChunkTypes,
		Confidence:     r.Confidence,
		Recommendation: r.Recommendation,
		OutcomeQuality: *r.OutcomeQuality,
	}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
