package ports

import (
	"context"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

// RetrievalEngine is the inbound contract consumed by synthesis and verification agents.
type RetrievalEngine interface {
	RerankAndScore(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool) domain.RetrievalResult
	RecordOutcome(ctx context.Context, feedback domain.OutcomeFeedback)
}

// RetrievalScorer is the engine as seen by the query service, which may
// re-score an enlarged pool set once without a second secondary fetch.
type RetrievalScorer interface {
	RerankAndScore(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool) domain.RetrievalResult
	Rescore(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool) domain.RetrievalResult
}

// RetrievalQueryService fetches candidates from the configured searchers and scores them.
type RetrievalQueryService interface {
	Retrieve(ctx context.Context, query domain.QueryContext, limit int) (domain.RetrievalResult, error)
}

// OutcomeRecorder persists outcome feedback synchronously (worker side).
type OutcomeRecorder interface {
	Record(ctx context.Context, feedback domain.OutcomeFeedback) error
	Purge(ctx context.Context) (int64, error)
}
