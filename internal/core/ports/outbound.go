package ports

import (
	"context"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

// ChunkSearcher returns candidates for a query (vector, keyword or section-metadata search).
type ChunkSearcher interface {
	Search(ctx context.Context, query string, topK int, filter domain.SearchFilter) ([]domain.Chunk, error)
}

// NeighborFetcher returns chunks adjacent to a locator inside one document.
type NeighborFetcher interface {
	FetchNeighbors(ctx context.Context, documentID string, chunkIndex int) ([]domain.Chunk, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// OutcomeRepository is the durable append/query store behind the retrieval memory.
// QueryRecent returns rows matching the query newer than now-window, newest first.
type OutcomeRepository interface {
	InsertOutcome(ctx context.Context, outcome domain.MemoryOutcome) error
	QueryRecent(ctx context.Context, query domain.OutcomeQuery) ([]domain.MemoryOutcome, error)
	PurgeOlderThan(ctx context.Context, window time.Duration) (int64, error)
}

// OutcomePublisher hands outcome feedback to the transport feeding the worker.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, feedback domain.OutcomeFeedback) error
}

// OutcomeSubscriber consumes published outcome feedback until ctx is done.
type OutcomeSubscriber interface {
	SubscribeOutcomes(ctx context.Context, handler func(context.Context, domain.OutcomeFeedback) error) error
}

// StageObserver receives per-stage timings and final scoring decisions.
type StageObserver interface {
	ObserveStage(stage string, status domain.StageStatus, duration time.Duration)
	ObserveResult(queryType domain.QueryType, result domain.RetrievalResult)
	ObserveSecondaryFetch(status string)
	ObserveMemoryError(operation string)
}

// OutcomeWorkerObserver receives worker-side persistence and purge results.
type OutcomeWorkerObserver interface {
	StartOutcome()
	FinishOutcome(duration time.Duration, err error)
	ObservePurged(rows int64)
}
