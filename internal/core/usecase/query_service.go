package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
)

const (
	defaultVectorTopK   = 8
	defaultKeywordTopK  = 5
	neighborExpandCount = 3
	searchConcurrency   = 4
)

type QueryOptions struct {
	VectorTopK     int
	KeywordTopK    int
	GapFillEnabled bool
}

// RetrievalQueryUseCase fetches candidates from the searchers and scores them
// with the engine. It allows one extra pass for gap-fill and neighbour
// expansion.
type RetrievalQueryUseCase struct {
	engine    ports.RetrievalScorer
	vector    ports.ChunkSearcher
	keyword   ports.ChunkSearcher
	neighbors ports.NeighborFetcher
	opts      QueryOptions
}

func NewRetrievalQueryUseCase(
	engine ports.RetrievalScorer,
	vector ports.ChunkSearcher,
	keyword ports.ChunkSearcher,
	neighbors ports.NeighborFetcher,
	opts QueryOptions,
) *RetrievalQueryUseCase {
	if opts.VectorTopK <= 0 {
		opts.VectorTopK = defaultVectorTopK
	}
	if opts.KeywordTopK <= 0 {
		opts.KeywordTopK = defaultKeywordTopK
	}
	return &RetrievalQueryUseCase{
		engine:    engine,
		vector:    vector,
		keyword:   keyword,
		neighbors: neighbors,
		opts:      opts,
	}
}

type searchJob struct {
	source   string
	searcher ports.ChunkSearcher
	query    string
	topK     int
	filter   domain.SearchFilter
}

func (uc *RetrievalQueryUseCase) Retrieve(ctx context.Context, query domain.QueryContext, limit int) (domain.RetrievalResult, error) {
	if strings.TrimSpace(query.Text()) == "" {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("query is required"))
	}
	if uc.vector == nil && uc.keyword == nil {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("no searchers configured"))
	}

	q := NormalizeQueryContext(query)
	text := q.Text()
	filter := domain.SearchFilter{}
	if q.Intent.RequiresUserDocuments() {
		filter.SourceTypes = []domain.SourceType{domain.SourcePDF, domain.SourceFile, domain.SourceNote}
	}

	jobs := make([]searchJob, 0, 3)
	if uc.vector != nil {
		jobs = append(jobs, searchJob{source: "vector", searcher: uc.vector, query: text, topK: uc.opts.VectorTopK, filter: filter})
		if q.TargetSection != "" {
			sectionFilter := filter
			sectionFilter.SectionType = q.TargetSection
			jobs = append(jobs, searchJob{source: "section", searcher: uc.vector, query: text, topK: uc.opts.KeywordTopK, filter: sectionFilter})
		}
	}
	if uc.keyword != nil {
		jobs = append(jobs, searchJob{source: "keyword", searcher: uc.keyword, query: text, topK: uc.opts.KeywordTopK, filter: filter})
	}

	pools, failed := uc.search(ctx, jobs)
	if len(pools) == 0 && failed > 0 {
		return domain.RetrievalResult{}, domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("all searchers failed"))
	}

	result := uc.engine.RerankAndScore(ctx, q, pools)

	extra := uc.secondPassPools(ctx, q, filter, result)
	if len(extra) > 0 {
		first := result.Validation
		if result.SecondaryPool != nil {
			pools = append(pools, *result.SecondaryPool)
		}
		result = uc.engine.Rescore(ctx, q, append(pools, extra...))
		if first.SecondaryFetchUsed {
			result.Validation.SecondaryFetchUsed = true
			result.Validation.SecondaryFetchAdded = first.SecondaryFetchAdded
		}
	}

	result.Chunks = trimCandidates(result.Chunks, limit)
	return result, nil
}

// search runs the jobs concurrently. Failed searches are logged and skipped.
func (uc *RetrievalQueryUseCase) search(ctx context.Context, jobs []searchJob) ([]domain.CandidatePool, int) {
	results := make([]*domain.CandidatePool, len(jobs))
	var (
		mu     sync.Mutex
		failed int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchConcurrency)
	for i, job := range jobs {
		g.Go(func() error {
			chunks, err := job.searcher.Search(gctx, job.query, job.topK, job.filter)
			if err != nil {
				slog.Warn("candidate_search_failed", "source", job.source, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			results[i] = &domain.CandidatePool{Source: job.source, Chunks: chunks}
			return nil
		})
	}
	_ = g.Wait()

	pools := make([]domain.CandidatePool, 0, len(jobs))
	for _, pool := range results {
		if pool != nil {
			pools = append(pools, *pool)
		}
	}
	return pools, failed
}

// secondPassPools collects gap-fill and neighbour candidates for the one
// allowed re-score.
func (uc *RetrievalQueryUseCase) secondPassPools(ctx context.Context, q domain.QueryContext, filter domain.SearchFilter, result domain.RetrievalResult) []domain.CandidatePool {
	var extra []domain.CandidatePool

	if uc.opts.GapFillEnabled && result.Coverage.NeedsGapFill && len(result.Coverage.GapQueries) > 0 {
		searcher := uc.vector
		if searcher == nil {
			searcher = uc.keyword
		}
		jobs := make([]searchJob, 0, len(result.Coverage.GapQueries))
		for i, gq := range result.Coverage.GapQueries {
			jobs = append(jobs, searchJob{
				source:   fmt.Sprintf("gap_fill_%d", i+1),
				searcher: searcher,
				query:    gq,
				topK:     uc.opts.KeywordTopK,
				filter:   filter,
			})
		}
		pools, _ := uc.search(ctx, jobs)
		extra = append(extra, pools...)
	}

	if uc.neighbors != nil && result.Confidence.Recommendation == domain.RecommendExpand {
		if pool := uc.expandNeighbors(ctx, result.Chunks); len(pool.Chunks) > 0 {
			extra = append(extra, pool)
		}
	}
	return extra
}

func (uc *RetrievalQueryUseCase) expandNeighbors(ctx context.Context, chunks []domain.Chunk) domain.CandidatePool {
	pool := domain.CandidatePool{Source: "neighbors"}
	for _, chunk := range trimCandidates(chunks, neighborExpandCount) {
		if chunk.DocumentID == "" {
			continue
		}
		neighbors, err := uc.neighbors.FetchNeighbors(ctx, chunk.DocumentID, chunk.ChunkIndex)
		if err != nil {
			slog.Warn("neighbor_fetch_failed", "document_id", chunk.DocumentID, "chunk_index", chunk.ChunkIndex, "error", err)
			continue
		}
		pool.Chunks = append(pool.Chunks, neighbors...)
	}
	return pool
}
