package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
)

var engineTracer = otel.Tracer("retrieval.engine")

type EngineConfig struct {
	HierarchicalEnabled      bool
	HierarchicalTopDocs      int
	HierarchicalSectionBoost float64

	ClusterOverlapThreshold float64
	ClusterMaxOutput        int

	CoverageMin       float64
	CoverageGapFloor  float64
	MaxGapFillQueries int

	ConfidenceHigh     float64
	ConfidenceLow      float64
	AdaptiveThresholds bool

	RiskRetryThreshold  float64
	RiskGroundThreshold float64

	QualityFloor       float64
	SecondaryFetchTopK int

	Profiles       domain.WeightProfiles
	OutcomeTimeout time.Duration
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		HierarchicalEnabled:      true,
		HierarchicalTopDocs:      3,
		HierarchicalSectionBoost: 0.15,
		ClusterOverlapThreshold:  defaultClusterOverlap,
		ClusterMaxOutput:         defaultClusterMaxOutput,
		CoverageMin:              defaultCoverageMin,
		CoverageGapFloor:         defaultCoverageGap,
		MaxGapFillQueries:        defaultMaxGapQueries,
		ConfidenceHigh:           defaultConfidenceHigh,
		ConfidenceLow:            defaultConfidenceLow,
		AdaptiveThresholds:       true,
		RiskRetryThreshold:       defaultRiskRetryThreshold,
		RiskGroundThreshold:      defaultRiskGroundThreshold,
		QualityFloor:             defaultQualityFloor,
		SecondaryFetchTopK:       5,
		OutcomeTimeout:           5 * time.Second,
	}
}

// RetrievalEngine turns candidate pools into a ranked, deduplicated chunk
// list with confidence, failure risk and coverage. Scoring never fails: every
// degraded dependency falls back to defaults.
type RetrievalEngine struct {
	cfg        EngineConfig
	memory     *RetrievalMemory
	embedder   ports.Embedder
	secondary  ports.ChunkSearcher
	publisher  ports.OutcomePublisher
	observer   ports.StageObserver
	rerank     rerankProfiles
	confidence confidenceProfiles
	now        func() time.Time

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewRetrievalEngine(
	cfg EngineConfig,
	memory *RetrievalMemory,
	embedder ports.Embedder,
	secondary ports.ChunkSearcher,
	publisher ports.OutcomePublisher,
	observer ports.StageObserver,
) *RetrievalEngine {
	defaults := DefaultEngineConfig()
	if cfg.ConfidenceHigh <= 0 {
		cfg.ConfidenceHigh = defaults.ConfidenceHigh
	}
	if cfg.ConfidenceLow <= 0 {
		cfg.ConfidenceLow = defaults.ConfidenceLow
	}
	if cfg.SecondaryFetchTopK <= 0 {
		cfg.SecondaryFetchTopK = defaults.SecondaryFetchTopK
	}
	if cfg.OutcomeTimeout <= 0 {
		cfg.OutcomeTimeout = defaults.OutcomeTimeout
	}

	rerank := defaultRerankProfiles()
	if w := cfg.Profiles.RerankConceptual; w != nil && w.Sum() > 0 {
		rerank.Conceptual = *w
	}
	if w := cfg.Profiles.RerankDefault; w != nil && w.Sum() > 0 {
		rerank.Default = *w
	}

	return &RetrievalEngine{
		cfg:        cfg,
		memory:     memory,
		embedder:   embedder,
		secondary:  secondary,
		publisher:  publisher,
		observer:   observer,
		rerank:     rerank,
		confidence: newConfidenceProfiles(cfg.Profiles.Confidence),
		now:        time.Now,
	}
}

type stageFunc func(ctx context.Context) (domain.StageStatus, map[string]any)

func (e *RetrievalEngine) runStage(ctx context.Context, tc *traceCollector, name string, fn stageFunc) {
	ctx, span := engineTracer.Start(ctx, "retrieval."+name,
		trace.WithAttributes(attribute.String("retrieval.trace_id", tc.id())))
	started := e.now()
	status, payload := fn(ctx)
	elapsed := e.now().Sub(started)
	span.SetAttributes(attribute.String("retrieval.stage_status", string(status)))
	if n, ok := payload["total_count"].(int); ok {
		span.SetAttributes(attribute.Int("retrieval.chunk_count", n))
	}
	span.End()

	tc.logStage(name, status, elapsed, payload)
	if e.observer != nil {
		e.observer.ObserveStage(name, status, elapsed)
	}
}

func (e *RetrievalEngine) memoryFailed(operation string, err error) {
	slog.Warn("memory_store_degraded", "operation", operation, "error", err)
	if e.observer != nil {
		e.observer.ObserveMemoryError(operation)
	}
}

// RerankAndScore runs the full scoring pipeline over the candidate pools.
func (e *RetrievalEngine) RerankAndScore(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool) domain.RetrievalResult {
	return e.score(ctx, query, pools, true)
}

// Rescore runs the pipeline without the secondary fetch. Callers that re-score
// an enlarged pool set use it so one request fetches at most once.
func (e *RetrievalEngine) Rescore(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool) domain.RetrievalResult {
	return e.score(ctx, query, pools, false)
}

func (e *RetrievalEngine) score(ctx context.Context, query domain.QueryContext, pools []domain.CandidatePool, allowSecondary bool) domain.RetrievalResult {
	q := NormalizeQueryContext(query)
	tc := newTraceCollector(q.Text(), e.now)
	tc.setMetadata("query_type", string(q.QueryType))
	tc.setMetadata("intent", string(q.Intent))
	requestID := domain.RequestIDFromContext(ctx)
	if requestID != "" {
		tc.setMetadata("request_id", requestID)
	}
	if q.TargetSection != "" {
		tc.setMetadata("target_section", string(q.TargetSection))
	}

	ctx, span := engineTracer.Start(ctx, "retrieval.rerank_and_score",
		trace.WithAttributes(
			attribute.String("retrieval.trace_id", tc.id()),
			attribute.String("retrieval.query_type", string(q.QueryType)),
			attribute.Int("retrieval.pool_count", len(pools)),
		))
	defer span.End()

	boosts := e.learnedBoosts(ctx, tc, q.QueryType)
	queryEmbedding := e.queryEmbedding(ctx, tc, q, pools)

	ranked := e.rankPass(ctx, tc, q, pools, boosts, queryEmbedding, "")

	var validation domain.ValidationResult
	e.runStage(ctx, tc, "validation", func(context.Context) (domain.StageStatus, map[string]any) {
		validation = validateRetrieval(q, ranked, e.cfg.QualityFloor)
		status := domain.StageSuccess
		if !validation.IsValid {
			status = domain.StagePartial
		}
		return status, map[string]any{
			"is_valid":             validation.IsValid,
			"reason":               validation.Reason,
			"top_score":            validation.TopScore,
			"section_match_count":  validation.SectionMatchCount,
			"document_match_count": validation.DocumentMatchCount,
		}
	})

	var secondaryPool *domain.CandidatePool
	switch {
	case validation.IsValid:
	case !q.IsConceptual:
		tc.decision("secondary_fetch", "skip", "query is not conceptual", nil)
	case !allowSecondary:
		tc.decision("secondary_fetch", "skip", "secondary fetch already spent", nil)
	default:
		ranked, validation, secondaryPool = e.secondaryPass(ctx, tc, q, pools, boosts, queryEmbedding, ranked, validation)
	}

	tc.snapshot("after_rerank", ranked)

	var deduped []domain.Chunk
	e.runStage(ctx, tc, "cluster_dedup", func(context.Context) (domain.StageStatus, map[string]any) {
		var report clusterReport
		deduped, report = clusterDeduplicate(ranked, clusterOptions{
			OverlapThreshold: e.cfg.ClusterOverlapThreshold,
			MaxOutput:        e.cfg.ClusterMaxOutput,
		})
		status := domain.StageSuccess
		if !report.Applied {
			status = domain.StageSkipped
		}
		return status, map[string]any{
			"total_count":     report.OutputCount,
			"input_count":     report.InputCount,
			"clusters_formed": report.ClustersFormed,
			"chunks_removed":  report.InputCount - report.OutputCount,
		}
	})

	var coverage domain.CoverageReport
	e.runStage(ctx, tc, "semantic_coverage", func(context.Context) (domain.StageStatus, map[string]any) {
		coverage = analyzeCoverage(q.Text(), deduped, coverageOptions{
			MinCoverage:   e.cfg.CoverageMin,
			GapFloor:      e.cfg.CoverageGapFloor,
			MaxGapQueries: e.cfg.MaxGapFillQueries,
		})
		return domain.StageSuccess, map[string]any{
			"coverage_score": coverage.Overall,
			"concepts":       len(coverage.Concepts),
			"gaps_found":     len(coverage.Gaps),
			"needs_gap_fill": coverage.NeedsGapFill,
		}
	})

	thresholds := e.thresholds(ctx, tc, q)

	var confidence domain.RetrievalConfidence
	e.runStage(ctx, tc, "confidence", func(context.Context) (domain.StageStatus, map[string]any) {
		confidence = computeRetrievalConfidence(q.Text(), q.QueryType, deduped, thresholds, e.confidence)
		return domain.StageSuccess, map[string]any{
			"score":               confidence.Score,
			"level":               string(confidence.Level),
			"recommendation":      string(confidence.Recommendation),
			"top_similarity":      confidence.TopSimilarity,
			"keyword_overlap":     confidence.KeywordOverlap,
			"semantic_coverage":   confidence.SemanticCoverage,
			"information_density": confidence.InformationDensity,
		}
	})

	var failure domain.FailurePrediction
	e.runStage(ctx, tc, "failure_prediction", func(context.Context) (domain.StageStatus, map[string]any) {
		score := confidence.Score
		failure = predictFailure(q.Text(), deduped, failureOptions{
			RetryThreshold:  e.cfg.RiskRetryThreshold,
			GroundThreshold: e.cfg.RiskGroundThreshold,
			Confidence:      &score,
		})
		return domain.StageSuccess, map[string]any{
			"risk_level":    failure.RiskLevel,
			"should_retry":  failure.ShouldRetry,
			"should_expand": failure.ShouldExpand,
			"should_ground": failure.ShouldGround,
			"explanation":   failure.Explanation,
		}
	})

	tc.decision("recommendation", string(confidence.Recommendation), failure.Explanation, map[string]any{
		"level":      string(confidence.Level),
		"risk_level": failure.RiskLevel,
	})
	if failure.ShouldGround || confidence.Recommendation == domain.RecommendGroundedOnly {
		tc.decision("grounded_mode", "activate", failure.Explanation, nil)
	}

	result := domain.RetrievalResult{
		Chunks:     deduped,
		Confidence: confidence,
		Failure:    failure,
		Coverage:   coverage,
		Validation: validation,
		Trace:      tc.finish(),

		SecondaryPool: secondaryPool,
	}
	if result.Chunks == nil {
		result.Chunks = []domain.Chunk{}
	}
	if e.observer != nil {
		e.observer.ObserveResult(q.QueryType, result)
	}

	span.SetAttributes(
		attribute.Int("retrieval.chunk_count", len(result.Chunks)),
		attribute.Float64("retrieval.confidence", confidence.Score),
		attribute.Float64("retrieval.risk_level", failure.RiskLevel),
	)
	slog.Info("retrieval_scored",
		"trace_id", result.Trace.TraceID,
		"request_id", requestID,
		"query_type", string(q.QueryType),
		"chunks", len(result.Chunks),
		"confidence", confidence.Score,
		"level", string(confidence.Level),
		"recommendation", string(confidence.Recommendation),
		"risk_level", failure.RiskLevel,
		"coverage", coverage.Overall,
		"duration_ms", result.Trace.TotalDurationMS,
	)
	return result
}

// rankPass merges the pools and runs the hierarchical and semantic rerankers.
func (e *RetrievalEngine) rankPass(
	ctx context.Context,
	tc *traceCollector,
	q domain.QueryContext,
	pools []domain.CandidatePool,
	boosts map[string]float64,
	queryEmbedding []float32,
	suffix string,
) []domain.Chunk {
	var merged []domain.Chunk
	e.runStage(ctx, tc, "merge"+suffix, func(context.Context) (domain.StageStatus, map[string]any) {
		merged = mergeCandidatePools(pools...)
		input := 0
		for _, pool := range pools {
			input += len(pool.Chunks)
		}
		return domain.StageSuccess, map[string]any{
			"total_count": len(merged),
			"pool_count":  len(pools),
			"input_count": input,
		}
	})
	tc.snapshot("before_rerank"+suffix, merged)

	chunks := merged
	e.runStage(ctx, tc, "hierarchical_rerank"+suffix, func(context.Context) (domain.StageStatus, map[string]any) {
		if !e.cfg.HierarchicalEnabled {
			return domain.StageSkipped, map[string]any{"total_count": len(chunks), "reason": "disabled"}
		}
		var report hierarchicalReport
		chunks, report = hierarchicalRerank(chunks, hierarchicalOptions{
			TopDocs:       e.cfg.HierarchicalTopDocs,
			SectionBoost:  e.cfg.HierarchicalSectionBoost,
			TargetSection: q.TargetSection,
			LearnedBoosts: boosts,
		})
		status := domain.StageSuccess
		if !report.Applied {
			status = domain.StageSkipped
		}
		return status, map[string]any{
			"total_count":    len(chunks),
			"document_count": report.DocumentCount,
			"top_documents":  report.TopDocumentIDs,
			"penalized":      report.Penalized,
		}
	})

	e.runStage(ctx, tc, "semantic_rerank"+suffix, func(context.Context) (domain.StageStatus, map[string]any) {
		chunks = semanticRerank(q, chunks, e.rerank, queryEmbedding)
		payload := map[string]any{
			"total_count": len(chunks),
			"conceptual":  q.IsConceptual,
		}
		if len(chunks) > 0 {
			payload["score"] = chunks[0].RankingScore()
		}
		return domain.StageSuccess, payload
	})
	return chunks
}

// secondaryPass performs the single bounded secondary fetch for conceptual
// queries that failed validation, then re-ranks the enlarged pool once.
func (e *RetrievalEngine) secondaryPass(
	ctx context.Context,
	tc *traceCollector,
	q domain.QueryContext,
	pools []domain.CandidatePool,
	boosts map[string]float64,
	queryEmbedding []float32,
	ranked []domain.Chunk,
	validation domain.ValidationResult,
) ([]domain.Chunk, domain.ValidationResult, *domain.CandidatePool) {
	if e.secondary == nil {
		tc.decision("secondary_fetch", "skip", "no secondary searcher configured", nil)
		return ranked, validation, nil
	}

	section := q.TargetSection
	if section == "" {
		section = domain.SectionDefinition
	}

	var fetched []domain.Chunk
	var fetchErr error
	e.runStage(ctx, tc, "secondary_fetch", func(ctx context.Context) (domain.StageStatus, map[string]any) {
		fetched, fetchErr = e.secondary.Search(ctx, q.Text(), e.cfg.SecondaryFetchTopK, domain.SearchFilter{SectionType: section})
		if fetchErr != nil {
			return domain.StageFailed, map[string]any{"error": fetchErr.Error(), "section": string(section)}
		}
		return domain.StageSuccess, map[string]any{"total_count": len(fetched), "section": string(section)}
	})
	if fetchErr != nil {
		slog.Warn("secondary_fetch_failed", "trace_id", tc.id(), "section", section, "error", fetchErr)
		e.observeSecondary("error")
		tc.decision("secondary_fetch", "failed", fetchErr.Error(), nil)
		validation.SecondaryFetchUsed = true
		return ranked, validation, nil
	}

	known := make(map[string]struct{}, len(ranked))
	for _, chunk := range ranked {
		known[chunk.Key()] = struct{}{}
	}
	added := 0
	for _, chunk := range fetched {
		if _, ok := known[chunk.Key()]; !ok {
			known[chunk.Key()] = struct{}{}
			added++
		}
	}
	if added == 0 {
		e.observeSecondary("empty")
		tc.decision("secondary_fetch", "no_new_chunks", validation.Reason, map[string]any{"fetched": len(fetched)})
		validation.SecondaryFetchUsed = true
		return ranked, validation, nil
	}

	pool := domain.CandidatePool{Source: "secondary_" + string(section), Chunks: fetched}
	enlarged := make([]domain.CandidatePool, 0, len(pools)+1)
	enlarged = append(enlarged, pools...)
	enlarged = append(enlarged, pool)

	reranked := e.rankPass(ctx, tc, q, enlarged, boosts, queryEmbedding, "_retry")
	revalidated := validateRetrieval(q, reranked, e.cfg.QualityFloor)
	revalidated.SecondaryFetchUsed = true
	revalidated.SecondaryFetchAdded = added

	e.observeSecondary("merged")
	tc.decision("secondary_fetch", "merged", validation.Reason, map[string]any{
		"added":    added,
		"is_valid": revalidated.IsValid,
	})
	return reranked, revalidated, &pool
}

func (e *RetrievalEngine) observeSecondary(status string) {
	if e.observer != nil {
		e.observer.ObserveSecondaryFetch(status)
	}
}

func (e *RetrievalEngine) learnedBoosts(ctx context.Context, tc *traceCollector, qt domain.QueryType) map[string]float64 {
	if !e.memory.enabled() {
		return nil
	}
	boosts, err := e.memory.Boosts(ctx, qt)
	if err != nil {
		e.memoryFailed("boosts", err)
		tc.decision("learned_boosts", "fallback", err.Error(), nil)
		return nil
	}
	return boosts
}

// queryEmbedding embeds the query only when some candidate carries a vector.
func (e *RetrievalEngine) queryEmbedding(ctx context.Context, tc *traceCollector, q domain.QueryContext, pools []domain.CandidatePool) []float32 {
	if e.embedder == nil || !poolsHaveEmbeddings(pools) {
		return nil
	}
	var vector []float32
	e.runStage(ctx, tc, "query_embedding", func(ctx context.Context) (domain.StageStatus, map[string]any) {
		v, err := e.embedder.EmbedQuery(ctx, q.Text())
		if err != nil {
			slog.Warn("query_embedding_failed", "trace_id", tc.id(), "error", err)
			return domain.StageFailed, map[string]any{"error": err.Error()}
		}
		vector = v
		return domain.StageSuccess, map[string]any{"dimensions": len(v)}
	})
	return vector
}

func poolsHaveEmbeddings(pools []domain.CandidatePool) bool {
	for _, pool := range pools {
		for _, chunk := range pool.Chunks {
			if len(chunk.Embedding) > 0 {
				return true
			}
		}
	}
	return false
}

func (e *RetrievalEngine) thresholds(ctx context.Context, tc *traceCollector, q domain.QueryContext) domain.Thresholds {
	base := domain.Thresholds{High: e.cfg.ConfidenceHigh, Low: e.cfg.ConfidenceLow}
	if !e.cfg.AdaptiveThresholds {
		return base
	}

	var out domain.Thresholds
	e.runStage(ctx, tc, "adaptive_thresholds", func(ctx context.Context) (domain.StageStatus, map[string]any) {
		complexity := queryComplexity(q.Text())
		var hints *domain.Thresholds
		if e.memory.enabled() {
			h, err := e.memory.ThresholdHints(ctx, q.QueryType)
			if err != nil {
				e.memoryFailed("threshold_hints", err)
			}
			hints = h
		}
		out = adaptiveThresholds(base, q.QueryType, &complexity, hints)
		return domain.StageSuccess, map[string]any{
			"high":         out.High,
			"low":          out.Low,
			"complexity":   complexity,
			"memory_hints": hints != nil,
		}
	})
	return out
}

// RecordOutcome hands feedback to the publisher, or to the memory store when
// no publisher is configured. It returns immediately; delivery errors are
// logged. Close waits for in-flight deliveries.
func (e *RetrievalEngine) RecordOutcome(ctx context.Context, feedback domain.OutcomeFeedback) {
	feedback.QueryType = domain.ParseQueryType(string(feedback.QueryType))
	feedback.ChunkTypes = append([]string(nil), feedback.ChunkTypes...)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		slog.Warn("outcome_dropped", "reason", "engine closed", "query_type", string(feedback.QueryType))
		return
	}
	e.pending.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.OutcomeTimeout)
		defer cancel()

		if err := e.deliverOutcome(ctx, feedback); err != nil {
			if errors.Is(err, errMemoryDisabled) {
				slog.Debug("outcome_dropped", "reason", "memory disabled")
				return
			}
			e.memoryFailed("record", err)
		}
	}()
}

func (e *RetrievalEngine) deliverOutcome(ctx context.Context, feedback domain.OutcomeFeedback) error {
	if e.publisher != nil {
		err := e.publisher.PublishOutcome(ctx, feedback)
		if err == nil {
			return nil
		}
		slog.Warn("outcome_publish_failed", "query_type", string(feedback.QueryType), "error", err)
		if !e.memory.enabled() {
			return err
		}
	}
	return e.memory.Record(ctx, feedback)
}

// Close blocks until every pending RecordOutcome delivery finishes. Outcomes
// recorded after Close are dropped.
func (e *RetrievalEngine) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.pending.Wait()
}
