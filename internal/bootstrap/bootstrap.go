package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chandankumar123456/intellisense-ai/internal/config"
	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
	"github.com/chandankumar123456/intellisense-ai/internal/core/usecase"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/llm/ollama"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/queue/nats"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/repository/postgres"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/repository/sqlite"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/vector/qdrant"
	"github.com/sony/gobreaker/v2"
)

type Role int

const (
	RoleAPI Role = iota
	RoleWorker
)

type Options struct {
	Role     Role
	Observer ports.StageObserver
	// BreakerListener receives breaker transitions with gobreaker state names.
	BreakerListener func(operation, from, to string)
}

type App struct {
	Config config.Config

	Engine  *usecase.RetrievalEngine
	Memory  *usecase.RetrievalMemory
	QueryUC ports.RetrievalQueryService
	Queue   *nats.OutcomeQueue

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (_ *App, err error) {
	app := &App{Config: cfg}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	profiles, err := config.LoadWeightProfiles(cfg.WeightProfilesPath)
	if err != nil {
		return nil, err
	}

	newExecutor := func(base resilience.Config) *resilience.Executor {
		executor := resilience.NewExecutor(base)
		if opts.BreakerListener != nil {
			listener := opts.BreakerListener
			executor.WithStateListener(func(operation string, from, to gobreaker.State) {
				listener(operation, from.String(), to.String())
			})
		}
		return executor
	}

	repo, err := app.openOutcomeRepository(ctx, cfg, newExecutor(resilience.StoreConfig()))
	if err != nil {
		return nil, err
	}
	if repo != nil {
		app.Memory = usecase.NewRetrievalMemory(repo, cfg.MemoryDecayWindow(), cfg.MemoryCacheTTL)
	}

	if cfg.NATSEnabled {
		queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSOutcomeSubject, nats.Options{
			ResilienceExecutor: newExecutor(resilience.DefaultConfig()),
		})
		if err != nil {
			return nil, fmt.Errorf("init outcome queue: %w", err)
		}
		app.Queue = queue
		app.closeFns = append(app.closeFns, queue.Close)
	}

	var embedder ports.Embedder
	if cfg.OllamaURL != "" {
		embedder = ollama.NewEmbedder(ollama.NewWithOptions(cfg.OllamaURL, cfg.OllamaEmbedModel, ollama.Options{
			ResilienceExecutor: newExecutor(resilience.DefaultConfig()),
		}))
	}

	var (
		vectorSearcher  ports.ChunkSearcher
		keywordSearcher ports.ChunkSearcher
		neighbors       ports.NeighborFetcher
	)
	if cfg.QdrantURL != "" {
		client := qdrant.NewWithOptions(cfg.QdrantURL, cfg.QdrantCollection, qdrant.Options{
			ResilienceExecutor: newExecutor(resilience.DefaultConfig()),
		})
		keywordSearcher = client.LexicalSearcher(usecase.QueryStopwords())
		if embedder != nil {
			vectorSearcher = client.SemanticSearcher(embedder)
		}
		neighbors = client
	}

	// Definition lookups during the secondary fetch prefer dense search.
	secondary := keywordSearcher
	if vectorSearcher != nil {
		secondary = vectorSearcher
	}

	// The worker never publishes: it is the consumer that persists outcomes.
	var publisher ports.OutcomePublisher
	if app.Queue != nil && opts.Role == RoleAPI {
		publisher = app.Queue
	}

	app.Engine = usecase.NewRetrievalEngine(engineConfig(cfg, profiles), app.Memory, embedder, secondary, publisher, opts.Observer)
	app.closeFns = append(app.closeFns, app.Engine.Close)

	if vectorSearcher != nil || keywordSearcher != nil {
		app.QueryUC = usecase.NewRetrievalQueryUseCase(app.Engine, vectorSearcher, keywordSearcher, neighbors, usecase.QueryOptions{
			VectorTopK:     cfg.RetrievalTopKVector,
			KeywordTopK:    cfg.RetrievalTopKKeyword,
			GapFillEnabled: cfg.CoverageGapFillEnabled,
		})
	}

	slog.Info("bootstrap_ready",
		"memory_backend", cfg.MemoryBackend,
		"nats_enabled", cfg.NATSEnabled,
		"embedder", embedder != nil,
		"vector_search", vectorSearcher != nil,
		"keyword_search", keywordSearcher != nil,
	)
	return app, nil
}

func (a *App) openOutcomeRepository(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.OutcomeRepository, error) {
	switch cfg.MemoryBackend {
	case config.MemoryBackendNone:
		return nil, nil
	case config.MemoryBackendPostgres:
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		repo := postgres.NewOutcomeRepository(db, executor)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, nil
	case config.MemoryBackendSQLite, "":
		repo, err := sqlite.Open(cfg.MemorySQLitePath, executor)
		if err != nil {
			return nil, fmt.Errorf("open sqlite memory: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { _ = repo.Close() })
		return repo, nil
	default:
		return nil, fmt.Errorf("unknown MEMORY_BACKEND %q", cfg.MemoryBackend)
	}
}

func engineConfig(cfg config.Config, profiles domain.WeightProfiles) usecase.EngineConfig {
	return usecase.EngineConfig{
		HierarchicalEnabled:      cfg.HierarchicalEnabled,
		HierarchicalTopDocs:      cfg.HierarchicalTopDocs,
		HierarchicalSectionBoost: cfg.HierarchicalSectionBoost,
		ClusterOverlapThreshold:  cfg.ClusterOverlapThreshold,
		ClusterMaxOutput:         cfg.ClusterMaxOutput,
		CoverageMin:              cfg.SemanticCoverageMin,
		CoverageGapFloor:         cfg.CoverageGapFloor,
		MaxGapFillQueries:        cfg.MaxGapFillQueries,
		ConfidenceHigh:           cfg.RetrievalConfidenceHigh,
		ConfidenceLow:            cfg.RetrievalConfidenceLow,
		AdaptiveThresholds:       cfg.AdaptiveConfidenceEnabled,
		RiskRetryThreshold:       cfg.FailureRiskRetryThreshold,
		RiskGroundThreshold:      cfg.FailureRiskGroundThreshold,
		QualityFloor:             cfg.ValidationQualityFloor,
		SecondaryFetchTopK:       cfg.SecondaryFetchTopK,
		Profiles:                 profiles,
	}
}

// Close releases resources in reverse order of acquisition, so pending
// outcome deliveries drain before the queue and store close.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
