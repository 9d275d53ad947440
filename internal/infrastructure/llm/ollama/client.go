package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

const defaultQueryCacheSize = 256

type Client struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, embedModel string) *Client {
	return NewWithOptions(baseURL, embedModel, Options{})
}

func NewWithOptions(baseURL, embedModel string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// Embedder turns query text into vectors. One request usually embeds the
// same text for several searches, so recent query vectors are kept in a
// small bounded cache.
type Embedder struct {
	client *Client

	mu        sync.Mutex
	cache     map[string][]float32
	cacheSize int
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{
		client:    client,
		cache:     make(map[string][]float32),
		cacheSize: defaultQueryCacheSize,
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	err := e.client.executor.Execute(ctx, "ollama.embed", func(ctx context.Context) error {
		return e.client.postJSON(ctx, "/api/embed", request, &response, "embed")
	}, classifyOllamaError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("ollama embed", err)
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := strings.TrimSpace(text)
	if key == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "embed query", errors.New("text is required"))
	}
	if v, ok := e.cached(key); ok {
		return v, nil
	}

	vectors, err := e.Embed(ctx, []string{key})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, errors.New("empty embedding result")
	}
	e.store(key, vectors[0])
	return vectors[0], nil
}

func (e *Embedder) cached(key string) ([]float32, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.cache[key]
	return v, ok
}

func (e *Embedder) store(key string, v []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.cache) >= e.cacheSize {
		clear(e.cache)
	}
	e.cache[key] = v
}
