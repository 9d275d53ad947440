package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/core/ports"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

const (
	defaultSparseVectorName = "text-sparse"
	neighborWindow          = 1
)

// Client reads chunks from a collection populated by the ingest pipeline.
// Payload fields: doc_id, chunk_id, text, source_type, section_type, chunk_index.
type Client struct {
	baseURL    string
	collection string
	sparseName string
	httpClient *http.Client
	executor   *resilience.Executor
}

type Options struct {
	SparseVectorName   string
	Timeout            time.Duration
	ResilienceExecutor *resilience.Executor
}

func New(baseURL, collection string) *Client {
	return NewWithOptions(baseURL, collection, Options{})
}

func NewWithOptions(baseURL, collection string, options Options) *Client {
	timeout := options.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	sparseName := options.SparseVectorName
	if sparseName == "" {
		sparseName = defaultSparseVectorName
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		sparseName: sparseName,
		httpClient: &http.Client{Timeout: timeout},
		executor:   options.ResilienceExecutor,
	}
}

// SemanticSearcher embeds the query and runs a dense vector search. Hits
// carry their stored vectors so the reranker can compute cosine similarity.
func (c *Client) SemanticSearcher(embedder ports.Embedder) ports.ChunkSearcher {
	return &semanticSearcher{client: c, embedder: embedder}
}

// LexicalSearcher runs a BM25-style search over the collection's sparse vector.
func (c *Client) LexicalSearcher(stopwords map[string]struct{}) ports.ChunkSearcher {
	return &lexicalSearcher{client: c, stopwords: stopwords}
}

type semanticSearcher struct {
	client   *Client
	embedder ports.Embedder
}

func (s *semanticSearcher) Search(ctx context.Context, query string, topK int, filter domain.SearchFilter) ([]domain.Chunk, error) {
	if s.embedder == nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant semantic search", errors.New("embedder is not configured"))
	}
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vector) == 0 {
		return []domain.Chunk{}, nil
	}
	return s.client.search(ctx, "qdrant.semantic_search", map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  true,
	}, filter)
}

type lexicalSearcher struct {
	client    *Client
	stopwords map[string]struct{}
}

func (s *lexicalSearcher) Search(ctx context.Context, query string, topK int, filter domain.SearchFilter) ([]domain.Chunk, error) {
	sparse := encodeSparseQuery(query, s.stopwords)
	if len(sparse.Indices) == 0 {
		return []domain.Chunk{}, nil
	}
	return s.client.search(ctx, "qdrant.lexical_search", map[string]any{
		"vector": map[string]any{
			"name":   s.client.sparseName,
			"vector": sparse,
		},
		"limit":        topK,
		"with_payload": true,
	}, filter)
}

type scoredPoint struct {
	ID      any             `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
	Vector  json.RawMessage `json:"vector,omitempty"`
}

func (c *Client) search(ctx context.Context, operation string, reqBody map[string]any, filter domain.SearchFilter) ([]domain.Chunk, error) {
	if topK, _ := reqBody["limit"].(int); topK <= 0 {
		return []domain.Chunk{}, nil
	}
	if f := buildFilter(filter); f != nil {
		reqBody["filter"] = f
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	if err := c.post(ctx, operation, url, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(searchResp.Result))
	for _, point := range searchResp.Result {
		out = append(out, pointToChunk(point))
	}
	return out, nil
}

// FetchNeighbors returns the chunks directly before and after chunkIndex in
// the same document.
func (c *Client) FetchNeighbors(ctx context.Context, documentID string, chunkIndex int) ([]domain.Chunk, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "fetch neighbors", errors.New("document id is required"))
	}
	reqBody := map[string]any{
		"limit":        2*neighborWindow + 1,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "doc_id", "match": map[string]any{"value": documentID}},
				{"key": "chunk_index", "range": map[string]any{
					"gte": chunkIndex - neighborWindow,
					"lte": chunkIndex + neighborWindow,
				}},
			},
		},
	}

	var scrollResp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/scroll", c.baseURL, c.collection)
	if err := c.post(ctx, "qdrant.fetch_neighbors", url, reqBody, &scrollResp); err != nil {
		return nil, err
	}

	out := make([]domain.Chunk, 0, len(scrollResp.Result.Points))
	for _, point := range scrollResp.Result.Points {
		chunk := pointToChunk(point)
		if chunk.ChunkIndex == chunkIndex {
			continue
		}
		out = append(out, chunk)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, operation, url string, reqBody any, out any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return domain.WrapError(domain.ErrTemporary, operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			statusErr := fmt.Errorf("%s status: %s: %s", operation, resp.Status, strings.TrimSpace(string(msg)))
			if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
				return domain.WrapError(domain.ErrTemporary, operation, statusErr)
			}
			if resp.StatusCode == http.StatusNotFound {
				return domain.WrapError(domain.ErrNotFound, operation, statusErr)
			}
			return statusErr
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	return c.executor.Execute(ctx, operation, call, classifyQdrantError)
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.DomainClassifier(err)
}

func buildFilter(filter domain.SearchFilter) map[string]any {
	must := make([]map[string]any, 0, 3)
	if filter.SectionType != "" {
		must = append(must, map[string]any{"key": "section_type", "match": map[string]any{"value": string(filter.SectionType)}})
	}
	if filter.DocumentID != "" {
		must = append(must, map[string]any{"key": "doc_id", "match": map[string]any{"value": filter.DocumentID}})
	}
	if len(filter.SourceTypes) > 0 {
		anyOf := make([]string, 0, len(filter.SourceTypes))
		for _, st := range filter.SourceTypes {
			anyOf = append(anyOf, string(st))
		}
		must = append(must, map[string]any{"key": "source_type", "match": map[string]any{"any": anyOf}})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func pointToChunk(point scoredPoint) domain.Chunk {
	chunkID := getStringPayload(point.Payload, "chunk_id")
	if chunkID == "" && point.ID != nil {
		chunkID = fmt.Sprintf("%v", point.ID)
	}
	chunk := domain.Chunk{
		ChunkID:     chunkID,
		DocumentID:  getStringPayload(point.Payload, "doc_id"),
		Text:        getStringPayload(point.Payload, "text"),
		SourceType:  domain.SourceType(getStringPayload(point.Payload, "source_type")),
		SectionType: domain.SectionType(getStringPayload(point.Payload, "section_type")),
		ChunkIndex:  getIntPayload(point.Payload, "chunk_index"),
		RawScore:    point.Score,
	}
	if len(point.Vector) > 0 {
		var dense []float32
		if err := json.Unmarshal(point.Vector, &dense); err == nil {
			chunk.Embedding = dense
		}
	}
	return chunk
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case string:
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return 0
}
