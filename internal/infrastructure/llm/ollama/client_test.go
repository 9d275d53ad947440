package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"github.com/chandankumar123456/intellisense-ai/internal/infrastructure/resilience"
)

func TestEmbedQuerySendsModelAndCaches(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed" {
			http.NotFound(w, r)
			return
		}
		atomic.AddInt32(&calls, 1)
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if payload["model"] != "nomic-embed-text" {
			t.Errorf("unexpected model %v", payload["model"])
		}
		_, _ = w.Write([]byte(`{"embeddings":[[0.1,0.2,0.3]]}`))
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "nomic-embed-text"))
	for i := 0; i < 3; i++ {
		v, err := embedder.EmbedQuery(context.Background(), " what is entropy ")
		if err != nil {
			t.Fatalf("EmbedQuery() error = %v", err)
		}
		if len(v) != 3 {
			t.Fatalf("expected 3 dimensions, got %d", len(v))
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected cached query vector, got %d requests", got)
	}
}

func TestEmbedQueryRejectsEmptyText(t *testing.T) {
	_, err := NewEmbedder(New("http://127.0.0.1:1", "embed")).EmbedQuery(context.Background(), "  ")
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEmbedIncludesHTTPBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "embed"))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected bad gateway to be temporary, got %v", err)
	}
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "loading model", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"embeddings":[[1,0]]}`))
	}))
	defer server.Close()

	client := NewWithOptions(server.URL, "embed", Options{
		ResilienceExecutor: resilience.NewExecutor(resilience.Config{
			RetryMaxAttempts:    3,
			RetryInitialBackoff: time.Millisecond,
			RetryMaxBackoff:     time.Millisecond,
		}),
	})
	v, err := NewEmbedder(client).EmbedQuery(context.Background(), "q")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if len(v) != 2 || atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("unexpected result %v after %d calls", v, calls)
	}
}

func TestClassifyOllamaError(t *testing.T) {
	notFound := &HTTPStatusError{Operation: "embed", StatusCode: http.StatusNotFound, Status: "404 Not Found"}
	if class := classifyOllamaError(notFound); class.Retryable {
		t.Fatalf("expected unknown model not to be retried")
	}
	badRequest := &HTTPStatusError{Operation: "embed", StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}
	if class := classifyOllamaError(badRequest); class.Retryable || class.RecordFailure {
		t.Fatalf("expected bad request to be neither retried nor recorded, got %+v", class)
	}
	if class := classifyOllamaError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", class)
	}
}
