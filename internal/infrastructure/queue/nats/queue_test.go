package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

func TestEncodeDecodeOutcome(t *testing.T) {
	in := domain.OutcomeFeedback{
		Query:          "what is entropy",
		QueryType:      domain.QueryConceptual,
		ChunkTypes:     []string{"definition", "body"},
		Confidence:     0.72,
		Recommendation: domain.RecommendProceed,
		OutcomeQuality: 0.9,
	}
	payload, err := encodeOutcome(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := decodeOutcome(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Query != in.Query || out.QueryType != in.QueryType || len(out.ChunkTypes) != 2 || out.OutcomeQuality != 0.9 {
		t.Fatalf("unexpected decoded outcome %+v", out)
	}
}

func TestDecodeOutcomeRejectsBadPayload(t *testing.T) {
	if _, err := decodeOutcome([]byte("doc-123")); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for non-json payload, got %v", err)
	}
	if _, err := decodeOutcome([]byte(`{"query":"  "}`)); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty query, got %v", err)
	}
}

func TestHandleMessage(t *testing.T) {
	var got []domain.OutcomeFeedback
	handler := func(_ context.Context, feedback domain.OutcomeFeedback) error {
		got = append(got, feedback)
		return errors.New("store down")
	}

	handleMessage(context.Background(), []byte(`{"query":"q","query_type":"temporal"}`), handler)
	handleMessage(context.Background(), []byte(`not json`), handler)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	handleMessage(canceled, []byte(`{"query":"q"}`), handler)

	if len(got) != 1 || got[0].QueryType != domain.QueryTemporal {
		t.Fatalf("expected exactly one handled outcome, got %+v", got)
	}
}

func TestClassifyNATSError(t *testing.T) {
	if class := classifyNATSError(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed)); !class.Retryable || !class.RecordFailure {
		t.Fatalf("expected closed connection to be retryable, got %+v", class)
	}
	if class := classifyNATSError(nats.ErrMaxPayload); class.Retryable || class.RecordFailure {
		t.Fatalf("expected max payload to be neither retried nor recorded, got %+v", class)
	}
	if class := classifyNATSError(context.Canceled); class.Retryable || class.RecordFailure {
		t.Fatalf("expected cancellation to be ignored, got %+v", class)
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", nats.ErrNoServers))
	if !errors.Is(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	plain := errors.New("bad subject")
	if wrapped := wrapTemporaryIfNeeded(plain); wrapped != plain {
		t.Fatalf("expected permanent error unchanged, got %v", wrapped)
	}
}
