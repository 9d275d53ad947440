package domain

import "testing"

func TestTraceSummaryKeepsHeadlineFields(t *testing.T) {
	trace := Trace{
		TraceID: "t-1",
		Query:   "q",
		Stages: []TraceStage{
			{Stage: "merge", Status: StageSuccess, Payload: map[string]any{"total_count": 4, "pool_count": 2}},
			{Stage: "confidence", Status: StageSuccess, Payload: map[string]any{"score": 0.7, "level": "HIGH", "top_similarity": 0.9}},
			{Stage: "chunks_snapshot_before_rerank", Status: StageSuccess, Payload: map[string]any{"chunks": []string{"a"}}},
		},
	}

	summary := trace.Summary()
	if len(summary.Stages) != 3 {
		t.Fatalf("expected all stages kept, got %d", len(summary.Stages))
	}
	if _, ok := summary.Stages[0].Payload["pool_count"]; ok {
		t.Fatalf("expected pool_count dropped")
	}
	if summary.Stages[0].Payload["total_count"] != 4 {
		t.Fatalf("expected total_count kept")
	}
	if summary.Stages[1].Payload["level"] != "HIGH" || len(summary.Stages[1].Payload) != 2 {
		t.Fatalf("unexpected confidence payload %+v", summary.Stages[1].Payload)
	}
	if summary.Stages[2].Payload != nil {
		t.Fatalf("expected nil payload for snapshot, got %+v", summary.Stages[2].Payload)
	}
	if trace.Stages[0].Payload["pool_count"] != 2 {
		t.Fatalf("summary must not modify the original trace")
	}
}

func TestParseQueryType(t *testing.T) {
	cases := map[string]QueryType{
		"Multi Hop":         QueryMultiHop,
		"FACT_VERIFICATION": QueryFactVerification,
		"fact-verification": QueryFactVerification,
		" conceptual ":      QueryConceptual,
		"weird":             QueryGeneral,
		"":                  QueryGeneral,
	}
	for raw, want := range cases {
		if got := ParseQueryType(raw); got != want {
			t.Fatalf("%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestChunkKeyFallsBackToTextHash(t *testing.T) {
	a := Chunk{Text: "same"}
	b := Chunk{Text: "same"}
	if a.Key() != b.Key() || a.Key() == "" {
		t.Fatalf("expected stable text hash key")
	}
	if (Chunk{ChunkID: "c-1", Text: "same"}).Key() != "c-1" {
		t.Fatalf("expected chunk id key")
	}
}
