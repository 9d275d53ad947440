package usecase

import (
	"time"

	"github.com/google/uuid"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const snapshotPreview = 5

// traceCollector records pipeline stages for one request. It is not safe for
// concurrent use.
type traceCollector struct {
	trace domain.Trace
	start time.Time
	now   func() time.Time
}

func newTraceCollector(query string, now func() time.Time) *traceCollector {
	if now == nil {
		now = time.Now
	}
	return &traceCollector{
		trace: domain.Trace{
			TraceID:  uuid.NewString(),
			Query:    query,
			Metadata: map[string]string{},
			Stages:   make([]domain.TraceStage, 0, 16),
		},
		start: now(),
		now:   now,
	}
}

func (c *traceCollector) id() string { return c.trace.TraceID }

func (c *traceCollector) setMetadata(key, value string) {
	c.trace.Metadata[key] = value
}

func (c *traceCollector) logStage(name string, status domain.StageStatus, duration time.Duration, payload map[string]any) {
	c.trace.Stages = append(c.trace.Stages, domain.TraceStage{
		Stage:      name,
		Status:     status,
		OffsetMS:   c.now().Sub(c.start).Milliseconds(),
		DurationMS: float64(duration.Microseconds()) / 1000,
		Payload:    payload,
	})
}

func (c *traceCollector) snapshot(label string, chunks []domain.Chunk) {
	preview := trimCandidates(chunks, snapshotPreview)
	entries := make([]map[string]any, 0, len(preview))
	for _, chunk := range preview {
		entry := map[string]any{
			"chunk_id":     chunk.ChunkID,
			"document_id":  chunk.DocumentID,
			"score":        chunk.RawScore,
			"text_len":     len(chunk.Text),
			"section_type": string(chunk.Section()),
			"source_type":  string(chunk.SourceType),
		}
		if chunk.Annotations.RerankScore != nil {
			entry["rerank_score"] = *chunk.Annotations.RerankScore
		}
		entries = append(entries, entry)
	}
	c.logStage("chunks_snapshot_"+label, domain.StageSuccess, 0, map[string]any{
		"total_count":   len(chunks),
		"preview_count": len(entries),
		"chunks":        entries,
	})
}

func (c *traceCollector) decision(name, decision, reason string, extra map[string]any) {
	payload := map[string]any{"decision": decision, "reason": reason}
	for k, v := range extra {
		payload[k] = v
	}
	c.logStage("decision_"+name, domain.StageSuccess, 0, payload)
}

func (c *traceCollector) finish() domain.Trace {
	c.trace.TotalDurationMS = c.now().Sub(c.start).Milliseconds()
	return c.trace
}
