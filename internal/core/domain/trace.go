package domain

type StageStatus string

const (
	StageSuccess StageStatus = "success"
	StageSkipped StageStatus = "skipped"
	StageFailed  StageStatus = "failed"
	StagePartial StageStatus = "partial"
)

type TraceStage struct {
	Stage      string         `json:"stage"`
	Status     StageStatus    `json:"status"`
	OffsetMS   int64          `json:"timestamp_ms"`
	DurationMS float64        `json:"duration_ms"`
	Payload    map[string]any `json:"data,omitempty"`
}

type Trace struct {
	TraceID         string            `json:"trace_id"`
	Query           string            `json:"query"`
	TotalDurationMS int64             `json:"total_duration_ms"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	Stages          []TraceStage      `json:"stages"`
}

// summaryKeys are the payload fields kept by Summary.
var summaryKeys = []string{
	"total_count", "score", "level", "decision", "risk_level",
	"clusters_formed", "coverage_score", "gaps_found",
}

// Summary drops stage payloads except a few headline numbers.
func (t Trace) Summary() Trace {
	out := Trace{
		TraceID:         t.TraceID,
		Query:           t.Query,
		TotalDurationMS: t.TotalDurationMS,
		Metadata:        t.Metadata,
		Stages:          make([]TraceStage, 0, len(t.Stages)),
	}
	for _, stage := range t.Stages {
		entry := TraceStage{
			Stage:      stage.Stage,
			Status:     stage.Status,
			OffsetMS:   stage.OffsetMS,
			DurationMS: stage.DurationMS,
		}
		for _, key := range summaryKeys {
			v, ok := stage.Payload[key]
			if !ok {
				continue
			}
			if entry.Payload == nil {
				entry.Payload = make(map[string]any, len(summaryKeys))
			}
			entry.Payload[key] = v
		}
		out.Stages = append(out.Stages, entry)
	}
	return out
}

// Stage returns the first stage with the given name.
func (t Trace) Stage(name string) (TraceStage, bool) {
	for _, stage := range t.Stages {
		if stage.Stage == name {
			return stage, true
		}
	}
	return TraceStage{}, false
}
