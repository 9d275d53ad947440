package domain

type SearchFilter struct {
	SectionType SectionType
	DocumentID  string
	SourceTypes []SourceType
}

// CandidatePool is one source's list of candidates (vector, keyword, section lookup...).
type CandidatePool struct {
	Source string  `json:"source"`
	Chunks []Chunk `json:"chunks"`
}

type RetrievalResult struct {
	Chunks     []Chunk             `json:"chunks"`
	Confidence RetrievalConfidence `json:"confidence"`
	Failure    FailurePrediction   `json:"failure"`
	Coverage   CoverageReport      `json:"coverage"`
	Validation ValidationResult    `json:"validation"`
	Trace      Trace               `json:"trace"`

	// SecondaryPool holds the chunks added by the secondary fetch, if one ran.
	SecondaryPool *CandidatePool `json:"-"`
}

// SectionTypes lists the distinct sections of the result chunks in order of first appearance.
func (r RetrievalResult) SectionTypes() []string {
	seen := make(map[SectionType]struct{}, len(r.Chunks))
	out := make([]string, 0, len(r.Chunks))
	for _, chunk := range r.Chunks {
		sec := chunk.Section()
		if _, ok := seen[sec]; ok {
			continue
		}
		seen[sec] = struct{}{}
		out = append(out, string(sec))
	}
	return out
}
