package domain

import (
	"fmt"
	"hash/fnv"
	"strings"
)

type SourceType string

const (
	SourcePDF     SourceType = "pdf"
	SourceWeb     SourceType = "web"
	SourceYouTube SourceType = "youtube"
	SourceNote    SourceType = "note"
	SourceFile    SourceType = "file"
	SourceWebsite SourceType = "website"
)

// IsUserSourced reports whether the chunk came from content the user uploaded or wrote.
func (s SourceType) IsUserSourced() bool {
	switch s {
	case SourcePDF, SourceFile, SourceNote:
		return true
	default:
		return false
	}
}

type SectionType string

const (
	SectionDefinition       SectionType = "definition"
	SectionIntroduction     SectionType = "introduction"
	SectionOverview         SectionType = "overview"
	SectionMethodology      SectionType = "methodology"
	SectionResults          SectionType = "results"
	SectionDiscussion       SectionType = "discussion"
	SectionAbstract         SectionType = "abstract"
	SectionConclusion       SectionType = "conclusion"
	SectionLiteratureReview SectionType = "literature_review"
	SectionBody             SectionType = "body"
	SectionAppendix         SectionType = "appendix"
	SectionAcknowledgements SectionType = "acknowledgements"
	SectionReferences       SectionType = "references"
)

// Annotations carries the fields derived by the reranking stages. Nil means
// the stage did not run for this chunk.
type Annotations struct {
	RerankScore             *float64     `json:"rerank_score,omitempty"`
	SemanticScore           *float64     `json:"semantic_score,omitempty"`
	KeywordScore            *float64     `json:"keyword_score,omitempty"`
	SectionScore            *float64     `json:"section_score,omitempty"`
	DocumentScore           *float64     `json:"document_score,omitempty"`
	DefinitionPresenceScore *float64     `json:"definition_presence_score,omitempty"`
	InfoDensityScore        *float64     `json:"info_density_score,omitempty"`
	IsGeneric               *bool        `json:"is_generic,omitempty"`
	HierarchicalDocRank     *int         `json:"hierarchical_doc_rank,omitempty"`
	HierarchicalSection     *SectionType `json:"hierarchical_section,omitempty"`
	HierarchicalBoost       *float64     `json:"hierarchical_boost,omitempty"`
	ClusterSize             *int         `json:"cluster_size,omitempty"`
}

type Chunk struct {
	ChunkID         string      `json:"chunk_id,omitempty"`
	DocumentID      string      `json:"document_id"`
	Text            string      `json:"text"`
	SourceType      SourceType  `json:"source_type"`
	SectionType     SectionType `json:"section_type,omitempty"`
	ChunkIndex      int         `json:"chunk_index"`
	RawScore        float64     `json:"raw_score"`
	NormalizedScore float64     `json:"normalized_score"`
	Embedding       []float32   `json:"embedding,omitempty"`
	Annotations     Annotations `json:"annotations"`
}

// Section returns the chunk's section, defaulting to body.
func (c Chunk) Section() SectionType {
	if c.SectionType == "" {
		return SectionBody
	}
	return c.SectionType
}

// Key is the merge identity: the chunk id when present, otherwise a hash of the text.
func (c Chunk) Key() string {
	if id := strings.TrimSpace(c.ChunkID); id != "" {
		return id
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(c.Text))
	return fmt.Sprintf("text_hash_%016x", h.Sum64())
}

// RankingScore is the score later stages order by: the rerank score once the
// semantic reranker has run, the raw score before that.
func (c Chunk) RankingScore() float64 {
	if c.Annotations.RerankScore != nil {
		return *c.Annotations.RerankScore
	}
	return c.RawScore
}

func Float(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

func Bool(v bool) *bool { return &v }

func Section(v SectionType) *SectionType { return &v }
