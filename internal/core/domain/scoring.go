package domain

type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "HIGH"
	ConfidenceMedium ConfidenceLevel = "MEDIUM"
	ConfidenceLow    ConfidenceLevel = "LOW"
)

type Recommendation string

const (
	RecommendProceed      Recommendation = "proceed"
	RecommendExpand       Recommendation = "expand"
	RecommendRetry        Recommendation = "retry"
	RecommendGroundedOnly Recommendation = "grounded_only"
)

type RetrievalConfidence struct {
	Score              float64         `json:"score"`
	Level              ConfidenceLevel `json:"level"`
	TopSimilarity      float64         `json:"top_similarity"`
	ScoreGap           float64         `json:"score_gap"`
	KeywordOverlap     float64         `json:"keyword_overlap"`
	SemanticCoverage   float64         `json:"semantic_coverage"`
	InformationDensity float64         `json:"information_density"`
	Recommendation     Recommendation  `json:"recommendation"`
	Thresholds         Thresholds      `json:"thresholds"`
}

// Thresholds are the (high, low) confidence cut points.
type Thresholds struct {
	High float64 `json:"high"`
	Low  float64 `json:"low"`
}

type FailureSignals struct {
	SemanticCoverage float64 `json:"semantic_coverage"`
	AnswerSignal     float64 `json:"answer_signal"`
	Fragmentation    float64 `json:"fragmentation"`
	Stability        float64 `json:"stability"`
}

type FailurePrediction struct {
	RiskLevel    float64        `json:"risk_level"`
	ShouldRetry  bool           `json:"should_retry"`
	ShouldExpand bool           `json:"should_expand"`
	ShouldGround bool           `json:"should_ground"`
	Signals      FailureSignals `json:"signals"`
	Explanation  string         `json:"explanation"`
}

type ConceptCoverage struct {
	Concept string  `json:"concept"`
	Score   float64 `json:"score"`
}

type CoverageReport struct {
	Concepts       []string          `json:"concepts"`
	CoverageScores []ConceptCoverage `json:"coverage_scores"`
	Overall        float64           `json:"overall_coverage"`
	Gaps           []string          `json:"gaps"`
	NeedsGapFill   bool              `json:"needs_gap_fill"`
	GapQueries     []string          `json:"gap_queries"`
}

type ValidationResult struct {
	IsValid             bool    `json:"is_valid"`
	Reason              string  `json:"reason"`
	TopScore            float64 `json:"top_score"`
	SectionMatchCount   int     `json:"section_match_count"`
	DocumentMatchCount  int     `json:"document_match_count"`
	ShouldRetry         bool    `json:"should_retry"`
	SecondaryFetchUsed  bool    `json:"secondary_fetch_used"`
	SecondaryFetchAdded int     `json:"secondary_fetch_added"`
}

// ConfidenceWeights weights the five retrieval confidence signals.
type ConfidenceWeights struct {
	TopSimilarity      float64 `yaml:"top_similarity" json:"top_similarity"`
	ScoreGap           float64 `yaml:"score_gap" json:"score_gap"`
	KeywordOverlap     float64 `yaml:"keyword_overlap" json:"keyword_overlap"`
	SemanticCoverage   float64 `yaml:"semantic_coverage" json:"semantic_coverage"`
	InformationDensity float64 `yaml:"information_density" json:"information_density"`
}

func (w ConfidenceWeights) Sum() float64 {
	return w.TopSimilarity + w.ScoreGap + w.KeywordOverlap + w.SemanticCoverage + w.InformationDensity
}

// RerankWeights weights the semantic reranker's signals.
type RerankWeights struct {
	Semantic    float64 `yaml:"semantic" json:"semantic"`
	Keyword     float64 `yaml:"keyword" json:"keyword"`
	Section     float64 `yaml:"section" json:"section"`
	Document    float64 `yaml:"document" json:"document"`
	Definition  float64 `yaml:"definition" json:"definition"`
	InfoDensity float64 `yaml:"info_density" json:"info_density"`
}

func (w RerankWeights) Sum() float64 {
	return w.Semantic + w.Keyword + w.Section + w.Document + w.Definition + w.InfoDensity
}

// WeightProfiles holds optional overrides loaded from configuration.
type WeightProfiles struct {
	Confidence       map[QueryType]ConfidenceWeights
	RerankConceptual *RerankWeights
	RerankDefault    *RerankWeights
}
