package domain

import "strings"

type QueryType string

const (
	QueryConceptual       QueryType = "conceptual"
	QueryFactVerification QueryType = "fact_verification"
	QueryComparative      QueryType = "comparative"
	QueryMultiHop         QueryType = "multi_hop"
	QueryTemporal         QueryType = "temporal"
	QueryGeneral          QueryType = "general"
)

// ParseQueryType normalizes free-form type names ("Multi Hop", "FACT_VERIFICATION").
// Unknown values map to general.
func ParseQueryType(raw string) QueryType {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch QueryType(normalized) {
	case QueryConceptual, QueryFactVerification, QueryComparative, QueryMultiHop, QueryTemporal:
		return QueryType(normalized)
	default:
		return QueryGeneral
	}
}

type QueryIntent string

const (
	IntentGeneral          QueryIntent = "general"
	IntentDocumentSection  QueryIntent = "document_section"
	IntentDocumentSpecific QueryIntent = "document_specific"
)

// RequiresUserDocuments reports whether the intent asks for the user's own documents.
func (i QueryIntent) RequiresUserDocuments() bool {
	return i == IntentDocumentSection || i == IntentDocumentSpecific
}

// QueryContext is built once per request and not modified afterwards.
type QueryContext struct {
	RawQuery            string      `json:"raw_query"`
	EffectiveQuery      string      `json:"effective_query,omitempty"`
	IsConceptual        bool        `json:"is_conceptual"`
	TargetSection       SectionType `json:"target_section,omitempty"`
	QueryType           QueryType   `json:"query_type"`
	Intent              QueryIntent `json:"intent,omitempty"`
	PreferUserDocuments bool        `json:"prefer_user_documents"`
}

// Text returns the rewritten query when present, the raw query otherwise.
func (q QueryContext) Text() string {
	if strings.TrimSpace(q.EffectiveQuery) != "" {
		return q.EffectiveQuery
	}
	return q.RawQuery
}
