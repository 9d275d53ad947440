package usecase

import (
	"regexp"
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

// QueryTypeResult is the outcome of rule-based query type classification.
type QueryTypeResult struct {
	QueryType  domain.QueryType
	Confidence float64
	Pattern    string
}

type queryTypeRule struct {
	queryType  domain.QueryType
	confidence float64
	patterns   []*regexp.Regexp
}

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// Rules are checked in order; the first match wins.
var queryTypeRules = []queryTypeRule{
	{
		queryType:  domain.QueryFactVerification,
		confidence: 0.8,
		patterns: compileAll(
			`^(is|are|did|does|was|were|can|could|should|would) `,
			`\b(true|false|correct|incorrect|right|wrong|accurate)\b`,
			`verify that`,
			`check if`,
			`confirm whether`,
		),
	},
	{
		queryType:  domain.QueryConceptual,
		confidence: 0.85,
		patterns: compileAll(
			`what is`,
			`define`,
			`explain`,
			`concept of`,
			`meaning of`,
			`principle of`,
			`definition of`,
			`how does .* work`,
		),
	},
	{
		queryType:  domain.QueryComparative,
		confidence: 0.85,
		patterns: compileAll(
			`compare`,
			`difference between`,
			`versus`,
			`\bvs\b`,
			`similarity between`,
			`pros and cons`,
			`advantages and disadvantages`,
		),
	},
	{
		queryType:  domain.QueryTemporal,
		confidence: 0.75,
		patterns: compileAll(
			`when did`,
			`timeline`,
			`history of`,
			`evolution of`,
			`\bbefore\b`,
			`\bafter\b`,
			`\bduring\b`,
			`\d{4}`,
		),
	},
	{
		queryType:  domain.QueryMultiHop,
		confidence: 0.6,
		patterns: compileAll(
			`blockers .* causing`,
			`effect of .* on`,
			`relationship between .* and`,
			`connection between`,
			`impact of`,
		),
	},
}

// ClassifyQueryType assigns a structural query type using ordered pattern rules.
func ClassifyQueryType(query string) QueryTypeResult {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, rule := range queryTypeRules {
		for _, pattern := range rule.patterns {
			if pattern.MatchString(lower) {
				return QueryTypeResult{
					QueryType:  rule.queryType,
					Confidence: rule.confidence,
					Pattern:    pattern.String(),
				}
			}
		}
	}
	return QueryTypeResult{QueryType: domain.QueryGeneral, Confidence: 0.5}
}

// NormalizeQueryContext fills in the query type and conceptual flag when the
// caller left them empty.
func NormalizeQueryContext(q domain.QueryContext) domain.QueryContext {
	if q.QueryType == "" {
		q.QueryType = ClassifyQueryType(q.Text()).QueryType
		if !q.IsConceptual {
			q.IsConceptual = q.QueryType == domain.QueryConceptual
		}
	} else {
		q.QueryType = domain.ParseQueryType(string(q.QueryType))
	}
	if q.Intent == "" {
		q.Intent = domain.IntentGeneral
	}
	return q
}
