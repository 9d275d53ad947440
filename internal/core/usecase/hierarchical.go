package usecase

import (
	"math"
	"sort"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	hierarchicalMinChunks      = 3
	hierarchicalDocRankBonus   = 0.05
	hierarchicalTargetBonus    = 0.10
	hierarchicalCoherenceBonus = 0.05
	hierarchicalOutsidePenalty = 0.05
	hierarchicalMaxScore       = 1.5
	defaultSectionPriority     = 0.50
)

var sectionPriority = map[domain.SectionType]float64{
	domain.SectionDefinition:       1.0,
	domain.SectionIntroduction:     0.85,
	domain.SectionMethodology:      0.80,
	domain.SectionResults:          0.75,
	domain.SectionDiscussion:       0.70,
	domain.SectionAbstract:         0.65,
	domain.SectionConclusion:       0.60,
	domain.SectionLiteratureReview: 0.55,
	domain.SectionBody:             0.50,
	domain.SectionAppendix:         0.30,
	domain.SectionAcknowledgements: 0.20,
	domain.SectionReferences:       0.15,
}

func sectionPriorityOf(section domain.SectionType) float64 {
	if p, ok := sectionPriority[section]; ok {
		return p
	}
	return defaultSectionPriority
}

type hierarchicalOptions struct {
	TopDocs       int
	SectionBoost  float64
	TargetSection domain.SectionType
	// LearnedBoosts scales the priority of a section; missing sections use 1.0.
	LearnedBoosts map[string]float64
}

type hierarchicalReport struct {
	Applied        bool
	DocumentCount  int
	TopDocumentIDs []string
	Penalized      int
}

// hierarchicalRerank re-weights chunks document -> section -> chunk. It
// rewrites RawScore and records rank, section and applied boost on each
// chunk of a scored document.
func hierarchicalRerank(chunks []domain.Chunk, opts hierarchicalOptions) ([]domain.Chunk, hierarchicalReport) {
	if opts.TopDocs <= 0 {
		opts.TopDocs = 3
	}

	docScores := make(map[string]float64)
	docOrder := make([]string, 0)
	for _, chunk := range chunks {
		if chunk.DocumentID == "" {
			continue
		}
		if _, ok := docScores[chunk.DocumentID]; !ok {
			docOrder = append(docOrder, chunk.DocumentID)
		}
		docScores[chunk.DocumentID] += chunk.RawScore
	}

	report := hierarchicalReport{DocumentCount: len(docScores)}
	if len(docScores) == 0 {
		return chunks, report
	}
	// Small pools carry too little structure, unless there are already more
	// documents than the cut keeps.
	if len(chunks) <= hierarchicalMinChunks && len(docScores) <= opts.TopDocs {
		return chunks, report
	}

	sort.SliceStable(docOrder, func(i, j int) bool {
		si, sj := docScores[docOrder[i]], docScores[docOrder[j]]
		if si != sj {
			return si > sj
		}
		return docOrder[i] < docOrder[j]
	})

	topN := opts.TopDocs
	if topN > len(docOrder) {
		topN = len(docOrder)
	}
	docRank := make(map[string]int, topN)
	for i, id := range docOrder[:topN] {
		docRank[id] = i + 1
	}
	report.TopDocumentIDs = append([]string(nil), docOrder[:topN]...)

	type sectionKey struct {
		doc     string
		section domain.SectionType
	}
	sectionSize := make(map[sectionKey]int)
	for _, chunk := range chunks {
		if _, ok := docRank[chunk.DocumentID]; ok {
			sectionSize[sectionKey{chunk.DocumentID, chunk.Section()}]++
		}
	}

	out := copyChunks(chunks)
	for i := range out {
		chunk := &out[i]
		if chunk.DocumentID == "" {
			continue
		}
		base := chunk.RawScore
		rank, top := docRank[chunk.DocumentID]
		if !top {
			chunk.RawScore = round(math.Max(0, base-hierarchicalOutsidePenalty), 4)
			chunk.Annotations.HierarchicalDocRank = domain.Int(0)
			chunk.Annotations.HierarchicalBoost = domain.Float(-hierarchicalOutsidePenalty)
			report.Penalized++
			continue
		}

		section := chunk.Section()
		priority := sectionPriorityOf(section)
		if mult, ok := opts.LearnedBoosts[string(section)]; ok && mult > 0 {
			priority *= mult
		}

		score := base + hierarchicalDocRankBonus + priority*opts.SectionBoost
		if opts.TargetSection != "" && section == opts.TargetSection {
			score += hierarchicalTargetBonus
		}
		if sectionSize[sectionKey{chunk.DocumentID, section}] >= 2 {
			score += hierarchicalCoherenceBonus
		}

		chunk.RawScore = round(math.Min(hierarchicalMaxScore, score), 4)
		chunk.Annotations.HierarchicalDocRank = domain.Int(rank)
		chunk.Annotations.HierarchicalSection = domain.Section(section)
		chunk.Annotations.HierarchicalBoost = domain.Float(round(score-base, 4))
	}

	// Chunks without a document keep their relative place behind equal scores.
	sort.SliceStable(out, func(i, j int) bool {
		iDoc, jDoc := out[i].DocumentID != "", out[j].DocumentID != ""
		if out[i].RawScore != out[j].RawScore {
			return out[i].RawScore > out[j].RawScore
		}
		return iDoc && !jDoc
	})

	report.Applied = true
	return out, report
}
