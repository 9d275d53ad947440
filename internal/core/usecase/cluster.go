package usecase

import (
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
)

const (
	defaultClusterOverlap   = 0.60
	defaultClusterMaxOutput = 15
)

type clusterOptions struct {
	OverlapThreshold float64
	MaxOutput        int
}

type clusterReport struct {
	Applied        bool
	InputCount     int
	OutputCount    int
	ClustersFormed int
}

// clusterDeduplicate collapses chunks whose stopword-free token sets overlap
// by at least the threshold (|A∩B| / min(|A|,|B|)) into one representative.
func clusterDeduplicate(chunks []domain.Chunk, opts clusterOptions) ([]domain.Chunk, clusterReport) {
	if opts.OverlapThreshold <= 0 {
		opts.OverlapThreshold = defaultClusterOverlap
	}
	if opts.MaxOutput <= 0 {
		opts.MaxOutput = defaultClusterMaxOutput
	}

	report := clusterReport{InputCount: len(chunks), OutputCount: len(chunks)}
	if len(chunks) <= 2 {
		return chunks, report
	}

	n := len(chunks)
	tokenSets := make([]map[string]struct{}, n)
	for i, chunk := range chunks {
		tokenSets[i] = keywordSet(chunk.Text, baseStopwords)
	}

	clusterID := make([]int, n)
	for i := range clusterID {
		clusterID[i] = i
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if clusterID[i] == clusterID[j] {
				continue
			}
			if minSetOverlap(tokenSets[i], tokenSets[j]) < opts.OverlapThreshold {
				continue
			}
			from, to := clusterID[j], clusterID[i]
			for k := range clusterID {
				if clusterID[k] == from {
					clusterID[k] = to
				}
			}
		}
	}

	members := make(map[int][]int, n)
	order := make([]int, 0, n)
	for idx, cid := range clusterID {
		if _, ok := members[cid]; !ok {
			order = append(order, cid)
		}
		members[cid] = append(members[cid], idx)
	}

	out := make([]domain.Chunk, 0, len(order))
	for _, cid := range order {
		indices := members[cid]
		if len(indices) == 1 {
			out = append(out, chunks[indices[0]])
			continue
		}
		best := indices[0]
		bestQuality := representativeQuality(chunks[best], tokenSets[best])
		for _, idx := range indices[1:] {
			if q := representativeQuality(chunks[idx], tokenSets[idx]); q > bestQuality {
				best, bestQuality = idx, q
			}
		}
		rep := chunks[best]
		rep.Annotations.ClusterSize = domain.Int(len(indices))
		out = append(out, rep)
	}

	sortByRerankScore(out)
	out = trimCandidates(out, opts.MaxOutput)

	report.Applied = true
	report.OutputCount = len(out)
	report.ClustersFormed = len(order)
	return out, report
}

func minSetOverlap(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	hits := 0
	for token := range small {
		if _, ok := large[token]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(small))
}

func representativeQuality(chunk domain.Chunk, tokens map[string]struct{}) float64 {
	words := len(strings.Fields(chunk.Text))
	var lengthBonus float64
	switch {
	case words < 20:
		lengthBonus = 0.1
	case words < 60:
		lengthBonus = 0.4
	case words < 150:
		lengthBonus = 0.7
	default:
		lengthBonus = 0.9
	}
	denom := words
	if denom < 1 {
		denom = 1
	}
	diversity := clamp(float64(len(tokens))/float64(denom), 0, 1)
	return chunk.RawScore*0.50 + lengthBonus*0.30 + diversity*0.20
}
