package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/chandankumar123456/intellisense-ai/internal/core/domain"
	"gopkg.in/yaml.v3"
)

// profilesFile is the on-disk layout of WEIGHT_PROFILES_PATH:
//
//	confidence:
//	  conceptual: {top_similarity: 0.2, score_gap: 0.1, ...}
//	rerank:
//	  conceptual: {semantic: 0.5, keyword: 0.14, ...}
//	  default: {semantic: 0.5, keyword: 0.25, ...}
type profilesFile struct {
	Confidence map[string]domain.ConfidenceWeights `yaml:"confidence"`
	Rerank     struct {
		Conceptual *domain.RerankWeights `yaml:"conceptual"`
		Default    *domain.RerankWeights `yaml:"default"`
	} `yaml:"rerank"`
}

// LoadWeightProfiles reads weight overrides from a YAML file. An empty path
// yields no overrides.
func LoadWeightProfiles(path string) (domain.WeightProfiles, error) {
	const op = "load weight profiles"
	if strings.TrimSpace(path) == "" {
		return domain.WeightProfiles{}, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.WeightProfiles{}, fmt.Errorf("%s: read %s: %w", op, path, err)
	}
	return ParseWeightProfiles(raw)
}

func ParseWeightProfiles(raw []byte) (domain.WeightProfiles, error) {
	const op = "parse weight profiles"

	var file profilesFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return domain.WeightProfiles{}, domain.WrapError(domain.ErrInvalidInput, op, err)
	}

	out := domain.WeightProfiles{}
	if len(file.Confidence) > 0 {
		out.Confidence = make(map[domain.QueryType]domain.ConfidenceWeights, len(file.Confidence))
		for name, weights := range file.Confidence {
			if weights.Sum() <= 0 {
				return domain.WeightProfiles{}, domain.WrapError(domain.ErrInvalidInput, op,
					fmt.Errorf("confidence profile %q: weights must sum to a positive value", name))
			}
			out.Confidence[domain.ParseQueryType(name)] = weights
		}
	}
	if w := file.Rerank.Conceptual; w != nil {
		if w.Sum() <= 0 {
			return domain.WeightProfiles{}, domain.WrapError(domain.ErrInvalidInput, op,
				fmt.Errorf("rerank profile conceptual: weights must sum to a positive value"))
		}
		out.RerankConceptual = w
	}
	if w := file.Rerank.Default; w != nil {
		if w.Sum() <= 0 {
			return domain.WeightProfiles{}, domain.WrapError(domain.ErrInvalidInput, op,
				fmt.Errorf("rerank profile default: weights must sum to a positive value"))
		}
		out.RerankDefault = w
	}
	return out, nil
}
