// Package scoring computes the ensemble fraud-risk score for a feature
// vector. Each document type maps to one or two fitted linear models;
// their 0-100 outputs are normalized to [0, 1] and blended with fixed
// ensemble weights.
package scoring

import (
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// Scorer evaluates feature vectors against the configured model
// artifacts. Scorers are immutable after construction and safe for
// concurrent use.
type Scorer struct {
	configs map[domain.DocType]domain.DocTypeConfig
	models  map[string]*ModelArtifact
}

// NewScorer creates a scorer from per-type configuration and model
// artifacts. Missing artifacts are not an error here: fallback policy is
// applied per submission at scoring time.
func NewScorer(configs map[domain.DocType]domain.DocTypeConfig, artifacts []*ModelArtifact) *Scorer {
	models := make(map[string]*ModelArtifact, len(artifacts))
	for _, a := range artifacts {
		models[a.ID] = a
	}
	return &Scorer{configs: configs, models: models}
}

// Score produces the risk assessment for a vector.
//
// For types that do not allow fallback, a missing model artifact is a
// fatal configuration error: the submission is aborted rather than
// scored with a guess. Fallback-allowed types degrade to a deterministic
// heuristic built from the same vector, and the result is marked as
// heuristic-sourced.
func (s *Scorer) Score(vec *domain.FeatureVector) (*domain.RiskAssessment, error) {
	cfg, ok := s.configs[vec.DocType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownDocType, vec.DocType)
	}

	artifacts := make([]*ModelArtifact, 0, len(cfg.ModelIDs))
	for _, id := range cfg.ModelIDs {
		m, ok := s.models[id]
		if !ok {
			if !cfg.AllowFallback {
				return nil, fmt.Errorf("%w: %s for %s", domain.ErrModelArtifact, id, vec.DocType)
			}
			return s.heuristic(vec, cfg), nil
		}
		artifacts = append(artifacts, m)
	}

	components := make(map[string]float64, len(artifacts))
	var score, confidence float64
	for i, m := range artifacts {
		normalized := m.Evaluate(vec) / 100.0
		components[m.ID] = normalized

		weight := 1.0
		if i < len(cfg.EnsembleWeights) {
			weight = cfg.EnsembleWeights[i]
		}
		score += weight * normalized

		if normalized > confidence {
			confidence = normalized
		}
	}
	score = clamp01(score)

	return &domain.RiskAssessment{
		Score:           score,
		RiskLevel:       riskLevelFor(score, cfg.RiskCutPoints),
		ComponentScores: components,
		Confidence:      confidence,
	}, nil
}

// heuristic is the deterministic fallback: fixed linear weights over the
// signals every schema carries. It leans on missing identity fields,
// failed reconciliations, and degraded image quality.
func (s *Scorer) heuristic(vec *domain.FeatureVector, cfg domain.DocTypeConfig) *domain.RiskAssessment {
	var score float64

	// Fraction of presence flags that are off.
	var flags, off float64
	for i, name := range vec.Names {
		if len(name) > 4 && name[:4] == "has_" {
			flags++
			if vec.Values[i] == 0 {
				off++
			}
		}
	}
	if flags > 0 {
		score += 0.35 * (off / flags)
	}

	if q, ok := vec.Get("image_quality"); ok {
		score += 0.25 * (1.0 - q)
	}
	for _, name := range []string{"balance_consistency", "deduction_consistency", "total_consistency"} {
		if v, ok := vec.Get(name); ok {
			score += 0.25 * (1.0 - v)
			break
		}
	}
	if v, ok := vec.Get("zero_withholding"); ok && v > 0 {
		score += 0.15
	}
	if v, ok := vec.Get("missing_critical_count"); ok {
		score += 0.05 * v
	}
	score = clamp01(score)

	return &domain.RiskAssessment{
		Score:           score,
		RiskLevel:       riskLevelFor(score, cfg.RiskCutPoints),
		ComponentScores: map[string]float64{"heuristic": score},
		Confidence:      score,
		Heuristic:       true,
	}
}

// riskLevelFor buckets a score by the ascending per-type cut points.
func riskLevelFor(score float64, cuts [3]float64) domain.RiskLevel {
	switch {
	case score < cuts[0]:
		return domain.RiskLow
	case score < cuts[1]:
		return domain.RiskMedium
	case score < cuts[2]:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
