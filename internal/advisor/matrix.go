// Package advisor provides implementations of the external advisory
// step. The advisory is best-effort, untrusted input to the policy
// engine: whatever an implementation returns still passes through the
// policy gates.
package advisor

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kite/internal/domain"
)

// MatrixAdvisor applies the risk-band x history decision matrix
// deterministically. It is the default advisor for the community tier
// and documents the matrix the LLM-backed advisor is prompted to honor.
//
//	              first submission   clean history     prior rejects
//	LOW           APPROVE            APPROVE           ESCALATE
//	MEDIUM        ESCALATE           ESCALATE          ESCALATE
//	HIGH          ESCALATE           ESCALATE          REJECT
//	CRITICAL      REJECT             REJECT            REJECT
//
// A surfaced finding at consistency severity or above bumps the risk
// band one step before the matrix is applied.
type MatrixAdvisor struct{}

// NewMatrixAdvisor creates the deterministic matrix advisor.
func NewMatrixAdvisor() *MatrixAdvisor {
	return &MatrixAdvisor{}
}

// severeFindingFloor is the finding severity that bumps the risk band.
const severeFindingFloor = 70

// Advise applies the decision matrix.
func (a *MatrixAdvisor) Advise(ctx context.Context, actx *domain.AdvisoryContext) (*domain.AdvisoryResult, error) {
	if actx.Assessment == nil || actx.History == nil {
		return nil, fmt.Errorf("advisory context missing assessment or history")
	}

	band := actx.Assessment.RiskLevel
	var reasons []string

	if actx.Finding != nil && actx.Finding.Severity >= severeFindingFloor {
		band = bumpBand(band)
		reasons = append(reasons, fmt.Sprintf("Risk band raised to %s due to %s finding", band, actx.Finding.Type))
	}

	disposition := applyMatrix(band, actx.History)
	reasons = append(reasons, fmt.Sprintf("Risk %s (score %.2f) with %s yields %s",
		band, actx.Assessment.Score, historyCategory(actx.History), disposition))

	return &domain.AdvisoryResult{
		Disposition: string(disposition),
		Reasons:     reasons,
	}, nil
}

func applyMatrix(band domain.RiskLevel, h *domain.EntityAggregate) domain.Disposition {
	switch band {
	case domain.RiskCritical:
		return domain.DispositionReject
	case domain.RiskHigh:
		if h.RejectCount > 0 {
			return domain.DispositionReject
		}
		return domain.DispositionEscalate
	case domain.RiskMedium:
		return domain.DispositionEscalate
	default: // LOW
		if h.RejectCount > 0 {
			return domain.DispositionEscalate
		}
		return domain.DispositionApprove
	}
}

func bumpBand(band domain.RiskLevel) domain.RiskLevel {
	switch band {
	case domain.RiskLow:
		return domain.RiskMedium
	case domain.RiskMedium:
		return domain.RiskHigh
	default:
		return domain.RiskCritical
	}
}

func historyCategory(h *domain.EntityAggregate) string {
	switch {
	case !h.IsKnown:
		return "first submission"
	case h.RejectCount > 0:
		return "prior rejects"
	default:
		return "clean history"
	}
}
