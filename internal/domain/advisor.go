package domain

import (
	"context"
)

// AdvisoryContext is the context handed to the external advisor. It
// contains everything the advisor needs to apply the risk-band x history
// decision matrix: extracted fields, the risk assessment, the surfaced
// finding, and the entity's aggregated history.
type AdvisoryContext struct {
	DocType    DocType            `json:"docType"`
	EntityName string             `json:"entityName"`
	Fields     map[string]any     `json:"fields"`
	Features   map[string]float64 `json:"features"`
	Assessment *RiskAssessment    `json:"assessment"`
	Finding    *FraudFinding      `json:"finding,omitempty"`
	History    *EntityAggregate   `json:"history"`
}

// AdvisoryResult is the advisor's recommendation. The disposition is
// untrusted input: the policy engine clamps it to the 3-state enum and
// runs it through the first-submission override.
type AdvisoryResult struct {
	Disposition string   `json:"disposition"`
	Reasons     []string `json:"reasons"`
}

// Advisor produces a recommendation for a submission. Implementations
// wrap an LLM or another slow external service; they are best-effort and
// may fail or time out. Callers bound the call with a context deadline.
type Advisor interface {
	Advise(ctx context.Context, actx *AdvisoryContext) (*AdvisoryResult, error)
}

// AdvisorConfig holds configuration for advisor initialization.
type AdvisorConfig struct {
	// Type is the advisor type: "matrix" or "http".
	Type string

	// HTTP advisor settings.
	Endpoint  string
	AuthToken string
	TimeoutMs int
}
