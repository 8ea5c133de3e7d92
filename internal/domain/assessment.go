package domain

import (
	"time"
)

// RiskLevel buckets a risk score into operator-facing bands.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// RiskAssessment is the output of the ensemble scorer for one document.
// It is immutable once produced; a new submission gets a new assessment.
type RiskAssessment struct {
	// Score is the normalized fraud-risk score in [0, 1].
	Score float64 `json:"score"`

	// RiskLevel is derived from Score via per-document-type cut points.
	RiskLevel RiskLevel `json:"riskLevel"`

	// ComponentScores holds the normalized score of each ensemble member,
	// keyed by model ID.
	ComponentScores map[string]float64 `json:"componentScores"`

	// Confidence is the maximum component score, an agreement proxy
	// rather than a calibrated probability.
	Confidence float64 `json:"confidence"`

	// Heuristic is true when the score came from the deterministic
	// fallback rather than a trained model artifact.
	Heuristic bool `json:"heuristic,omitempty"`
}

// FraudType is a member of the closed fraud-type taxonomy.
type FraudType string

const (
	FraudFabricatedDocument  FraudType = "FABRICATED_DOCUMENT"
	FraudAlteredDocument     FraudType = "ALTERED_LEGITIMATE_DOCUMENT"
	FraudBalanceViolation    FraudType = "BALANCE_CONSISTENCY_VIOLATION"
	FraudAmountViolation     FraudType = "AMOUNT_CONSISTENCY_VIOLATION"
	FraudSuspiciousPattern   FraudType = "SUSPICIOUS_PATTERN"
	FraudUnrealisticRatios   FraudType = "UNREALISTIC_PROPORTIONS"
	FraudMissingFields       FraudType = "MISSING_CRITICAL_FIELDS"
	FraudZeroWithholding     FraudType = "ZERO_WITHHOLDING"
	FraudRepeatOffender      FraudType = "REPEAT_OFFENDER"
	FraudDuplicateSubmission FraudType = "DUPLICATE_SUBMISSION"
)

// FraudFinding is a classified, severity-ranked indicator of a specific
// fraud pattern. The classifier surfaces at most one document-level
// finding; REPEAT_OFFENDER and DUPLICATE_SUBMISSION are appended only by
// the policy engine.
type FraudFinding struct {
	Type     FraudType `json:"type"`
	Severity int       `json:"severity"`
	Reasons  []string  `json:"reasons"`
}

// Disposition is the tri-state outcome of a submission.
type Disposition string

const (
	DispositionApprove  Disposition = "APPROVE"
	DispositionEscalate Disposition = "ESCALATE"
	DispositionReject   Disposition = "REJECT"
)

// ClampDisposition maps an untrusted disposition string onto the 3-state
// enum. Anything out of vocabulary defaults to ESCALATE: the advisory is
// best-effort input, and the safe direction on garbage is human review.
func ClampDisposition(s string) Disposition {
	switch Disposition(s) {
	case DispositionApprove:
		return DispositionApprove
	case DispositionReject:
		return DispositionReject
	case DispositionEscalate:
		return DispositionEscalate
	}
	return DispositionEscalate
}

// DecisionResult is the final output of one assessment, emitted to the
// persistence collaborator and the event bus.
type DecisionResult struct {
	ID         string  `json:"id"`
	DocType    DocType `json:"docType"`
	EntityName string  `json:"entityName"`

	Score     float64   `json:"score"`
	RiskLevel RiskLevel `json:"riskLevel"`

	// Finding is the surfaced fraud finding, nil when none surfaced or
	// when the first-submission override withheld it.
	Finding *FraudFinding `json:"finding,omitempty"`

	Disposition     Disposition `json:"disposition"`
	Reasons         []string    `json:"reasons"`
	AdvisoryReasons []string    `json:"advisoryReasons,omitempty"`

	// SystemError marks an escalation caused by advisory unavailability
	// rather than document content.
	SystemError bool `json:"systemError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`

	Metadata DecisionMetadata `json:"metadata"`
}

// DecisionMetadata carries processing information.
type DecisionMetadata struct {
	TraceID    string `json:"traceId,omitempty"`
	ExtractMs  int64  `json:"extractMs"`
	ScoreMs    int64  `json:"scoreMs"`
	DecisionMs int64  `json:"decisionMs"`
	TotalMs    int64  `json:"totalMs"`
	Heuristic  bool   `json:"heuristic,omitempty"`
	Version    string `json:"version,omitempty"`
}
