// Package policy finalizes dispositions. The engine runs the
// short-circuit gates over entity history and duplicate detection,
// consults the advisor for everything the gates do not decide, applies
// the first-submission override, and records exactly one history row
// per finalized disposition.
package policy

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kite/internal/domain"
)

// Severities for the policy-level findings.
const (
	severityRepeatOffender      = 100
	severityDuplicateSubmission = 95
)

// Engine applies the decision policy. Gates run in a fixed order and
// the first one that fires wins:
//
//  1. Prior escalations force REJECT; the advisor is never consulted.
//  2. A duplicate uniqueness key forces REJECT; the advisor is never
//     consulted.
//  3. Otherwise the advisor is consulted under a timeout.
//  4. A first submission from an unknown entity is always escalated,
//     regardless of the advisory, and the document finding is withheld.
//  5. The advisory disposition is clamped onto the 3-state enum and
//     adopted.
//
// Advisory failure escalates with the system-error marker set; the
// engine never approves on failure. Exactly one history row is
// recorded once the disposition is final, and a cancelled submission
// records nothing.
//
// Decide serializes the full lookup-to-record span per normalized
// entity name: two concurrent submissions from one payer must not both
// observe escalate_count == 0, so the second waits for the first's
// disposition to be recorded before its own history lookup.
type Engine struct {
	history domain.HistoryStore
	advisor domain.Advisor
	dedupe  *DedupeStore
	timeout time.Duration
	logger  *slog.Logger

	locks entityLocks
}

// lockStripes is the number of lock stripes for entity serialization.
// Entities hash onto stripes; contention only occurs between names
// sharing a stripe.
const lockStripes = 64

type entityLocks [lockStripes]sync.Mutex

func (l *entityLocks) forName(name string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(domain.NormalizeEntityName(name)))
	return &l[h.Sum32()%lockStripes]
}

// NewEngine creates a policy engine. The dedupe store may be nil, in
// which case the duplicate gate never fires.
func NewEngine(history domain.HistoryStore, advisor domain.Advisor, dedupe *DedupeStore, advisoryTimeout time.Duration, logger *slog.Logger) *Engine {
	if advisoryTimeout <= 0 {
		advisoryTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		history: history,
		advisor: advisor,
		dedupe:  dedupe,
		timeout: advisoryTimeout,
		logger:  logger,
	}
}

// Input is one submission at the policy stage.
type Input struct {
	DocType    domain.DocType
	EntityName string
	Fields     map[string]any
	Features   map[string]float64
	Assessment *domain.RiskAssessment

	// Finding is the surfaced document-level finding, nil when the
	// classifier surfaced nothing.
	Finding *domain.FraudFinding

	// DedupeKey is the type-specific uniqueness key, "" when the record
	// is missing a key field.
	DedupeKey string
}

// Outcome is the finalized policy decision.
type Outcome struct {
	Disposition domain.Disposition
	Reasons     []string

	// Finding is the finding to surface on the decision. It may differ
	// from the input finding: the policy gates substitute their own, and
	// the first-submission override withholds it.
	Finding *domain.FraudFinding

	AdvisoryReasons []string
	SystemError     bool
	History         *domain.EntityAggregate
}

// Decide finalizes the disposition for a submission and records it.
// The per-entity lock spans the history lookup through the record: the
// aggregate the gates saw is still current when the row is written.
func (e *Engine) Decide(ctx context.Context, in *Input) (*Outcome, error) {
	lock := e.locks.forName(in.EntityName)
	lock.Lock()
	defer lock.Unlock()

	agg, err := e.history.Lookup(ctx, in.EntityName)
	if err != nil {
		return nil, fmt.Errorf("failed to look up entity history: %w", err)
	}

	out := &Outcome{Finding: in.Finding, History: agg}

	switch {
	case agg.EscalateCount > 0:
		e.applyRepeatOffender(out, agg)

	case e.isDuplicate(ctx, in):
		e.applyDuplicate(out, in)

	default:
		e.consultAdvisor(ctx, in, agg, out)

		// First submissions from unknown entities always go to a human,
		// whatever the advisory said, and the finding is withheld so the
		// reviewer starts unanchored.
		if !agg.IsKnown {
			if out.Disposition != domain.DispositionEscalate {
				out.Reasons = append(out.Reasons,
					fmt.Sprintf("First submission from %q requires manual review", in.EntityName))
			}
			out.Disposition = domain.DispositionEscalate
			out.Finding = nil
		}
	}

	if len(out.Reasons) == 0 {
		out.Reasons = append(out.Reasons, fmt.Sprintf("Risk level %s", riskLabel(in.Assessment)))
	}

	// A cancelled submission is discarded without touching history.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := e.history.Record(ctx, in.EntityName, out.Disposition); err != nil {
		return nil, fmt.Errorf("failed to record disposition: %w", err)
	}
	e.markDedupe(ctx, in)

	return out, nil
}

func (e *Engine) applyRepeatOffender(out *Outcome, agg *domain.EntityAggregate) {
	reason := fmt.Sprintf("Entity %q has %d prior escalation(s); repeat submissions after escalation are rejected",
		agg.EntityName, agg.EscalateCount)
	out.Disposition = domain.DispositionReject
	out.Finding = &domain.FraudFinding{
		Type:     domain.FraudRepeatOffender,
		Severity: severityRepeatOffender,
		Reasons:  []string{reason},
	}
	out.Reasons = append(out.Reasons, reason)
}

func (e *Engine) isDuplicate(ctx context.Context, in *Input) bool {
	if e.dedupe == nil || in.DedupeKey == "" {
		return false
	}
	seen, err := e.dedupe.Seen(ctx, in.DedupeKey)
	if err != nil {
		// A cache failure must not reject legitimate documents; the
		// submission proceeds to the advisory stage.
		e.logger.Warn("dedupe lookup failed", "error", err)
		return false
	}
	return seen
}

func (e *Engine) applyDuplicate(out *Outcome, in *Input) {
	reason := fmt.Sprintf("Duplicate %s submission: uniqueness key already processed", in.DocType)
	out.Disposition = domain.DispositionReject
	out.Finding = &domain.FraudFinding{
		Type:     domain.FraudDuplicateSubmission,
		Severity: severityDuplicateSubmission,
		Reasons:  []string{reason},
	}
	out.Reasons = append(out.Reasons, reason)
}

func (e *Engine) consultAdvisor(ctx context.Context, in *Input, agg *domain.EntityAggregate, out *Outcome) {
	actx := &domain.AdvisoryContext{
		DocType:    in.DocType,
		EntityName: in.EntityName,
		Fields:     in.Fields,
		Features:   in.Features,
		Assessment: in.Assessment,
		Finding:    in.Finding,
		History:    agg,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res, err := e.advisor.Advise(callCtx, actx)
	if err != nil || res == nil {
		// Fail toward review, never toward approval.
		e.logger.Error("advisory unavailable, escalating", "entity", in.EntityName, "error", err)
		out.Disposition = domain.DispositionEscalate
		out.SystemError = true
		out.Reasons = append(out.Reasons, "Advisory service unavailable; escalated for manual review")
		return
	}

	disposition := domain.ClampDisposition(res.Disposition)
	if disposition != domain.Disposition(res.Disposition) {
		out.Reasons = append(out.Reasons,
			fmt.Sprintf("Advisory disposition %q out of vocabulary; escalated", res.Disposition))
	}
	out.Disposition = disposition
	out.AdvisoryReasons = res.Reasons
	out.Reasons = append(out.Reasons, res.Reasons...)
}

// markDedupe stores the uniqueness key after the disposition has been
// recorded. Best effort: a cache failure here only weakens future
// duplicate detection.
func (e *Engine) markDedupe(ctx context.Context, in *Input) {
	if e.dedupe == nil || in.DedupeKey == "" {
		return
	}
	if err := e.dedupe.Mark(ctx, in.DedupeKey); err != nil {
		e.logger.Warn("dedupe mark failed", "error", err)
	}
}

func riskLabel(a *domain.RiskAssessment) domain.RiskLevel {
	if a == nil {
		return domain.RiskMedium
	}
	return a.RiskLevel
}
