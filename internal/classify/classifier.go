// Package classify maps feature vectors to fraud-type findings via
// severity-ranked rule tables. Each rule is a boolean predicate over
// features and raw record values; when several rules fire, only the
// single most severe fraud type surfaces, with all of its triggered
// reasons. New fraud types are added as table rows, not new branches.
package classify

import (
	"sort"

	"github.com/opensource-finance/kite/internal/domain"
	"github.com/opensource-finance/kite/internal/feature"
)

// Severity ranks for the built-in taxonomy. Higher outranks lower when
// selecting the surfaced finding.
const (
	SeverityFabricated      = 90
	SeverityAltered         = 80
	SeverityConsistency     = 70
	SeverityUnrealistic     = 60
	SeverityZeroWithholding = 50
	SeveritySuspicious      = 45
	SeverityMissingFields   = 40
)

// Input carries everything a rule predicate may inspect.
type Input struct {
	Vector *domain.FeatureVector
	Record *domain.Record

	raw *feature.Context
}

// Raw returns the typed raw-value reader for the record.
func (in *Input) Raw() *feature.Context {
	if in.raw == nil {
		in.raw = feature.NewContext(in.Record)
	}
	return in.raw
}

// Rule is one row of a document type's classification table. When the
// predicate fires it contributes its fraud type as a candidate with a
// reason string carrying concrete values.
type Rule struct {
	Type     domain.FraudType
	Severity int
	When     func(in *Input) (bool, string)
}

// Engine evaluates the built-in rule tables plus any loaded
// operator-defined CEL rules. Safe for concurrent use; custom rules are
// hot-reloadable.
type Engine struct {
	tables map[domain.DocType][]Rule
	custom *CustomRules
}

// NewEngine creates a classifier with the built-in tables and an empty
// custom rule set.
func NewEngine() (*Engine, error) {
	custom, err := NewCustomRules()
	if err != nil {
		return nil, err
	}
	return &Engine{
		tables: map[domain.DocType][]Rule{
			domain.DocTypeCheck:         checkRules(),
			domain.DocTypeMoneyOrder:    moneyOrderRules(),
			domain.DocTypePaystub:       paystubRules(),
			domain.DocTypeBankStatement: bankStatementRules(),
		},
		custom: custom,
	}, nil
}

// CustomRules exposes the operator-defined rule set for management.
func (e *Engine) CustomRules() *CustomRules {
	return e.custom
}

// candidate accumulates the fired state of one fraud type.
type candidate struct {
	fraudType domain.FraudType
	severity  int
	order     int // first declaration index that fired, for tie-breaks
	reasons   []string
}

// Classify evaluates all rules for the document type in one pass and
// returns the highest-severity finding, or nil when nothing fired.
// Ties on severity resolve by declaration order: built-in rows first, in
// table order, then custom rules in load order.
func (e *Engine) Classify(in *Input) *domain.FraudFinding {
	table := e.tables[in.Vector.DocType]

	byType := make(map[domain.FraudType]*candidate)
	add := func(ft domain.FraudType, severity, order int, reason string) {
		c, ok := byType[ft]
		if !ok {
			c = &candidate{fraudType: ft, severity: severity, order: order}
			byType[ft] = c
		}
		c.reasons = append(c.reasons, reason)
	}

	for i, rule := range table {
		if fired, reason := rule.When(in); fired {
			add(rule.Type, rule.Severity, i, reason)
		}
	}

	for j, fired := range e.custom.Evaluate(in.Vector) {
		add(fired.FraudType, fired.Severity, len(table)+j, fired.Reason)
	}

	if len(byType) == 0 {
		return nil
	}

	candidates := make([]*candidate, 0, len(byType))
	for _, c := range byType {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(a, b int) bool {
		if candidates[a].severity != candidates[b].severity {
			return candidates[a].severity > candidates[b].severity
		}
		return candidates[a].order < candidates[b].order
	})

	top := candidates[0]
	return &domain.FraudFinding{
		Type:     top.fraudType,
		Severity: top.severity,
		Reasons:  top.reasons,
	}
}
