package classify

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kite/internal/domain"
)

// CustomRules is the CEL-backed engine for operator-defined
// classification rules. Expressions are boolean predicates over the
// feature vector; fired rules contribute candidates to the same
// severity table as the built-in rules.
type CustomRules struct {
	mu       sync.RWMutex
	env      *cel.Env
	compiled []*compiledRule
}

type compiledRule struct {
	config  *domain.CustomRule
	program cel.Program
}

// FiredRule is the contribution of one fired custom rule.
type FiredRule struct {
	FraudType domain.FraudType
	Severity  int
	Reason    string
}

// NewCustomRules creates an empty custom rule engine.
func NewCustomRules() (*CustomRules, error) {
	env, err := cel.NewEnv(
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("doc_type", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return &CustomRules{env: env}, nil
}

// Validate compiles a rule without loading it.
func (r *CustomRules) Validate(cfg *domain.CustomRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}
	_, err := r.compile(cfg)
	return err
}

// Load compiles and appends a rule. Load order is the declaration order
// used for severity tie-breaks.
func (r *CustomRules) Load(cfg *domain.CustomRule) error {
	compiled, err := r.compile(cfg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled = append(r.compiled, compiled)
	return nil
}

// Reload replaces all rules with the given set. Enables hot-reloading
// from the database.
func (r *CustomRules) Reload(configs []*domain.CustomRule) error {
	var next []*compiledRule
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := r.compile(cfg)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiled = next
	return nil
}

// Count returns the number of loaded rules.
func (r *CustomRules) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.compiled)
}

// Loaded returns the currently loaded rule configurations.
func (r *CustomRules) Loaded() []*domain.CustomRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules := make([]*domain.CustomRule, 0, len(r.compiled))
	for _, c := range r.compiled {
		rules = append(rules, c.config)
	}
	return rules
}

// Evaluate runs every rule matching the vector's document type and
// returns the fired contributions in declaration order. Evaluation
// errors mute the rule for this document rather than failing the
// submission: a broken operator rule must not block assessments.
func (r *CustomRules) Evaluate(vec *domain.FeatureVector) []FiredRule {
	r.mu.RLock()
	compiled := r.compiled
	r.mu.RUnlock()

	if len(compiled) == 0 {
		return nil
	}

	activation := map[string]any{
		"features": vec.AsMap(),
		"doc_type": string(vec.DocType),
	}

	var fired []FiredRule
	for _, rule := range compiled {
		if rule.config.DocType != "" && rule.config.DocType != vec.DocType {
			continue
		}
		out, _, err := rule.program.Eval(activation)
		if err != nil {
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			fired = append(fired, FiredRule{
				FraudType: rule.config.FraudType,
				Severity:  rule.config.Severity,
				Reason:    rule.config.Reason,
			})
		}
	}
	return fired
}

func (r *CustomRules) compile(cfg *domain.CustomRule) (*compiledRule, error) {
	ast, issues := r.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := r.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{config: cfg, program: program}, nil
}
