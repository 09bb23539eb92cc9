package ethics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Knetic/govaluate"
	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/metrics"
)

// registryImpl is the concrete, immutable-after-construction Registry.
type registryImpl struct {
	rules   []Rule                                // load order, first-wins on duplicate id
	byID    map[string]int                         // rule id -> index into rules
	compile map[string]*govaluate.EvaluableExpression // rule id -> compiled predicate
	log     *zap.Logger
}

// NewRegistry loads rules once from source and returns an immutable
// Registry. A malformed source (Load error, or a predicate that fails to
// compile) is a ConfigurationError and is fatal at init, per spec §4.1 and
// §7 — evaluation itself never fails, but loading can.
func NewRegistry(source RuleSource, log *zap.Logger) (Registry, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if source == nil {
		source = DefaultRuleSource()
	}

	loaded, err := source.Load()
	if err != nil {
		return nil, fmt.Errorf("ethics: configuration error loading rules: %w", err)
	}

	r := &registryImpl{
		byID:    make(map[string]int),
		compile: make(map[string]*govaluate.EvaluableExpression),
		log:     log,
	}

	for _, rule := range loaded {
		if _, dup := r.byID[rule.ID]; dup {
			// First definition wins — rules are immutable once loaded.
			log.Warn("ethics: duplicate rule_id ignored", zap.String("rule_id", rule.ID))
			continue
		}
		expr, err := govaluate.NewEvaluableExpression(rule.Predicate)
		if err != nil {
			return nil, fmt.Errorf("ethics: configuration error compiling rule %q: %w", rule.ID, err)
		}
		r.byID[rule.ID] = len(r.rules)
		r.rules = append(r.rules, rule)
		r.compile[rule.ID] = expr
	}

	log.Info("ethics: registry initialized", zap.Int("rule_count", len(r.rules)))
	return r, nil
}

// buildVars seeds every key the rule's predicate references with a
// default value and a "<key>_set" presence flag, then overlays whatever
// the action actually carries. This guarantees the expression never sees
// an undefined variable.
func buildVars(rule Rule, action *Action) map[string]interface{} {
	vars := make(map[string]interface{}, len(rule.Keys)*2+1)
	vars["action_type"] = action.ActionType
	for _, k := range rule.Keys {
		vars[k] = 0.0
		vars[k+"_set"] = false
	}
	for k, v := range action.Parameters {
		if v == nil {
			vars[k+"_set"] = false
			continue
		}
		vars[k] = v
		vars[k+"_set"] = true
	}
	return vars
}

// applies reports whether rule is applicable to action's action_type.
func applies(rule Rule, action *Action) bool {
	if rule.Applicability == "any" {
		return true
	}
	for _, t := range rule.ActionTypes {
		if t == action.ActionType {
			return true
		}
	}
	return len(rule.ActionTypes) == 0 && rule.Applicability != ""
}

func (r *registryImpl) Evaluate(ctx context.Context, action *Action) *EthicsVerdict {
	start := time.Now()
	verdict := &EthicsVerdict{
		RulesChecked: []string{},
		Violations:   []string{},
		Warnings:     []string{},
	}
	if action == nil {
		verdict.Approved = true
		verdict.ComplianceScore = 1.0
		verdict.ElapsedMS = elapsedMS(start)
		return verdict
	}

	applicable := 0
	warningCount := 0
	for _, rule := range r.rules {
		if !applies(rule, action) {
			continue
		}
		applicable++
		verdict.RulesChecked = append(verdict.RulesChecked, rule.ID)

		matched, err := r.safeEval(rule, action)
		if err != nil {
			// Evaluation failure never fails the verdict — folded into the
			// verdict as a warning with severity=warning, regardless of the
			// rule's own static severity.
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("%s: evaluation error: %v", rule.ID, err))
			warningCount++
			continue
		}
		if !matched {
			continue
		}
		switch rule.Severity {
		case SeverityViolation:
			verdict.Violations = append(verdict.Violations, rule.ID)
		default:
			verdict.Warnings = append(verdict.Warnings, fmt.Sprintf("%s: %s", rule.ID, rule.Reason))
			warningCount++
		}
	}

	if applicable == 0 {
		verdict.Approved = true
		verdict.ComplianceScore = 1.0
		verdict.ElapsedMS = elapsedMS(start)
		return verdict
	}

	violations := float64(len(verdict.Violations))
	warnings := float64(warningCount)
	score := 1 - (violations+0.25*warnings)/float64(applicable)
	verdict.ComplianceScore = clamp01(score)
	verdict.Approved = len(verdict.Violations) == 0
	verdict.ElapsedMS = elapsedMS(start)

	metrics.EthicsComplianceScore.Observe(verdict.ComplianceScore)
	switch {
	case len(verdict.Violations) > 0:
		metrics.EthicsEvaluationsTotal.WithLabelValues("violation").Inc()
	case len(verdict.Warnings) > 0:
		metrics.EthicsEvaluationsTotal.WithLabelValues("warning").Inc()
	default:
		metrics.EthicsEvaluationsTotal.WithLabelValues("compliant").Inc()
	}
	return verdict
}

// safeEval evaluates rule's predicate against action, recovering from any
// panic raised by the expression engine so a single bad rule can never
// crash the pipeline.
func (r *registryImpl) safeEval(rule Rule, action *Action) (matched bool, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	expr := r.compile[rule.ID]
	vars := buildVars(rule, action)
	result, evalErr := expr.Evaluate(vars)
	if evalErr != nil {
		return false, evalErr
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("predicate did not evaluate to bool: %v", result)
	}
	return b, nil
}

func (r *registryImpl) GetRules(category string) []Rule {
	out := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		if category == "" || rule.Category == category {
			out = append(out, rule)
		}
	}
	return out
}

func (r *registryImpl) Explain(ctx context.Context, action *Action) string {
	verdict := r.Evaluate(ctx, action)
	if len(verdict.Violations) > 0 {
		return fmt.Sprintf("denied: violations=%s", strings.Join(verdict.Violations, ","))
	}
	if len(verdict.Warnings) > 0 {
		return fmt.Sprintf("approved with warnings (%d rules checked)", len(verdict.RulesChecked))
	}
	return fmt.Sprintf("approved (%d rules checked)", len(verdict.RulesChecked))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
