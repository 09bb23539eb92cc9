package reasoning

import (
	"fmt"
	"strings"

	"github.com/Knetic/govaluate"
)

// TriggerConfig holds the adaptive-pipeline predicates as data rather
// than code branches (spec §9, "Adaptive triggering is configuration,
// not code branching"). Each expression is a govaluate boolean predicate
// over the variables buildFastPathVars and buildLevelTriggerVars
// produce — the same technique
// internal/ethics uses for rule predicates, applied here to level
// triggers so they can be tuned and tested independently of the
// orchestrator.
type TriggerConfig struct {
	FastPath string
	L2       string
	L3       string
	L4       string

	// FastPathComplianceLow/High bound the fast-path's compliance_score
	// band; FastPathActionTypes lists the action types the fast path
	// considers eligible. All three come from config.Config.Reasoning and
	// feed FastPath's compiled predicate via FormatFastPath.
	FastPathComplianceLow  float64
	FastPathComplianceHigh float64
	FastPathActionTypes    []string
}

// DefaultTriggerConfig mirrors spec §4.5's fast-path gate and L2/L3/L4
// conditional triggers.
func DefaultTriggerConfig() TriggerConfig {
	cfg := TriggerConfig{
		L2: "action_type == 'trade' || action_type == 'strategic_decision' || " +
			"action_type == 'policy_change' || complexity_flag == true",
		L3: "has_claim_indicator == true",
		L4: "warnings_count > 0 || action_type == 'trade' || action_type == 'execute' || action_type == 'delete'",
		FastPathComplianceLow:  0.95,
		FastPathComplianceHigh: 1.0,
		FastPathActionTypes:    []string{"read", "query", "analyze", "report"},
	}
	cfg.FastPath = FormatFastPath(cfg.FastPathComplianceLow, cfg.FastPathComplianceHigh)
	return cfg
}

// FormatFastPath builds the fast-path predicate string from the
// compliance band's numeric bounds, leaving fast_path_action_type (set
// per-action by buildFastPathVars from FastPathActionTypes) and the rest
// of the gate unchanged.
func FormatFastPath(low, high float64) string {
	return fmt.Sprintf("force_full == false && approved == true && warnings_count == 0 && "+
		"compliance_score >= %v && compliance_score <= %v && "+
		"fast_path_action_type == true && rules_checked_count <= 5", low, high)
}

var claimIndicators = []string{"shows", "proves", "demonstrates", "indicates"}

type compiledTriggers struct {
	fastPath    *govaluate.EvaluableExpression
	l2          *govaluate.EvaluableExpression
	l3          *govaluate.EvaluableExpression
	l4          *govaluate.EvaluableExpression
	actionTypes map[string]struct{}
}

func compileTriggers(cfg TriggerConfig) (*compiledTriggers, error) {
	compile := func(name, expr string) (*govaluate.EvaluableExpression, error) {
		e, err := govaluate.NewEvaluableExpression(expr)
		if err != nil {
			return nil, fmt.Errorf("reasoning: configuration error compiling %s trigger: %w", name, err)
		}
		return e, nil
	}
	fastPath, err := compile("fast_path", cfg.FastPath)
	if err != nil {
		return nil, err
	}
	l2, err := compile("l2", cfg.L2)
	if err != nil {
		return nil, err
	}
	l3, err := compile("l3", cfg.L3)
	if err != nil {
		return nil, err
	}
	l4, err := compile("l4", cfg.L4)
	if err != nil {
		return nil, err
	}
	actionTypes := make(map[string]struct{}, len(cfg.FastPathActionTypes))
	for _, t := range cfg.FastPathActionTypes {
		actionTypes[t] = struct{}{}
	}
	return &compiledTriggers{fastPath: fastPath, l2: l2, l3: l3, l4: l4, actionTypes: actionTypes}, nil
}

func hasClaimIndicator(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range claimIndicators {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func evalBool(expr *govaluate.EvaluableExpression, vars map[string]interface{}) bool {
	result, err := expr.Evaluate(vars)
	if err != nil {
		return false
	}
	b, ok := result.(bool)
	return ok && b
}
