package ethics

// ─── Default immutable rule table ──────────────────────────────────────────
//
// Rules are data, not code (Design Notes §9 of the specification): each
// entry is a govaluate boolean expression evaluated against a flattened
// variable map built from the Action. Keys lists every variable name the
// predicate reads so buildVars can seed a safe default (and a "<key>_set"
// presence flag) before overlaying the action's actual parameters — this
// is what keeps evaluation total: a predicate never sees an undefined
// variable and therefore never errors on a routine action.
//
// This table mirrors, in shape, the teacher's two-tier immutable-rule list
// (internal/safety/policy's immutableRules) generalized from Kubernetes
// mutations to arbitrary agent Actions, plus warning-severity siblings the
// teacher's tier omits.

func defaultRules() []Rule {
	return []Rule{
		{
			ID:          "position_size",
			Category:    "trading",
			Keys:        []string{"position_size_pct"},
			ActionTypes: []string{"trade"},
			Predicate:   "action_type == 'trade' && position_size_pct_set == true && position_size_pct > 0.10",
			Severity:    SeverityViolation,
			Reason:      "position size exceeds 10% of portfolio",
			Immutable:   true,
		},
		{
			ID:          "position_size_warn",
			Category:    "trading",
			Keys:        []string{"position_size_pct"},
			ActionTypes: []string{"trade"},
			Predicate:   "action_type == 'trade' && position_size_pct_set == true && position_size_pct > 0.08 && position_size_pct <= 0.10",
			Severity:    SeverityWarning,
			Reason:      "near position size threshold",
			Immutable:   true,
		},
		{
			ID:          "leverage",
			Category:    "trading",
			Keys:        []string{"leverage"},
			ActionTypes: []string{"trade"},
			Predicate:   "action_type == 'trade' && leverage_set == true && leverage > 3.0",
			Severity:    SeverityViolation,
			Reason:      "leverage exceeds 3x maximum",
			Immutable:   true,
		},
		{
			ID:          "stop_loss",
			Category:    "trading",
			Keys:        []string{"stop_loss"},
			ActionTypes: []string{"trade"},
			Predicate:   "action_type == 'trade' && stop_loss_set == false",
			Severity:    SeverityViolation,
			Reason:      "stop loss required for trade actions",
			Immutable:   true,
		},
		{
			ID:          "no_delete_protected_namespace",
			Category:    "infrastructure",
			Keys:        []string{"namespace"},
			ActionTypes: []string{"delete"},
			Predicate:   "action_type == 'delete' && (namespace == 'production' || namespace == 'prod' || namespace == 'kube-system')",
			Severity:    SeverityViolation,
			Reason:      "cannot delete resources in a protected namespace",
			Immutable:   true,
		},
		{
			ID:          "no_scale_to_zero_critical",
			Category:    "infrastructure",
			Keys:        []string{"namespace", "target_replicas"},
			ActionTypes: []string{"scale"},
			Predicate:   "action_type == 'scale' && (namespace == 'production' || namespace == 'prod') && target_replicas_set == true && target_replicas == 0",
			Severity:    SeverityViolation,
			Reason:      "cannot scale to zero replicas in production",
			Immutable:   true,
		},
		{
			ID:          "high_risk_requires_justification",
			Category:    "governance",
			Keys:        []string{"justification"},
			ActionTypes: []string{"delete", "execute"},
			Predicate:   "(action_type == 'delete' || action_type == 'execute') && justification_set == false",
			Severity:    SeverityWarning,
			Reason:      "no justification provided for a high-risk action",
			Immutable:   true,
		},
		{
			ID:            "action_type_required",
			Category:      "governance",
			Keys:          []string{},
			Applicability: "any",
			Predicate:     "action_type == ''",
			Severity:      SeverityWarning,
			Reason:        "action_type missing or unknown",
			Immutable:     true,
		},
	}
}

// staticRuleSource serves the compiled-in default rule table. It never
// fails: Load always succeeds for the built-in table.
type staticRuleSource struct{}

func (staticRuleSource) Load() ([]Rule, error) {
	return defaultRules(), nil
}

// DefaultRuleSource is the RuleSource NewRegistry uses when none is given.
func DefaultRuleSource() RuleSource { return staticRuleSource{} }
