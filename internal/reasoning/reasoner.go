// Package reasoning implements the Hierarchical Reasoner — the arbiter
// that runs every proposed Action through the adaptive 5-level pipeline
// (spec §4.5) and returns an auditable ReasoningTrace.
//
// Concurrency shape is grounded in the teacher's unified safety.Engine
// (internal/safety/engine.go in the reference kernel), which joins
// several independent checks (policy, blast radius, autonomy) before a
// single synthesis step; here the conditional L2/L3/L4 consultations run
// as goroutines joined with a sync.WaitGroup before L5, each bounded by
// its own context.WithTimeout nested under the global decide budget.
package reasoning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/cache"
	"github.com/kubilitics/kernel/internal/ethics"
	"github.com/kubilitics/kernel/internal/metrics"
	"github.com/kubilitics/kernel/internal/reasoning/collaborator"
	"github.com/kubilitics/kernel/internal/watchdog"
)

const historyCapacity = 1000

// collaboratorCacheTTL bounds how long an identical action's L2/L3/L4
// consultation result may be served from cache. Short enough that a
// decide call chain never sees a context/risk view staler than one
// immediate caller retry.
const collaboratorCacheTTL = 3 * time.Second

// Reasoner is the Hierarchical Reasoner's public surface (spec §4.5).
type Reasoner interface {
	Decide(ctx context.Context, action *ethics.Action, originatingAgent string, forceFull bool) (*ReasoningTrace, error)

	// Stats summarizes the bounded decision-history buffer every Decide
	// call appends to, for Core.Health's reasoner_stats field.
	Stats(ctx context.Context) Stats

	// UpdateTriggers recompiles and swaps the adaptive-pipeline predicates
	// live, for config.ConfigManager.Watch's hot-reload path. The new
	// config only takes effect once it compiles cleanly.
	UpdateTriggers(cfg TriggerConfig) error
}

// Deps wires the Reasoner to its leaves and collaborators.
type Deps struct {
	Registry ethics.Registry
	Watchdog watchdog.Monitor
	Context  collaborator.Context
	Truth    collaborator.Truth
	Risk     collaborator.Risk
	Budgets  Budgets
	Weights  Weights
	Triggers TriggerConfig
	Cache    cache.Cache
	Log      *zap.Logger
}

type reasonerImpl struct {
	deps Deps

	triggersMu sync.RWMutex
	triggers   *compiledTriggers

	mu        sync.Mutex
	history   []historyEntry
	historyAt int
}

// New constructs a Reasoner. Zero-value Budgets/Weights/Triggers in deps
// are replaced with their spec defaults; nil collaborators fall back to
// the neutral stubs in internal/reasoning/collaborator.
func New(deps Deps) (Reasoner, error) {
	if deps.Budgets == (Budgets{}) {
		deps.Budgets = DefaultBudgets()
	}
	if deps.Weights == (Weights{}) {
		deps.Weights = DefaultWeights()
	}
	if deps.Triggers.FastPath == "" {
		deps.Triggers = DefaultTriggerConfig()
	}
	if deps.Context == nil {
		deps.Context = collaborator.NeutralContext{}
	}
	if deps.Truth == nil {
		deps.Truth = collaborator.NeutralTruth{}
	}
	if deps.Risk == nil {
		deps.Risk = collaborator.NeutralRisk{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Cache == nil {
		deps.Cache = cache.New()
	}
	compiled, err := compileTriggers(deps.Triggers)
	if err != nil {
		return nil, err
	}
	return &reasonerImpl{deps: deps, triggers: compiled, history: make([]historyEntry, 0, historyCapacity)}, nil
}

func (r *reasonerImpl) Decide(ctx context.Context, action *ethics.Action, originatingAgent string, forceFull bool) (*ReasoningTrace, error) {
	if action == nil || action.ActionType == "" {
		return nil, fmt.Errorf("reasoning: invalid input: action_type is required")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.deps.Budgets.Global)
	defer cancel()

	trace := &ReasoningTrace{CorrelationID: action.CorrelationID}

	r.triggersMu.RLock()
	triggers := r.triggers
	r.triggersMu.RUnlock()

	verdict := r.deps.Registry.Evaluate(ctx, action)
	trace.LevelsExecuted = append(trace.LevelsExecuted, 1)
	trace.LevelResults = append(trace.LevelResults, LevelResult{
		Level: 1, Name: "Ethics", Score: verdict.ComplianceScore, Warnings: verdict.Warnings,
	})
	trace.Path = append(trace.Path, "L1 Ethics: "+r.deps.Registry.Explain(ctx, action))
	trace.Violations = verdict.Violations
	trace.Warnings = append(trace.Warnings, verdict.Warnings...)

	if len(verdict.Violations) > 0 {
		trace.Decision = DecisionDenied
		trace.Confidence = 1.0
		trace.LevelsExecuted = append(trace.LevelsExecuted, 5)
		trace.Path = append(trace.Path, "L1 denied: absolute override")
		r.finish(trace, start)
		return trace, nil
	}

	vars := buildFastPathVars(action, verdict, forceFull, triggers.actionTypes)
	if evalBool(triggers.fastPath, vars) {
		trace.LevelsExecuted = append(trace.LevelsExecuted, 5)
		trace.Path = append(trace.Path, "Fast path: no edge cases")
		r.synthesizeAndFinish(trace, map[int]float64{1: verdict.ComplianceScore}, start)
		return trace, nil
	}

	scores := map[int]float64{1: verdict.ComplianceScore}
	actionText := actionTextOf(action)
	triggerVars := buildLevelTriggerVars(action, verdict, forceFull, actionText)

	runL2 := forceFull || evalBool(triggers.l2, triggerVars)
	runL3 := forceFull || evalBool(triggers.l3, triggerVars)
	runL4 := forceFull || evalBool(triggers.l4, triggerVars)

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[int]LevelResult)

	if runL2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.runContext(ctx, action, originatingAgent)
			mu.Lock()
			results[2] = res
			mu.Unlock()
		}()
	}
	if runL3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.runTruth(ctx, actionText)
			mu.Lock()
			results[3] = res
			mu.Unlock()
		}()
	}
	if runL4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := r.runRisk(ctx, action)
			mu.Lock()
			results[4] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	for _, level := range []int{2, 3, 4} {
		res, ok := results[level]
		if !ok {
			continue
		}
		trace.LevelsExecuted = append(trace.LevelsExecuted, level)
		trace.LevelResults = append(trace.LevelResults, res)
		trace.Path = append(trace.Path, fmt.Sprintf("L%d %s", level, res.Name))
		trace.Warnings = append(trace.Warnings, res.Warnings...)
		scores[level] = res.Score
	}

	budgetExceeded := ctx.Err() == context.DeadlineExceeded
	trace.LevelsExecuted = append(trace.LevelsExecuted, 5)
	trace.Path = append(trace.Path, "L5 Synthesis")

	r.synthesize(trace, scores)
	if budgetExceeded {
		trace.Decision = DecisionEscalate
		trace.Warnings = append(trace.Warnings, "budget_exceeded")
		metrics.BudgetExceededTotal.Inc()
	}
	for _, res := range trace.LevelResults {
		outcome := "completed"
		if res.Skipped {
			outcome = res.Reason
		}
		metrics.LevelExecutions.WithLabelValues(fmt.Sprintf("L%d", res.Level), outcome).Inc()
	}
	r.finish(trace, start)
	return trace, nil
}

func (r *reasonerImpl) synthesizeAndFinish(trace *ReasoningTrace, scores map[int]float64, start time.Time) {
	r.synthesize(trace, scores)
	r.finish(trace, start)
}

// synthesize applies the weighted-confidence rule (spec §4.5 "Synthesis
// rule") over whichever levels actually ran.
func (r *reasonerImpl) synthesize(trace *ReasoningTrace, scores map[int]float64) {
	weights := map[int]float64{1: r.deps.Weights.L1, 2: r.deps.Weights.L2, 3: r.deps.Weights.L3, 4: r.deps.Weights.L4}
	var weightedSum, weightTotal float64
	for level, score := range scores {
		w := weights[level]
		weightedSum += w * score
		weightTotal += w
	}
	confidence := 0.0
	if weightTotal > 0 {
		confidence = weightedSum / weightTotal
	}
	trace.Confidence = confidence

	switch {
	case confidence >= confidenceApproveThreshold:
		trace.Decision = DecisionApproved
	case confidence >= confidenceEscalateThreshold:
		trace.Decision = DecisionEscalate
	default:
		trace.Decision = DecisionDenied
	}
}

func (r *reasonerImpl) finish(trace *ReasoningTrace, start time.Time) {
	trace.TotalDurationMS = float64(time.Since(start).Microseconds()) / 1000.0

	if r.deps.Watchdog != nil {
		r.deps.Watchdog.RecordDecideLatency(trace.TotalDurationMS)
	}

	r.mu.Lock()
	entry := historyEntry{at: time.Now(), decision: trace.Decision, duration: trace.TotalDurationMS}
	if len(r.history) < historyCapacity {
		r.history = append(r.history, entry)
	} else {
		r.history[r.historyAt] = entry
		r.historyAt = (r.historyAt + 1) % historyCapacity
	}
	r.mu.Unlock()
}

func (r *reasonerImpl) UpdateTriggers(cfg TriggerConfig) error {
	compiled, err := compileTriggers(cfg)
	if err != nil {
		return err
	}
	r.triggersMu.Lock()
	r.triggers = compiled
	r.triggersMu.Unlock()
	return nil
}

func (r *reasonerImpl) Stats(ctx context.Context) Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := Stats{SampleSize: len(r.history), DecisionCounts: make(map[Decision]int)}
	var totalDuration float64
	for _, entry := range r.history {
		stats.DecisionCounts[entry.decision]++
		totalDuration += entry.duration
		if entry.at.After(stats.LastDecisionAt) {
			stats.LastDecisionAt = entry.at
		}
	}
	if stats.SampleSize > 0 {
		stats.AvgDurationMS = totalDuration / float64(stats.SampleSize)
	}
	return stats
}

// runContext consults the Context collaborator for L2, respecting
// isolation and the per-level budget.
func (r *reasonerImpl) runContext(ctx context.Context, action *ethics.Action, originatingAgent string) LevelResult {
	if skipped, res := r.checkIsolated("context", 2, "Context"); skipped {
		return res
	}
	key := "L2:" + originatingAgent + ":" + actionSignature(action)
	if cached, ok := r.deps.Cache.Get(ctx, key); ok {
		return cached.(LevelResult)
	}

	levelCtx, cancel := context.WithTimeout(ctx, r.deps.Budgets.L2)
	defer cancel()

	type outcome struct {
		res collaborator.ContextResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.deps.Context.RetrieveContext(levelCtx, action, originatingAgent, r.deps.Budgets.L2)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		r.recordCollaboratorObservation("context", out.err == nil, r.deps.Budgets.L2)
		if out.err != nil {
			return neutralLevel(2, "Context", "collaborator_failure")
		}
		result := LevelResult{Level: 2, Name: "Context", Score: out.res.ContextScore}
		r.deps.Cache.Set(ctx, key, result, collaboratorCacheTTL)
		return result
	case <-levelCtx.Done():
		r.recordCollaboratorObservation("context", false, r.deps.Budgets.L2)
		return neutralLevel(2, "Context", "collaborator_timeout")
	}
}

func (r *reasonerImpl) runTruth(ctx context.Context, actionText string) LevelResult {
	if skipped, res := r.checkIsolated("truth", 3, "Truth"); skipped {
		return res
	}
	key := "L3:" + actionText
	if cached, ok := r.deps.Cache.Get(ctx, key); ok {
		return cached.(LevelResult)
	}

	levelCtx, cancel := context.WithTimeout(ctx, r.deps.Budgets.L3)
	defer cancel()

	type outcome struct {
		res collaborator.TruthResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.deps.Truth.Verify(levelCtx, actionText, r.deps.Budgets.L3)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		r.recordCollaboratorObservation("truth", out.err == nil, r.deps.Budgets.L3)
		if out.err != nil {
			return neutralLevel(3, "Truth", "collaborator_failure")
		}
		score := out.res.TruthScore * out.res.Confidence
		result := LevelResult{Level: 3, Name: "Truth", Score: score}
		if out.res.BiasDetected {
			result.Warnings = append(result.Warnings, "truth_collaborator_bias_detected")
		}
		r.deps.Cache.Set(ctx, key, result, collaboratorCacheTTL)
		return result
	case <-levelCtx.Done():
		r.recordCollaboratorObservation("truth", false, r.deps.Budgets.L3)
		return neutralLevel(3, "Truth", "collaborator_timeout")
	}
}

func (r *reasonerImpl) runRisk(ctx context.Context, action *ethics.Action) LevelResult {
	if skipped, res := r.checkIsolated("risk", 4, "Risk"); skipped {
		return res
	}
	key := "L4:" + actionSignature(action)
	if cached, ok := r.deps.Cache.Get(ctx, key); ok {
		return cached.(LevelResult)
	}

	levelCtx, cancel := context.WithTimeout(ctx, r.deps.Budgets.L4)
	defer cancel()

	type outcome struct {
		res collaborator.RiskResult
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		res, err := r.deps.Risk.AssessRisk(levelCtx, action, r.deps.Budgets.L4)
		ch <- outcome{res, err}
	}()

	select {
	case out := <-ch:
		r.recordCollaboratorObservation("risk", out.err == nil, r.deps.Budgets.L4)
		if out.err != nil {
			return neutralLevel(4, "Risk", "collaborator_failure")
		}
		result := LevelResult{Level: 4, Name: "Risk", Score: 1 - out.res.RiskScore, Warnings: out.res.Warnings}
		if !out.res.ExecutionFeasible {
			result.Warnings = append(result.Warnings, "execution_not_feasible")
		}
		r.deps.Cache.Set(ctx, key, result, collaboratorCacheTTL)
		return result
	case <-levelCtx.Done():
		r.recordCollaboratorObservation("risk", false, r.deps.Budgets.L4)
		return neutralLevel(4, "Risk", "collaborator_timeout")
	}
}

func (r *reasonerImpl) checkIsolated(agentName string, level int, name string) (bool, LevelResult) {
	if r.deps.Watchdog == nil {
		return false, LevelResult{}
	}
	status := r.deps.Watchdog.Status(agentName)
	if s, ok := status[agentName]; ok && s.Isolated {
		return true, neutralLevel(level, name, "agent_isolated")
	}
	return false, LevelResult{}
}

func (r *reasonerImpl) recordCollaboratorObservation(agentName string, success bool, budget time.Duration) {
	if r.deps.Watchdog == nil {
		return
	}
	r.deps.Watchdog.Record(agentName, watchdog.Observation{Success: success, LatencyMS: float64(budget.Milliseconds())})
}

func neutralLevel(level int, name, reason string) LevelResult {
	return LevelResult{
		Level:    level,
		Name:     name,
		Score:    0.5,
		Skipped:  true,
		Reason:   reason,
		Warnings: []string{fmt.Sprintf("L%d %s: %s", level, name, reason)},
	}
}

func buildFastPathVars(action *ethics.Action, verdict *ethics.EthicsVerdict, forceFull bool, actionTypes map[string]struct{}) map[string]interface{} {
	_, fastPathType := actionTypes[action.ActionType]
	return map[string]interface{}{
		"force_full":           forceFull,
		"approved":             verdict.Approved,
		"warnings_count":       len(verdict.Warnings),
		"compliance_score":     verdict.ComplianceScore,
		"fast_path_action_type": fastPathType,
		"rules_checked_count":  len(verdict.RulesChecked),
	}
}

func buildLevelTriggerVars(action *ethics.Action, verdict *ethics.EthicsVerdict, forceFull bool, actionText string) map[string]interface{} {
	complexityFlag := false
	if v, ok := action.Parameters["complexity"]; ok {
		if b, ok := v.(bool); ok {
			complexityFlag = b
		}
	}
	return map[string]interface{}{
		"action_type":        action.ActionType,
		"complexity_flag":    complexityFlag,
		"warnings_count":     len(verdict.Warnings),
		"has_claim_indicator": hasClaimIndicator(actionText),
	}
}

// actionSignature produces a stable cache key for an action: its type
// plus sorted "key=value" parameter pairs. Map iteration order in Go is
// randomized, so the keys are sorted before joining.
func actionSignature(action *ethics.Action) string {
	keys := make([]string, 0, len(action.Parameters))
	for k := range action.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sig := action.ActionType
	for _, k := range keys {
		sig += fmt.Sprintf("|%s=%v", k, action.Parameters[k])
	}
	return sig
}

func actionTextOf(action *ethics.Action) string {
	text := action.ActionType
	for _, v := range action.Parameters {
		if s, ok := v.(string); ok {
			text += " " + s
		}
	}
	return text
}
