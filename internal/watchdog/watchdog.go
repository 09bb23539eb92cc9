// Package watchdog implements the Agent Health Monitor — the kernel's
// supervisory loop over the agents it consults. It tracks per-agent
// latency, success/failure, and ethics-violation metrics, derives a
// health_score, and isolates agents that cross any of the automatic
// triggers so the Reasoner refuses to consult them.
//
// The monitor owns its state exclusively: callers only ever see copies
// returned from Status. This mirrors the teacher's WorldModel pattern
// (internal/memory/worldmodel in the reference kernel) of a mutex-guarded
// map with locked/unlocked method pairs, generalized from Kubernetes
// resources to agent health records.
package watchdog

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/metrics"
)

// Thresholds holds the configurable isolation triggers (spec §4.6 / §6).
type Thresholds struct {
	FailureRate         float64       // isolate at or above this failure rate
	MaxAvgLatencyMS     float64       // isolate at or above this average latency
	MaxConsecutiveFails int           // isolate at or above this many consecutive failures
	MaxViolationsPerMin int           // isolate at or above this many violations/minute
	WindowSize          int           // rolling latency window size
	BackpressureMS      float64       // moving-average decide latency that triggers a warning
	BackpressureWindow  time.Duration // span of decide samples averaged, and minimum gap between warnings
}

// DefaultThresholds matches the defaults named in spec §4.6/§6.
func DefaultThresholds() Thresholds {
	return Thresholds{
		FailureRate:         0.20,
		MaxAvgLatencyMS:     5000,
		MaxConsecutiveFails: 5,
		MaxViolationsPerMin: 10,
		WindowSize:          100,
		BackpressureMS:      500,
		BackpressureWindow:  60 * time.Second,
	}
}

// Observation is what a caller reports after consulting (or attempting to
// consult) an agent.
type Observation struct {
	Success    bool
	LatencyMS  float64
	Violation  string // rule_id, if this observation carries an ethics violation
}

// AgentHealth is an immutable snapshot returned to callers.
type AgentHealth struct {
	AgentName           string
	SuccessCount        int
	FailureCount        int
	ConsecutiveFailures int
	AvgLatencyMS        float64
	HealthScore         float64
	Isolated            bool
	IsolationReason     string
	LastActivity        time.Time
}

// Monitor is the Agent Health Monitor's public surface.
type Monitor interface {
	// Record logs one observation for agent_name. Never blocks on I/O.
	Record(agentName string, obs Observation)

	// Status returns a snapshot for one agent, or all agents if name=="".
	Status(agentName string) map[string]AgentHealth

	// Isolate marks an agent unfit for consultation until Restore.
	Isolate(agentName, reason string)

	// Restore clears isolation and resets consecutive-failure counters.
	Restore(agentName string)

	// RecordDecideLatency feeds the Reasoner's per-pass duration into the
	// backpressure moving average.
	RecordDecideLatency(ms float64)

	// EmergencyHalt trips the global halt flag.
	EmergencyHalt(reason string)
	IsHalted() (bool, string)

	// Run starts the four periodic cooperative tasks and blocks until ctx
	// is cancelled. Safe to call once; idempotent cancellation via ctx.
	Run(ctx context.Context)
}

type agentState struct {
	successCount        int
	failureCount        int
	consecutiveFailures int
	latencies           []float64 // ring buffer, most recent WindowSize
	violationBuckets     map[int64]int // unix-minute -> violation count
	isolated            bool
	isolationReason     string
	lastActivity        time.Time
}

type monitorImpl struct {
	mu         sync.RWMutex
	agents     map[string]*agentState
	thresholds Thresholds
	log        *zap.Logger

	haltMu sync.RWMutex
	halted bool
	haltReason string

	decideMu      sync.Mutex
	decideWindow  []decideSample

	backpressureFired time.Time
	hooks             *Hooks
}

type decideSample struct {
	at time.Time
	ms float64
}

// Hooks lets a caller observe watchdog-internal events without polling
// Status. Either field may be nil.
type Hooks struct {
	// OnBackpressure is invoked (from the periodic loop) when the mean of
	// the decide latencies recorded within the last
	// Thresholds.BackpressureWindow exceeds Thresholds.BackpressureMS, at
	// most once per BackpressureWindow. It does not check how long the
	// mean has been above the threshold: one slow sample in an otherwise
	// empty window is enough.
	OnBackpressure func(reason string)

	// OnIsolate is invoked whenever an agent transitions into isolation,
	// whether by an automatic trigger or a manual Isolate call.
	OnIsolate func(agentName, reason string)
}

// New constructs a Monitor with the given thresholds. hooks may be nil.
func New(thresholds Thresholds, log *zap.Logger, hooks *Hooks) Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if hooks == nil {
		hooks = &Hooks{}
	}
	return &monitorImpl{
		agents:     make(map[string]*agentState),
		thresholds: thresholds,
		log:        log,
		hooks:      hooks,
	}
}

func (m *monitorImpl) getOrCreateLocked(name string) *agentState {
	st, ok := m.agents[name]
	if !ok {
		st = &agentState{violationBuckets: make(map[int64]int)}
		m.agents[name] = st
	}
	return st
}

func (m *monitorImpl) Record(agentName string, obs Observation) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.getOrCreateLocked(agentName)
	st.lastActivity = time.Now()

	if obs.Success {
		st.successCount++
		st.consecutiveFailures = 0
	} else {
		st.failureCount++
		st.consecutiveFailures++
	}

	st.latencies = append(st.latencies, obs.LatencyMS)
	if len(st.latencies) > m.thresholds.WindowSize {
		st.latencies = st.latencies[len(st.latencies)-m.thresholds.WindowSize:]
	}

	if obs.Violation != "" {
		bucket := time.Now().Unix() / 60
		st.violationBuckets[bucket]++
	}

	m.evaluateIsolationLocked(agentName, st)
}

func (m *monitorImpl) evaluateIsolationLocked(name string, st *agentState) {
	if st.isolated {
		return
	}
	score, failureRate, avgLatency := computeHealth(st, m.thresholds)
	violationsPerMin := currentMinuteViolations(st)

	switch {
	case failureRate >= m.thresholds.FailureRate:
		st.isolated = true
		st.isolationReason = "failure_rate"
	case avgLatency >= m.thresholds.MaxAvgLatencyMS:
		st.isolated = true
		st.isolationReason = "avg_latency"
	case st.consecutiveFailures >= m.thresholds.MaxConsecutiveFails:
		st.isolated = true
		st.isolationReason = "consecutive_failures"
	case violationsPerMin >= m.thresholds.MaxViolationsPerMin:
		st.isolated = true
		st.isolationReason = "violations_per_minute"
	case score <= 0:
		st.isolated = true
		st.isolationReason = "health_score_zero"
	}
	if st.isolated {
		m.log.Warn("watchdog: agent isolated",
			zap.String("agent", name),
			zap.String("reason", st.isolationReason))
		metrics.AgentIsolationsTotal.WithLabelValues(name, st.isolationReason).Inc()
		if m.hooks.OnIsolate != nil {
			m.hooks.OnIsolate(name, st.isolationReason)
		}
	}
	metrics.AgentHealthScore.WithLabelValues(name).Set(score)
}

func currentMinuteViolations(st *agentState) int {
	bucket := time.Now().Unix() / 60
	return st.violationBuckets[bucket]
}

// computeHealth derives health_score = product of three clamped factors
// per spec §4.6.
func computeHealth(st *agentState, th Thresholds) (score, failureRate, avgLatency float64) {
	total := st.successCount + st.failureCount
	if total > 0 {
		failureRate = float64(st.failureCount) / float64(total)
	}
	if len(st.latencies) > 0 {
		sum := 0.0
		for _, l := range st.latencies {
			sum += l
		}
		avgLatency = sum / float64(len(st.latencies))
	}

	fFailure := clamp01(1 - failureRate/0.20)
	fLatency := clamp01(1 - avgLatency/5000)
	fConsecutive := clamp01(1 - float64(st.consecutiveFailures)/5)
	score = fFailure * fLatency * fConsecutive
	return score, failureRate, avgLatency
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

func (m *monitorImpl) Status(agentName string) map[string]AgentHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]AgentHealth)
	if agentName != "" {
		if st, ok := m.agents[agentName]; ok {
			out[agentName] = snapshotLocked(agentName, st)
		}
		return out
	}
	for name, st := range m.agents {
		out[name] = snapshotLocked(name, st)
	}
	return out
}

func snapshotLocked(name string, st *agentState) AgentHealth {
	score, _, avgLatency := computeHealth(st, DefaultThresholds())
	return AgentHealth{
		AgentName:           name,
		SuccessCount:        st.successCount,
		FailureCount:        st.failureCount,
		ConsecutiveFailures: st.consecutiveFailures,
		AvgLatencyMS:        avgLatency,
		HealthScore:         score,
		Isolated:            st.isolated,
		IsolationReason:     st.isolationReason,
		LastActivity:        st.lastActivity,
	}
}

func (m *monitorImpl) Isolate(agentName, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.getOrCreateLocked(agentName)
	st.isolated = true
	st.isolationReason = reason
	m.log.Warn("watchdog: manual isolation", zap.String("agent", agentName), zap.String("reason", reason))
	metrics.AgentIsolationsTotal.WithLabelValues(agentName, reason).Inc()
	if m.hooks.OnIsolate != nil {
		m.hooks.OnIsolate(agentName, reason)
	}
}

func (m *monitorImpl) Restore(agentName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.agents[agentName]
	if !ok {
		return
	}
	st.isolated = false
	st.isolationReason = ""
	st.consecutiveFailures = 0
	m.log.Info("watchdog: agent restored", zap.String("agent", agentName))
	metrics.AgentRestorationsTotal.WithLabelValues(agentName).Inc()
}

func (m *monitorImpl) EmergencyHalt(reason string) {
	m.haltMu.Lock()
	defer m.haltMu.Unlock()
	m.halted = true
	m.haltReason = reason
	m.log.Error("watchdog: emergency halt", zap.String("reason", reason))
	metrics.EmergencyHaltsTotal.Inc()
}

func (m *monitorImpl) IsHalted() (bool, string) {
	m.haltMu.RLock()
	defer m.haltMu.RUnlock()
	return m.halted, m.haltReason
}

func (m *monitorImpl) RecordDecideLatency(ms float64) {
	m.decideMu.Lock()
	defer m.decideMu.Unlock()
	now := time.Now()
	m.decideWindow = append(m.decideWindow, decideSample{at: now, ms: ms})
	cutoff := now.Add(-m.thresholds.BackpressureWindow)
	kept := m.decideWindow[:0]
	for _, s := range m.decideWindow {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	m.decideWindow = kept
}

func (m *monitorImpl) movingAverageDecideLatency() (float64, int) {
	m.decideMu.Lock()
	defer m.decideMu.Unlock()
	if len(m.decideWindow) == 0 {
		return 0, 0
	}
	sum := 0.0
	for _, s := range m.decideWindow {
		sum += s.ms
	}
	return sum / float64(len(m.decideWindow)), len(m.decideWindow)
}

// Run drives the four cooperative periodic tasks named in spec §4.6:
// agent health every 5s, queue depth every 2s, compliance every 10s, and
// an event-drain tick. Each is an independent ticker selected in one
// loop so a single goroutine owns all monitor-internal timers.
func (m *monitorImpl) Run(ctx context.Context) {
	healthTicker := time.NewTicker(5 * time.Second)
	queueTicker := time.NewTicker(2 * time.Second)
	complianceTicker := time.NewTicker(10 * time.Second)
	drainTicker := time.NewTicker(1 * time.Second)
	defer healthTicker.Stop()
	defer queueTicker.Stop()
	defer complianceTicker.Stop()
	defer drainTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-healthTicker.C:
			m.sweepAgentHealth()
		case <-queueTicker.C:
			m.checkBackpressure()
		case <-complianceTicker.C:
			m.sweepCompliance()
		case <-drainTicker.C:
			// Placeholder drain tick — a future event bus hooks in here;
			// today there is nothing buffered to flush.
		}
	}
}

// sweepAgentHealth re-evaluates isolation for every tracked agent once
// per monitor cycle (spec invariant: health_score = 0 ⇒ isolated = true
// within one cycle). The health inputs change only through Record, which
// already runs the same check, so the sweep does not detect a stalled
// agent that stops reporting.
func (m *monitorImpl) sweepAgentHealth() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, st := range m.agents {
		m.evaluateIsolationLocked(name, st)
	}
}

func (m *monitorImpl) checkBackpressure() {
	avg, n := m.movingAverageDecideLatency()
	if n == 0 || avg <= m.thresholds.BackpressureMS {
		return
	}
	if time.Since(m.backpressureFired) < m.thresholds.BackpressureWindow {
		return
	}
	m.backpressureFired = time.Now()
	m.log.Warn("watchdog: backpressure detected",
		zap.Float64("avg_decide_ms", avg), zap.Int("samples", n))
	metrics.BackpressureEventsTotal.Inc()
	if m.hooks.OnBackpressure != nil {
		m.hooks.OnBackpressure("decide_latency_sustained_above_budget")
	}
}

// sweepCompliance isolates any agent whose current-minute violation
// bucket alone already breaches the threshold, independent of Record
// being called again.
func (m *monitorImpl) sweepCompliance() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, st := range m.agents {
		if st.isolated {
			continue
		}
		if currentMinuteViolations(st) >= m.thresholds.MaxViolationsPerMin {
			st.isolated = true
			st.isolationReason = "violations_per_minute"
			m.log.Warn("watchdog: agent isolated", zap.String("agent", name), zap.String("reason", st.isolationReason))
			metrics.AgentIsolationsTotal.WithLabelValues(name, st.isolationReason).Inc()
			if m.hooks.OnIsolate != nil {
				m.hooks.OnIsolate(name, st.isolationReason)
			}
		}
	}
}
