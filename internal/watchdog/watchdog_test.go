package watchdog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kubilitics/kernel/internal/watchdog"
)

func TestRecord_HealthyAgentNotIsolated(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	for i := 0; i < 10; i++ {
		m.Record("scanner", watchdog.Observation{Success: true, LatencyMS: 50})
	}
	status := m.Status("scanner")
	require.Contains(t, status, "scanner")
	assert.False(t, status["scanner"].Isolated)
	assert.Greater(t, status["scanner"].HealthScore, 0.9)
}

func TestRecord_ConsecutiveFailuresIsolates(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	for i := 0; i < 25; i++ {
		m.Record("kenny", watchdog.Observation{Success: false, LatencyMS: 6000})
	}
	status := m.Status("kenny")
	require.Contains(t, status, "kenny")
	assert.True(t, status["kenny"].Isolated)
	// The first failure already puts the failure rate at 100%, and the
	// failure-rate trigger is checked before the consecutive-failure one.
	assert.Equal(t, "failure_rate", status["kenny"].IsolationReason)
}

func TestRecord_FailureRateIsolates(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	for i := 0; i < 10; i++ {
		m.Record("bursty", watchdog.Observation{Success: true, LatencyMS: 10})
	}
	for i := 0; i < 10; i++ {
		m.Record("bursty", watchdog.Observation{Success: false, LatencyMS: 10})
		m.Record("bursty", watchdog.Observation{Success: true, LatencyMS: 10})
	}
	status := m.Status("bursty")
	assert.True(t, status["bursty"].Isolated)
}

func TestIsolateAndRestore(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	m.Record("agent-x", watchdog.Observation{Success: true, LatencyMS: 10})
	m.Isolate("agent-x", "manual_review")
	assert.True(t, m.Status("agent-x")["agent-x"].Isolated)

	m.Restore("agent-x")
	assert.False(t, m.Status("agent-x")["agent-x"].Isolated)
}

func TestEmergencyHalt(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	halted, _ := m.IsHalted()
	assert.False(t, halted)

	m.EmergencyHalt("manual_shutdown")
	halted, reason := m.IsHalted()
	assert.True(t, halted)
	assert.Equal(t, "manual_shutdown", reason)
}

func TestViolationsPerMinuteIsolates(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	for i := 0; i < 11; i++ {
		m.Record("rogue", watchdog.Observation{Success: true, LatencyMS: 10, Violation: "position_size"})
	}
	status := m.Status("rogue")
	assert.True(t, status["rogue"].Isolated)
	assert.Equal(t, "violations_per_minute", status["rogue"].IsolationReason)
}

func TestStatus_UnknownAgentReturnsEmpty(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	status := m.Status("nobody")
	assert.Empty(t, status)
}

func TestStatus_AllAgents(t *testing.T) {
	m := watchdog.New(watchdog.DefaultThresholds(), nil, nil)
	m.Record("a", watchdog.Observation{Success: true, LatencyMS: 10})
	m.Record("b", watchdog.Observation{Success: true, LatencyMS: 10})
	status := m.Status("")
	assert.Len(t, status, 2)
}
