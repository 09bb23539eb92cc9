package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 55, cfg.Quality.ImportanceThreshold)
	assert.InDelta(t, 0.85, cfg.Quality.DuplicateSimilarity, 0.0001)
	assert.InDelta(t, 0.80, cfg.Quality.DuplicateTopicOverlap, 0.0001)

	assert.Equal(t, 100, cfg.Memory.ConsolidationPeriod)

	assert.Equal(t, 1000, cfg.Reasoning.GlobalBudgetMS)
	assert.Equal(t, 80, cfg.Reasoning.L2BudgetMS)
	assert.Equal(t, 100, cfg.Reasoning.L3BudgetMS)
	assert.Equal(t, 120, cfg.Reasoning.L4BudgetMS)
	assert.Contains(t, cfg.Reasoning.FastPathActionTypes, "query")

	assert.InDelta(t, 0.20, cfg.Watchdog.FailureRateThreshold, 0.0001)
	assert.Equal(t, 5, cfg.Watchdog.ConsecutiveFailThreshold)

	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.NotEmpty(t, cfg.Database.SQLitePath)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestValidate_DefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	errs := cfg.Validate()
	assert.Empty(t, errs)
}

func TestValidate_RejectsOutOfRangeImportanceThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Quality.ImportanceThreshold = 150
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_RejectsPerLevelBudgetsExceedingGlobal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reasoning.GlobalBudgetMS = 100
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}

func TestValidate_RejectsInvalidLogLevel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	errs := cfg.Validate()
	require.NotEmpty(t, errs)
}

func TestConfigManager_LoadWithMissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewConfigManager(filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 55, cfg.Quality.ImportanceThreshold)
}

func TestConfigManager_LoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := "quality:\n  importance_threshold: 70\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	mgr, err := NewConfigManager(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))

	cfg := mgr.Get(ctx)
	assert.Equal(t, 70, cfg.Quality.ImportanceThreshold)
}

func TestConfigManager_Validate(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewConfigManager(filepath.Join(dir, "missing.yaml"))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, mgr.Load(ctx))
	assert.NoError(t, mgr.Validate(ctx))
}
