// Package config provides configuration management for the reasoning
// kernel.
//
// Responsibilities:
//   - Load configuration from YAML files, environment variables, and defaults
//   - Validate configuration on startup
//   - Provide runtime access to all configuration
//   - Support hot-reload for tunable settings only (never for the immutable
//     ethics rule set — that is loaded once by internal/ethics and never
//     revisited for the life of the process)
//   - Establish reasonable defaults matching spec §6's Configuration Surface
//
// Configuration Sources (priority order, high to low):
//   1. Environment variables (KERNEL_* prefix)
//   2. YAML config file (default: /etc/kernel/config.yaml)
//   3. Built-in defaults (lowest priority)
//
// Main Configuration Sections:
//
//   1. Quality — importance threshold, duplicate similarity/topic-overlap
//      thresholds
//   2. Memory — consolidation period
//   3. Reasoning — global decide budget, per-level budgets, fast-path
//      compliance band, fast-path action types
//   4. Watchdog — failure rate, latency, consecutive-failure thresholds
//   5. Database — sqlite path
//   6. Logging — level, format, file rotation
package config

import "context"

// Config holds every tunable named in spec §6's Configuration Surface.
type Config struct {
	Quality struct {
		ImportanceThreshold   int
		DuplicateSimilarity   float64
		DuplicateTopicOverlap float64
	}

	Memory struct {
		ConsolidationPeriod int
	}

	Reasoning struct {
		GlobalBudgetMS          int
		L2BudgetMS              int
		L3BudgetMS              int
		L4BudgetMS              int
		FastPathComplianceLow   float64
		FastPathComplianceHigh float64
		FastPathActionTypes     []string
	}

	Watchdog struct {
		FailureRateThreshold     float64
		LatencyThresholdMS       float64
		ConsecutiveFailThreshold int
		ViolationsPerMinute      int
		WindowSize               int
	}

	Database struct {
		Type       string
		SQLitePath string
	}

	Logging struct {
		Level      string
		Format     string
		FilePath   string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// ConfigManager defines the interface for configuration access.
type ConfigManager interface {
	// Load loads configuration from all sources.
	Load(ctx context.Context) error

	// Get returns the current configuration.
	Get(ctx context.Context) *Config

	// Validate validates configuration is correct and complete.
	Validate(ctx context.Context) error

	// Watch watches for configuration changes and reloads tunable
	// settings. The immutable ethics rule set is never part of this
	// stream.
	Watch(ctx context.Context) <-chan Config

	// Reload reloads configuration from sources.
	Reload(ctx context.Context) error
}

// NewConfigManager creates a new configuration manager.
func NewConfigManager(configPath string) (ConfigManager, error) {
	mgr := &viperConfigManager{
		configPath: configPath,
		config:     DefaultConfig(),
		watchChan:  make(chan Config, 1),
	}
	return mgr, nil
}

// NewConfigManagerWithDefaults creates a config manager with the default
// config path.
func NewConfigManagerWithDefaults() (ConfigManager, error) {
	return NewConfigManager("/etc/kernel/config.yaml")
}
