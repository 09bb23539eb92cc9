package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// viperConfigManager implements ConfigManager using Viper, following the
// teacher's load-defaults-then-overlay-file-then-overlay-env shape
// (internal/config/manager.go in the reference kernel).
type viperConfigManager struct {
	configPath string
	config     *Config
	viper      *viper.Viper
	watchChan  chan Config
}

func (m *viperConfigManager) Load(ctx context.Context) error {
	m.viper = viper.New()
	m.viper.SetConfigFile(m.configPath)
	m.viper.SetConfigType("yaml")

	m.viper.SetEnvPrefix("KERNEL")
	m.viper.AutomaticEnv()
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	m.setDefaults()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file is fine — defaults + env vars carry the process.
		} else if os.IsNotExist(err) {
			// Same as above, surfaced via the os package instead of viper.
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := m.unmarshalConfig(); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	return nil
}

func (m *viperConfigManager) Get(ctx context.Context) *Config {
	return m.config
}

func (m *viperConfigManager) Validate(ctx context.Context) error {
	errs := m.config.Validate()
	if len(errs) > 0 {
		var msgs []string
		for _, err := range errs {
			msgs = append(msgs, err.Error())
		}
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
	}
	return nil
}

// Watch reloads on file change and republishes the tunables. Per
// SPEC_FULL.md, the immutable ethics rule set is never reloaded here —
// only this package's tunables participate in hot reload.
func (m *viperConfigManager) Watch(ctx context.Context) <-chan Config {
	m.viper.WatchConfig()
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		if err := m.unmarshalConfig(); err != nil {
			return
		}
		select {
		case m.watchChan <- *m.config:
		default:
		}
	})
	return m.watchChan
}

func (m *viperConfigManager) Reload(ctx context.Context) error {
	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return m.unmarshalConfig()
}

func (m *viperConfigManager) setDefaults() {
	d := DefaultConfig()

	m.viper.SetDefault("quality.importance_threshold", d.Quality.ImportanceThreshold)
	m.viper.SetDefault("quality.duplicate_similarity", d.Quality.DuplicateSimilarity)
	m.viper.SetDefault("quality.duplicate_topic_overlap", d.Quality.DuplicateTopicOverlap)

	m.viper.SetDefault("memory.consolidation_period", d.Memory.ConsolidationPeriod)

	m.viper.SetDefault("reasoning.global_budget_ms", d.Reasoning.GlobalBudgetMS)
	m.viper.SetDefault("reasoning.l2_budget_ms", d.Reasoning.L2BudgetMS)
	m.viper.SetDefault("reasoning.l3_budget_ms", d.Reasoning.L3BudgetMS)
	m.viper.SetDefault("reasoning.l4_budget_ms", d.Reasoning.L4BudgetMS)
	m.viper.SetDefault("reasoning.fast_path_compliance_low", d.Reasoning.FastPathComplianceLow)
	m.viper.SetDefault("reasoning.fast_path_compliance_high", d.Reasoning.FastPathComplianceHigh)
	m.viper.SetDefault("reasoning.fast_path_action_types", d.Reasoning.FastPathActionTypes)

	m.viper.SetDefault("watchdog.failure_rate_threshold", d.Watchdog.FailureRateThreshold)
	m.viper.SetDefault("watchdog.latency_threshold_ms", d.Watchdog.LatencyThresholdMS)
	m.viper.SetDefault("watchdog.consecutive_fail_threshold", d.Watchdog.ConsecutiveFailThreshold)
	m.viper.SetDefault("watchdog.violations_per_minute", d.Watchdog.ViolationsPerMinute)
	m.viper.SetDefault("watchdog.window_size", d.Watchdog.WindowSize)

	m.viper.SetDefault("database.type", d.Database.Type)
	m.viper.SetDefault("database.sqlite_path", d.Database.SQLitePath)

	m.viper.SetDefault("logging.level", d.Logging.Level)
	m.viper.SetDefault("logging.format", d.Logging.Format)
	m.viper.SetDefault("logging.file_path", d.Logging.FilePath)
	m.viper.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	m.viper.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	m.viper.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}

func (m *viperConfigManager) unmarshalConfig() error {
	cfg := &Config{}

	cfg.Quality.ImportanceThreshold = m.viper.GetInt("quality.importance_threshold")
	cfg.Quality.DuplicateSimilarity = m.viper.GetFloat64("quality.duplicate_similarity")
	cfg.Quality.DuplicateTopicOverlap = m.viper.GetFloat64("quality.duplicate_topic_overlap")

	cfg.Memory.ConsolidationPeriod = m.viper.GetInt("memory.consolidation_period")

	cfg.Reasoning.GlobalBudgetMS = m.viper.GetInt("reasoning.global_budget_ms")
	cfg.Reasoning.L2BudgetMS = m.viper.GetInt("reasoning.l2_budget_ms")
	cfg.Reasoning.L3BudgetMS = m.viper.GetInt("reasoning.l3_budget_ms")
	cfg.Reasoning.L4BudgetMS = m.viper.GetInt("reasoning.l4_budget_ms")
	cfg.Reasoning.FastPathComplianceLow = m.viper.GetFloat64("reasoning.fast_path_compliance_low")
	cfg.Reasoning.FastPathComplianceHigh = m.viper.GetFloat64("reasoning.fast_path_compliance_high")
	cfg.Reasoning.FastPathActionTypes = m.viper.GetStringSlice("reasoning.fast_path_action_types")

	cfg.Watchdog.FailureRateThreshold = m.viper.GetFloat64("watchdog.failure_rate_threshold")
	cfg.Watchdog.LatencyThresholdMS = m.viper.GetFloat64("watchdog.latency_threshold_ms")
	cfg.Watchdog.ConsecutiveFailThreshold = m.viper.GetInt("watchdog.consecutive_fail_threshold")
	cfg.Watchdog.ViolationsPerMinute = m.viper.GetInt("watchdog.violations_per_minute")
	cfg.Watchdog.WindowSize = m.viper.GetInt("watchdog.window_size")

	cfg.Database.Type = m.viper.GetString("database.type")
	cfg.Database.SQLitePath = m.viper.GetString("database.sqlite_path")

	cfg.Logging.Level = m.viper.GetString("logging.level")
	cfg.Logging.Format = m.viper.GetString("logging.format")
	cfg.Logging.FilePath = m.viper.GetString("logging.file_path")
	cfg.Logging.MaxSizeMB = m.viper.GetInt("logging.max_size_mb")
	cfg.Logging.MaxBackups = m.viper.GetInt("logging.max_backups")
	cfg.Logging.MaxAgeDays = m.viper.GetInt("logging.max_age_days")

	m.config = cfg
	return nil
}
