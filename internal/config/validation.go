package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s", e.Field, e.Message)
}

// Validate validates the configuration and returns validation errors.
func (c *Config) Validate() []error {
	var errs []error

	if c.Quality.ImportanceThreshold < 0 || c.Quality.ImportanceThreshold > 100 {
		errs = append(errs, &ValidationError{
			Field:   "quality.importance_threshold",
			Message: fmt.Sprintf("must be between 0 and 100, got %d", c.Quality.ImportanceThreshold),
		})
	}
	if c.Quality.DuplicateSimilarity < 0 || c.Quality.DuplicateSimilarity > 1 {
		errs = append(errs, &ValidationError{
			Field:   "quality.duplicate_similarity",
			Message: fmt.Sprintf("must be in [0,1], got %f", c.Quality.DuplicateSimilarity),
		})
	}
	if c.Quality.DuplicateTopicOverlap < 0 || c.Quality.DuplicateTopicOverlap > 1 {
		errs = append(errs, &ValidationError{
			Field:   "quality.duplicate_topic_overlap",
			Message: fmt.Sprintf("must be in [0,1], got %f", c.Quality.DuplicateTopicOverlap),
		})
	}

	if c.Memory.ConsolidationPeriod < 1 {
		errs = append(errs, &ValidationError{
			Field:   "memory.consolidation_period",
			Message: fmt.Sprintf("must be at least 1, got %d", c.Memory.ConsolidationPeriod),
		})
	}

	if c.Reasoning.GlobalBudgetMS < 1 {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.global_budget_ms",
			Message: "global decide budget must be positive",
		})
	}
	if c.Reasoning.L2BudgetMS+c.Reasoning.L3BudgetMS+c.Reasoning.L4BudgetMS > c.Reasoning.GlobalBudgetMS {
		errs = append(errs, &ValidationError{
			Field:   "reasoning",
			Message: "per-level budgets must not exceed the global decide budget",
		})
	}
	if c.Reasoning.FastPathComplianceLow > c.Reasoning.FastPathComplianceHigh {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.fast_path_compliance_low",
			Message: "fast-path compliance band low must not exceed high",
		})
	}
	if len(c.Reasoning.FastPathActionTypes) == 0 {
		errs = append(errs, &ValidationError{
			Field:   "reasoning.fast_path_action_types",
			Message: "at least one fast-path action type is required",
		})
	}

	if c.Watchdog.FailureRateThreshold <= 0 || c.Watchdog.FailureRateThreshold > 1 {
		errs = append(errs, &ValidationError{
			Field:   "watchdog.failure_rate_threshold",
			Message: fmt.Sprintf("must be in (0,1], got %f", c.Watchdog.FailureRateThreshold),
		})
	}
	if c.Watchdog.LatencyThresholdMS <= 0 {
		errs = append(errs, &ValidationError{
			Field:   "watchdog.latency_threshold_ms",
			Message: "must be positive",
		})
	}
	if c.Watchdog.ConsecutiveFailThreshold < 1 {
		errs = append(errs, &ValidationError{
			Field:   "watchdog.consecutive_fail_threshold",
			Message: "must be at least 1",
		})
	}
	if c.Watchdog.WindowSize < 1 {
		errs = append(errs, &ValidationError{
			Field:   "watchdog.window_size",
			Message: "must be at least 1",
		})
	}

	validDatabaseTypes := map[string]bool{"sqlite": true}
	if !validDatabaseTypes[c.Database.Type] {
		errs = append(errs, &ValidationError{
			Field:   "database.type",
			Message: fmt.Sprintf("invalid database type %q, must be sqlite", c.Database.Type),
		})
	}
	if c.Database.Type == "sqlite" && c.Database.SQLitePath == "" {
		errs = append(errs, &ValidationError{
			Field:   "database.sqlite_path",
			Message: "sqlite_path is required when database type is sqlite",
		})
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level %q, must be one of: debug, info, warn, error", c.Logging.Level),
		})
	}
	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, &ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format %q, must be one of: json, text", c.Logging.Format),
		})
	}

	return errs
}
