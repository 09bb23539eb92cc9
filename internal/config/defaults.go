package config

// DefaultConfig returns a configuration with every default named in
// spec §6.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Quality.ImportanceThreshold = 55
	cfg.Quality.DuplicateSimilarity = 0.85
	cfg.Quality.DuplicateTopicOverlap = 0.80

	cfg.Memory.ConsolidationPeriod = 100

	cfg.Reasoning.GlobalBudgetMS = 1000
	cfg.Reasoning.L2BudgetMS = 80
	cfg.Reasoning.L3BudgetMS = 100
	cfg.Reasoning.L4BudgetMS = 120
	cfg.Reasoning.FastPathComplianceLow = 0.95
	cfg.Reasoning.FastPathComplianceHigh = 1.0
	cfg.Reasoning.FastPathActionTypes = []string{"read", "query", "analyze", "report"}

	cfg.Watchdog.FailureRateThreshold = 0.20
	cfg.Watchdog.LatencyThresholdMS = 5000
	cfg.Watchdog.ConsecutiveFailThreshold = 5
	cfg.Watchdog.ViolationsPerMinute = 10
	cfg.Watchdog.WindowSize = 100

	cfg.Database.Type = "sqlite"
	cfg.Database.SQLitePath = "/var/lib/kernel/kernel.db"

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.FilePath = "/var/log/kernel/kernel.log"
	cfg.Logging.MaxSizeMB = 100
	cfg.Logging.MaxBackups = 5
	cfg.Logging.MaxAgeDays = 30

	return cfg
}
