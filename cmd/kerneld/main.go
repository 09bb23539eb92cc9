// Package main is the entry point for kerneld, the reasoning kernel
// daemon.
//
// Responsibilities:
//   - Load and validate configuration from YAML, environment variables,
//     and defaults (internal/config)
//   - Load the immutable ethics rule set once at startup (internal/ethics)
//   - Construct the Watchdog, Memory Engine, and Hierarchical Reasoner
//     and wire them behind internal/core's single entry point
//   - Open the sqlite-backed durability store and hand it to the Memory
//     Engine as a Persister
//   - Start the Watchdog's periodic cooperative tasks in the background
//   - Serve health, readiness, and Prometheus metrics endpoints
//   - Implement graceful shutdown with context cancellation
//
// Architecture Flow:
//  1. internal/ethics loads rules once, for the life of the process
//  2. internal/watchdog.Run starts its four periodic tasks in a goroutine
//  3. internal/core.Decide/.Ingest/.QueryMemory/.Feedback/.Health are the
//     five operations every upstream caller (agents, transports, CLIs —
//     all out of scope here) ultimately invokes
//  4. /health, /ready, and /metrics expose the daemon to an orchestrator
//     and to Prometheus
//
// Graceful Shutdown:
//   - Stops accepting new HTTP connections
//   - Cancels the watchdog's background context
//   - Flushes and closes the audit logger
//   - Closes the sqlite store
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kubilitics/kernel/internal/audit"
	"github.com/kubilitics/kernel/internal/config"
	"github.com/kubilitics/kernel/internal/core"
	"github.com/kubilitics/kernel/internal/db"
	"github.com/kubilitics/kernel/internal/ethics"
	"github.com/kubilitics/kernel/internal/memory"
	"github.com/kubilitics/kernel/internal/quality"
	"github.com/kubilitics/kernel/internal/reasoning"
	"github.com/kubilitics/kernel/internal/watchdog"
)

func main() {
	configPath := flag.String("config", "/etc/kernel/config.yaml", "path to YAML config file")
	addr := flag.String("addr", ":8090", "address to serve health and metrics on")
	flag.Parse()

	if err := run(*configPath, *addr); err != nil {
		fmt.Fprintln(os.Stderr, "kerneld:", err)
		os.Exit(1)
	}
}

func run(configPath, addr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgMgr, err := config.NewConfigManager(configPath)
	if err != nil {
		return fmt.Errorf("config manager: %w", err)
	}
	if err := cfgMgr.Load(ctx); err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfgMgr.Validate(ctx); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg := cfgMgr.Get(ctx)

	log, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	auditCfg := audit.DefaultConfig()
	if cfg.Logging.FilePath != "" {
		auditCfg.AuditLogPath = cfg.Logging.FilePath
	}
	if cfg.Logging.MaxSizeMB > 0 {
		auditCfg.MaxSize = cfg.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxBackups > 0 {
		auditCfg.MaxBackups = cfg.Logging.MaxBackups
	}
	if cfg.Logging.MaxAgeDays > 0 {
		auditCfg.MaxAge = cfg.Logging.MaxAgeDays
	}
	if cfg.Logging.Level != "" {
		auditCfg.LogLevel = cfg.Logging.Level
	}
	auditLog, err := audit.NewLogger(auditCfg)
	if err != nil {
		return fmt.Errorf("audit logger: %w", err)
	}
	defer auditLog.Close()

	registry, err := ethics.NewRegistry(ethics.DefaultRuleSource(), log)
	if err != nil {
		return fmt.Errorf("ethics registry: %w", err)
	}

	store, err := db.NewSQLiteStore(cfg.Database.SQLitePath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	persister, err := db.NewMemoryPersister(store)
	if err != nil {
		return fmt.Errorf("memory persister: %w", err)
	}
	mem := memory.New(persister, log)

	mem.UpdateQualityThresholds(qualityThresholdsFromConfig(cfg))

	mon := watchdog.New(thresholdsFromConfig(cfg), log, &watchdog.Hooks{
		OnBackpressure: func(reason string) {
			auditLog.LogBackpressure(ctx, reason)
		},
		OnIsolate: func(agentName, reason string) {
			auditLog.LogAgentIsolated(ctx, agentName, reason)
			if err := store.AppendAuditEvent(ctx, &db.AuditRecord{
				EventType: "agent_isolated",
				Resource:  agentName,
				Action:    "isolate",
				Result:    reason,
				Metadata:  "{}",
				Timestamp: time.Now(),
			}); err != nil {
				log.Warn("kerneld: audit append failed", zap.String("agent", agentName), zap.Error(err))
			}
		},
	})

	reasoner, err := reasoning.New(reasoning.Deps{
		Registry: registry,
		Watchdog: mon,
		Budgets:  budgetsFromConfig(cfg),
		Weights:  reasoning.DefaultWeights(),
		Triggers: triggersFromConfig(cfg),
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("reasoner: %w", err)
	}

	kernel := core.New(core.Deps{
		Registry: registry,
		Watchdog: mon,
		Memory:   mem,
		Reasoner: reasoner,
		Audit:    store,
		Log:      log,
	})

	watchdogCtx, cancelWatchdog := context.WithCancel(ctx)
	defer cancelWatchdog()
	go mon.Run(watchdogCtx)

	go watchConfig(ctx, cfgMgr, reasoner, mem, log)

	mux := http.NewServeMux()
	registerHandlers(mux, kernel)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Info("kerneld: http listener starting", zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("kerneld: http server failed", zap.Error(err))
		}
	}()

	log.Info("kerneld: started",
		zap.Int("ethics_rules", len(registry.GetRules(""))),
		zap.String("db_path", cfg.Database.SQLitePath),
	)

	<-ctx.Done()
	log.Info("kerneld: shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("kerneld: http shutdown error", zap.Error(err))
	}
	cancelWatchdog()
	wg.Wait()

	log.Info("kerneld: stopped")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func budgetsFromConfig(cfg *config.Config) reasoning.Budgets {
	b := reasoning.DefaultBudgets()
	if cfg.Reasoning.GlobalBudgetMS > 0 {
		b.Global = time.Duration(cfg.Reasoning.GlobalBudgetMS) * time.Millisecond
	}
	if cfg.Reasoning.L2BudgetMS > 0 {
		b.L2 = time.Duration(cfg.Reasoning.L2BudgetMS) * time.Millisecond
	}
	if cfg.Reasoning.L3BudgetMS > 0 {
		b.L3 = time.Duration(cfg.Reasoning.L3BudgetMS) * time.Millisecond
	}
	if cfg.Reasoning.L4BudgetMS > 0 {
		b.L4 = time.Duration(cfg.Reasoning.L4BudgetMS) * time.Millisecond
	}
	return b
}

func triggersFromConfig(cfg *config.Config) reasoning.TriggerConfig {
	t := reasoning.DefaultTriggerConfig()
	if cfg.Reasoning.FastPathComplianceLow > 0 {
		t.FastPathComplianceLow = cfg.Reasoning.FastPathComplianceLow
	}
	if cfg.Reasoning.FastPathComplianceHigh > 0 {
		t.FastPathComplianceHigh = cfg.Reasoning.FastPathComplianceHigh
	}
	if len(cfg.Reasoning.FastPathActionTypes) > 0 {
		t.FastPathActionTypes = cfg.Reasoning.FastPathActionTypes
	}
	t.FastPath = reasoning.FormatFastPath(t.FastPathComplianceLow, t.FastPathComplianceHigh)
	return t
}

func qualityThresholdsFromConfig(cfg *config.Config) quality.Thresholds {
	t := quality.DefaultThresholds()
	if cfg.Quality.ImportanceThreshold > 0 {
		t.ImportanceThreshold = cfg.Quality.ImportanceThreshold
	}
	if cfg.Quality.DuplicateSimilarity > 0 {
		t.DuplicateJaccard = cfg.Quality.DuplicateSimilarity
	}
	if cfg.Quality.DuplicateTopicOverlap > 0 {
		t.DuplicateTopicOverlap = cfg.Quality.DuplicateTopicOverlap
	}
	return t
}

// watchConfig applies config.ConfigManager.Watch's stream to the two live
// tunable surfaces: the reasoner's adaptive triggers and the Memory
// Engine's Quality Filter thresholds. Watchdog thresholds and reasoning
// budgets are intentionally not re-applied here — both are wired once at
// startup into components that do not expose a live-update path, and
// restarting them mid-process would drop in-flight observations.
func watchConfig(ctx context.Context, cfgMgr config.ConfigManager, reasoner reasoning.Reasoner, mem memory.Engine, log *zap.Logger) {
	ch := cfgMgr.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			if err := reasoner.UpdateTriggers(triggersFromConfig(&cfg)); err != nil {
				log.Warn("kerneld: config reload: trigger update rejected", zap.Error(err))
				continue
			}
			mem.UpdateQualityThresholds(qualityThresholdsFromConfig(&cfg))
			log.Info("kerneld: config reloaded, triggers and quality thresholds updated")
		}
	}
}

func thresholdsFromConfig(cfg *config.Config) watchdog.Thresholds {
	t := watchdog.DefaultThresholds()
	if cfg.Watchdog.FailureRateThreshold > 0 {
		t.FailureRate = cfg.Watchdog.FailureRateThreshold
	}
	if cfg.Watchdog.LatencyThresholdMS > 0 {
		t.MaxAvgLatencyMS = cfg.Watchdog.LatencyThresholdMS
	}
	if cfg.Watchdog.ConsecutiveFailThreshold > 0 {
		t.MaxConsecutiveFails = cfg.Watchdog.ConsecutiveFailThreshold
	}
	if cfg.Watchdog.ViolationsPerMinute > 0 {
		t.MaxViolationsPerMin = cfg.Watchdog.ViolationsPerMinute
	}
	if cfg.Watchdog.WindowSize > 0 {
		t.WindowSize = cfg.Watchdog.WindowSize
	}
	return t
}

func registerHandlers(mux *http.ServeMux, kernel core.Core) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		snap := kernel.Health(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if snap.EmergencyHalted {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"halted","reason":%q}`, snap.HaltReason)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"status":"ok"}`)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"ready":true}`)
	})

	mux.Handle("/metrics", promhttp.Handler())
}
