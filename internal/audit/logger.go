package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger defines the interface for audit logging
type Logger interface {
	// Log logs an audit event
	Log(ctx context.Context, event *Event) error

	// LogDecisionMade logs a Hierarchical Reasoner decision
	LogDecisionMade(ctx context.Context, correlationID, decision string, confidence float64, levelsExecuted []int) error

	// LogMemory logs Quality Filter / Memory Engine lifecycle events
	LogMemoryStored(ctx context.Context, memoryID string, importance int) error
	LogMemoryRejected(ctx context.Context, reason string) error
	LogConsolidation(ctx context.Context, topic string, sourceCount int) error
	LogMemoryFeedback(ctx context.Context, memoryID, kind string) error

	// LogWatchdog logs Agent Health Monitor events
	LogAgentIsolated(ctx context.Context, agentName, reason string) error
	LogAgentRestored(ctx context.Context, agentName string) error
	LogEmergencyHalt(ctx context.Context, reason string) error
	LogBackpressure(ctx context.Context, reason string) error

	// Sync flushes buffered log entries
	Sync() error

	// Close closes the audit logger
	Close() error
}

// Config represents audit logger configuration
type Config struct {
	// AuditLogPath is the path to the audit log file
	AuditLogPath string

	// AppLogPath is the path to the application log file
	AppLogPath string

	// MaxSize is the maximum size in megabytes before rotation
	MaxSize int

	// MaxBackups is the maximum number of old log files to retain
	MaxBackups int

	// MaxAge is the maximum number of days to retain old log files
	MaxAge int

	// Compress determines if rotated files should be compressed
	Compress bool

	// LogLevel is the minimum log level (debug, info, warn, error)
	LogLevel string
}

// DefaultConfig returns default audit logger configuration
func DefaultConfig() *Config {
	return &Config{
		AuditLogPath: "logs/audit.log",
		AppLogPath:   "logs/app.log",
		MaxSize:      100, // megabytes
		MaxBackups:   10,
		MaxAge:       30, // days
		Compress:     true,
		LogLevel:     "info",
	}
}

// auditLogger implements the Logger interface
type auditLogger struct {
	appLogger   *zap.Logger
	auditLogger *zap.Logger
	config      *Config
	mu          sync.Mutex
	buffer      []*Event
	flushTicker *time.Ticker
	stopCh      chan struct{}
}

// NewLogger creates a new audit logger
func NewLogger(config *Config) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// Parse log level
	level, err := zapcore.ParseLevel(config.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.LogLevel, err)
	}

	// Create encoder config
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	// Create application logger with rotation
	appRotator := &lumberjack.Logger{
		Filename:   config.AppLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	appCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(appRotator),
		level,
	)

	appLogger := zap.New(appCore, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	// Create audit logger with rotation (always INFO level, append-only)
	auditRotator := &lumberjack.Logger{
		Filename:   config.AuditLogPath,
		MaxSize:    config.MaxSize,
		MaxBackups: config.MaxBackups,
		MaxAge:     config.MaxAge,
		Compress:   config.Compress,
	}

	auditCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(auditRotator),
		zapcore.InfoLevel, // Audit logs are always INFO level
	)

	auditZapLogger := zap.New(auditCore)

	// Create the logger instance
	logger := &auditLogger{
		appLogger:   appLogger,
		auditLogger: auditZapLogger,
		config:      config,
		buffer:      make([]*Event, 0, 100),
		flushTicker: time.NewTicker(1 * time.Second),
		stopCh:      make(chan struct{}),
	}

	// Start auto-flush goroutine
	go logger.autoFlush()

	return logger, nil
}

// Log logs an audit event
func (l *auditLogger) Log(ctx context.Context, event *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// Add to buffer
	l.buffer = append(l.buffer, event)

	// Flush if buffer is full
	if len(l.buffer) >= 100 {
		return l.flushLocked()
	}

	return nil
}

// flushLocked flushes the buffer (caller must hold lock)
func (l *auditLogger) flushLocked() error {
	if len(l.buffer) == 0 {
		return nil
	}

	// Write all buffered events
	for _, event := range l.buffer {
		eventJSON, err := json.Marshal(event)
		if err != nil {
			l.appLogger.Error("failed to marshal audit event",
				zap.Error(err),
				zap.String("event_type", string(event.EventType)),
			)
			continue
		}

		l.auditLogger.Info(string(eventJSON),
			zap.String("correlation_id", event.CorrelationID),
			zap.String("event_type", string(event.EventType)),
			zap.String("result", string(event.Result)),
		)
	}

	// Clear buffer
	l.buffer = l.buffer[:0]

	return nil
}

// autoFlush periodically flushes the buffer
func (l *auditLogger) autoFlush() {
	for {
		select {
		case <-l.flushTicker.C:
			l.mu.Lock()
			_ = l.flushLocked()
			l.mu.Unlock()
		case <-l.stopCh:
			return
		}
	}
}

// decisionEventType maps a reasoner decision string to its audit event type.
func decisionEventType(decision string) EventType {
	switch decision {
	case "approved":
		return EventDecisionApproved
	case "denied":
		return EventDecisionDenied
	default:
		return EventDecisionEscalate
	}
}

// LogDecisionMade logs the outcome of a Decide call.
func (l *auditLogger) LogDecisionMade(ctx context.Context, correlationID, decision string, confidence float64, levelsExecuted []int) error {
	event := NewEvent(decisionEventType(decision)).
		WithCorrelationID(correlationID).
		WithResult(ResultSuccess).
		WithMetadata("confidence", confidence).
		WithMetadata("levels_executed", levelsExecuted).
		WithDescription(fmt.Sprintf("decision %s for %s (confidence=%.2f)", decision, correlationID, confidence))

	return l.Log(ctx, event)
}

// LogMemoryStored logs a memory accepted by the quality filter.
func (l *auditLogger) LogMemoryStored(ctx context.Context, memoryID string, importance int) error {
	event := NewEvent(EventMemoryStored).
		WithResource(memoryID, "memory").
		WithResult(ResultSuccess).
		WithMetadata("importance", importance).
		WithDescription(fmt.Sprintf("memory %s stored (importance=%d)", memoryID, importance))

	return l.Log(ctx, event)
}

// LogMemoryRejected logs a memory rejected by the quality filter.
func (l *auditLogger) LogMemoryRejected(ctx context.Context, reason string) error {
	event := NewEvent(EventMemoryRejected).
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("memory rejected: %s", reason))

	return l.Log(ctx, event)
}

// LogConsolidation logs a compressed-knowledge consolidation pass for a topic.
func (l *auditLogger) LogConsolidation(ctx context.Context, topic string, sourceCount int) error {
	event := NewEvent(EventMemoryConsolidated).
		WithResource(topic, "topic").
		WithResult(ResultSuccess).
		WithMetadata("source_count", sourceCount).
		WithDescription(fmt.Sprintf("consolidated %d memories for topic %s", sourceCount, topic))

	return l.Log(ctx, event)
}

// LogMemoryFeedback logs a boost or demote feedback call.
func (l *auditLogger) LogMemoryFeedback(ctx context.Context, memoryID, kind string) error {
	event := NewEvent(EventMemoryFeedback).
		WithResource(memoryID, "memory").
		WithResult(ResultSuccess).
		WithMetadata("kind", kind).
		WithDescription(fmt.Sprintf("feedback %s applied to memory %s", kind, memoryID))

	return l.Log(ctx, event)
}

// LogAgentIsolated logs an automatic watchdog isolation.
func (l *auditLogger) LogAgentIsolated(ctx context.Context, agentName, reason string) error {
	event := NewEvent(EventAgentIsolated).
		WithResource(agentName, "agent").
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("agent %s isolated: %s", agentName, reason))

	return l.Log(ctx, event)
}

// LogAgentRestored logs a manual watchdog restoration.
func (l *auditLogger) LogAgentRestored(ctx context.Context, agentName string) error {
	event := NewEvent(EventAgentRestored).
		WithResource(agentName, "agent").
		WithResult(ResultSuccess).
		WithDescription(fmt.Sprintf("agent %s restored", agentName))

	return l.Log(ctx, event)
}

// LogEmergencyHalt logs the system-wide emergency halt trigger.
func (l *auditLogger) LogEmergencyHalt(ctx context.Context, reason string) error {
	event := NewEvent(EventEmergencyHalt).
		WithResult(ResultDenied).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("emergency halt: %s", reason))

	return l.Log(ctx, event)
}

// LogBackpressure logs a sustained decide-latency backpressure warning.
func (l *auditLogger) LogBackpressure(ctx context.Context, reason string) error {
	event := NewEvent(EventBackpressure).
		WithResult(ResultFailure).
		WithMetadata("reason", reason).
		WithDescription(fmt.Sprintf("backpressure detected: %s", reason))

	return l.Log(ctx, event)
}

// Sync flushes buffered log entries
func (l *auditLogger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.flushLocked(); err != nil {
		return err
	}

	if err := l.auditLogger.Sync(); err != nil {
		return err
	}

	return l.appLogger.Sync()
}

// Close closes the audit logger
func (l *auditLogger) Close() error {
	close(l.stopCh)
	l.flushTicker.Stop()

	if err := l.Sync(); err != nil {
		return err
	}

	return nil
}

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value("correlation_id").(string); ok {
		return id
	}
	return ""
}

// WithCorrelationID adds correlation ID to context
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, "correlation_id", id)
}

// GenerateCorrelationID generates a new correlation ID
func GenerateCorrelationID() string {
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), os.Getpid())
}
