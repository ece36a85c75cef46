package logging

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface used across the module. This
// allows callers to provide their own implementation or use the built-in
// slog adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger { return &SlogAdapter{Logger: logger} }

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// Config configures construction of a RealmLogger.
type Config struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns a baseline JSON info level configuration.
func DefaultConfig() *Config {
	return &Config{Level: LogLevelInfo, Format: "json", Output: os.Stdout}
}

// RealmLogger wraps slog.Logger adding contextual cloning helpers and domain
// convenience methods. Cheap to copy via the With* methods.
type RealmLogger struct {
	logger *slog.Logger
}

// NewLogger builds a RealmLogger from a config (or defaults if nil).
func NewLogger(cfg *Config) *RealmLogger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With("component", cfg.Component)
	}
	return &RealmLogger{logger: l}
}

// NewSlogLogger is a shorthand constructor covering the common cases.
func NewSlogLogger(level LogLevel, format string) *RealmLogger {
	cfg := DefaultConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	return NewLogger(cfg)
}

// WithComponent returns a logger tagged with a logical component (engine,
// pool, generator, provider name).
func (l *RealmLogger) WithComponent(c string) *RealmLogger {
	return &RealmLogger{logger: l.logger.With("component", c)}
}

// WithInstance returns a logger tagged with a scenario instance id.
func (l *RealmLogger) WithInstance(instanceID string) *RealmLogger {
	return &RealmLogger{logger: l.logger.With("instance_id", instanceID)}
}

// Debug logs at debug level.
func (l *RealmLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *RealmLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *RealmLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *RealmLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// LogDispatch records one AI dispatch: role, action, latency and outcome.
// Timed-out dispatches log at warn so they stand out without being errors;
// the world keeps functioning when an NPC misses a reaction cycle.
func (l *RealmLogger) LogDispatch(role, action string, dur time.Duration, success, timedOut bool) {
	args := []any{"role", role, "action", action, "duration", dur, "success", success}
	switch {
	case timedOut:
		l.logger.Warn("dispatch timed out", args...)
	case !success:
		l.logger.Warn("dispatch failed", args...)
	default:
		l.logger.Debug("dispatch completed", args...)
	}
}

// LogTick records aggregate tick metrics for an instance.
func (l *RealmLogger) LogTick(instanceID string, tick uint64, drained, dispatched int, dur time.Duration) {
	l.logger.Debug("tick completed",
		"instance_id", instanceID, "tick", tick,
		"events_drained", drained, "dispatches", dispatched, "duration", dur)
}

// LogGeneration records the outcome of a world generation run.
func (l *RealmLogger) LogGeneration(templateID string, dur time.Duration, err error) {
	if err != nil {
		l.logger.Error("generation failed", "template", templateID, "duration", dur, "error", err)
		return
	}
	l.logger.Info("generation completed", "template", templateID, "duration", dur)
}
