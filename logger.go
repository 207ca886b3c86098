package voxline

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with voxline-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses a default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithIndex adds a volume index field to the logger.
func (l *Logger) WithIndex(index int) *Logger {
	return &Logger{
		Logger: l.Logger.With("index", index),
	}
}

// WithPath adds a source path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogHeaderRead logs a metadata read.
func (l *Logger) LogHeaderRead(index int, path string, err error) {
	if err != nil {
		l.Debug("header read failed",
			"index", index,
			"path", path,
			"error", err,
		)
	} else {
		l.Debug("header read",
			"index", index,
			"path", path,
		)
	}
}

// LogLoad logs a foreground volume load.
func (l *Logger) LogLoad(index int, bytes int64, err error) {
	if err != nil {
		l.Warn("load failed, placeholder installed",
			"index", index,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.Debug("load completed",
			"index", index,
			"bytes", bytes,
		)
	}
}

// LogEviction logs one eviction step.
func (l *Logger) LogEviction(index int, recovered, used, target int64) {
	l.Debug("evicted volume",
		"index", index,
		"recovered", recovered,
		"used", used,
		"target", target,
	)
}

// LogPreload logs a background cache load.
func (l *Logger) LogPreload(index int, bytes int64, used, target int64, err error) {
	if err != nil {
		l.Warn("preload failed, placeholder installed",
			"index", index,
			"bytes", bytes,
			"error", err,
		)
	} else {
		l.Debug("preload completed",
			"index", index,
			"bytes", bytes,
			"used", used,
			"target", target,
		)
	}
}
