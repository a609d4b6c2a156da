package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log is the global logger instance
var Log *slog.Logger

// level is shared by every handler created through Init or InitWriter so
// SetLevel applies to all of them.
var level slog.LevelVar

// Init initializes the global logger with the specified level.
// Output goes to stderr; stdout is reserved for crop parameters.
func Init(levelStr string) {
	InitWriter(os.Stderr, levelStr)
}

// InitWriter initializes the global logger writing to w.
func InitWriter(w io.Writer, levelStr string) {
	SetLevel(levelStr)
	Log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: &level,
	}))
}

// SetLevel changes the log level at runtime. Valid values: debug, info, warn, error.
// Invalid values fall back to info.
func SetLevel(levelStr string) {
	level.Set(ParseLevel(levelStr))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child logger carrying the given attributes.
// Before Init it returns a logger that discards everything.
func With(args ...any) *slog.Logger {
	if Log == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return Log.With(args...)
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	if Log != nil {
		Log.Debug(msg, args...)
	}
}

// Info logs an info message
func Info(msg string, args ...any) {
	if Log != nil {
		Log.Info(msg, args...)
	}
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	if Log != nil {
		Log.Warn(msg, args...)
	}
}

// Error logs an error message
func Error(msg string, args ...any) {
	if Log != nil {
		Log.Error(msg, args...)
	}
}
