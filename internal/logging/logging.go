// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides the structured logger used across foreman.
// Loggers carry key/value attributes and an optional component tag so
// log lines from the control plane, HA machinery and audit trail can be
// told apart in a single stream.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config controls logger output.
type Config struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// Format is "text" or "json".
	Format string

	// Output defaults to stderr.
	Output io.Writer
}

// DefaultConfig returns the standard logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "text",
		Output: os.Stderr,
	}
}

// Logger is a thin wrapper over slog with variadic key/value calls.
type Logger struct {
	s *slog.Logger
}

// New creates a logger from the given configuration.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return &Logger{s: slog.New(h)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a logger with the given attributes attached to every line.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{s: l.s.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.s.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.s.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.s.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.s.Error(msg, kv...) }

var (
	defaultMu sync.RWMutex
	defaultL  = New(DefaultConfig())
)

// SetDefault replaces the process-wide default logger.
func SetDefault(l *Logger) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultL = l
}

// Default returns the process-wide default logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultL
}

// WithComponent returns a logger derived from the default logger,
// tagged with a component name.
func WithComponent(name string) *Logger {
	return Default().With("component", name)
}

// Package-level helpers for low-ceremony call sites.

func Info(msg string, kv ...any)  { Default().Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default().Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default().Error(msg, kv...) }
