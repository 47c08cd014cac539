// Package logger provides structured logging for usage-ledger.
//
// Every pipeline component receives a Logger and tags its records with a
// component name, so a single log stream can be filtered per engine:
//
//	log := logger.New(logger.Config{
//	    Level:  "info",
//	    Output: "stderr",
//	    Format: "text",
//	})
//	agg := log.Named("aggregator")
//	agg.Warn("hour cap applied", "date", "2024-05-01", "hour", 13)
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnknownLevel is returned by ParseLevel for an unrecognized name.
	ErrUnknownLevel = errors.New("unknown log level")

	// ErrUnknownFormat is returned by CheckFormat for anything but text or json.
	ErrUnknownFormat = errors.New("unknown log format")
)

// Logger provides leveled, key/value structured logging.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})

	// With returns a logger that adds the given fields to every record.
	With(keysAndValues ...interface{}) Logger

	// Named returns a logger tagged with component=name.
	Named(name string) Logger
}

// Config contains logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string

	// Output is stdout, stderr or a file path. Missing parent directories
	// of a file path are created.
	Output string

	// Format is text or json.
	Format string
}

type slogLogger struct {
	l *slog.Logger
}

// New creates a logger from cfg. An output that cannot be opened falls back
// to stderr; an unknown level falls back to info.
func New(cfg Config) Logger {
	w, err := openOutput(cfg.Output)
	if err != nil {
		w = os.Stderr
	}
	return NewWithWriter(cfg, w)
}

// NewWithWriter creates a logger writing to w, ignoring cfg.Output.
func NewWithWriter(cfg Config, w io.Writer) Logger {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	return &slogLogger{l: slog.New(newHandler(cfg.Format, w, level))}
}

func newHandler(format string, w io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func (s *slogLogger) Debug(msg string, keysAndValues ...interface{}) {
	s.l.Debug(msg, keysAndValues...)
}

func (s *slogLogger) Info(msg string, keysAndValues ...interface{}) {
	s.l.Info(msg, keysAndValues...)
}

func (s *slogLogger) Warn(msg string, keysAndValues ...interface{}) {
	s.l.Warn(msg, keysAndValues...)
}

func (s *slogLogger) Error(msg string, keysAndValues ...interface{}) {
	s.l.Error(msg, keysAndValues...)
}

func (s *slogLogger) With(keysAndValues ...interface{}) Logger {
	return &slogLogger{l: s.l.With(keysAndValues...)}
}

func (s *slogLogger) Named(name string) Logger {
	return s.With("component", name)
}

// ParseLevel converts a level name to slog.Level. Names are case
// insensitive; "warning" is accepted for warn and an empty name means info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
}

// CheckFormat reports whether format names a supported handler.
func CheckFormat(format string) error {
	switch strings.ToLower(format) {
	case "text", "json":
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// openOutput resolves stdout, stderr (default) or a file opened for append.
func openOutput(output string) (io.Writer, error) {
	switch strings.ToLower(output) {
	case "stdout":
		return os.Stdout, nil
	case "stderr", "":
		return os.Stderr, nil
	}

	if err := os.MkdirAll(filepath.Dir(output), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	// #nosec G304: output path comes from trusted config
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600) // nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", output, err)
	}
	return f, nil
}

// Default returns an info-level text logger on stderr.
func Default() Logger {
	return New(Config{Level: "info", Output: "stderr", Format: "text"})
}

// Noop returns a logger that discards everything.
func Noop() Logger {
	return &slogLogger{l: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.LevelError + 1,
	}))}
}
