package stepflow

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger represents the interface for structured logging used throughout the
// adapter. *slog.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// LogConfig selects the handler built by NewLoggerFromConfig.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LOG_LEVEL" default:"warn"`
	Format string `yaml:"format" toml:"format" env:"LOG_FORMAT" default:"text"`
}

// defaultLogger only reports problems, so a plain test run stays quiet.
func defaultLogger() Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// NewLoggerFromConfig builds a slog logger writing to w.
func NewLoggerFromConfig(w io.Writer, cfg LogConfig) Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
