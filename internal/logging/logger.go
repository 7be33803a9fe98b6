// Package logging builds the structured loggers used across taskboard.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	charmlog "github.com/charmbracelet/log"
)

// Options configures NewLogger.
type Options struct {
	Level     string
	Format    string // "text" (default) or "json"
	Writer    io.Writer
	Component string
}

// NewLogger returns a slog.Logger. The text format is rendered by
// charmbracelet/log for terminals; json is meant for log collectors.
func NewLogger(opts Options) *slog.Logger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	level := parseLevel(opts.Level)

	var h slog.Handler
	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "json":
		h = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: level})
	default:
		h = charmlog.NewWithOptions(writer, charmlog.Options{
			Level:           charmlog.Level(level),
			ReportTimestamp: false,
		})
	}

	lg := slog.New(h)
	if c := strings.TrimSpace(opts.Component); c != "" {
		lg = lg.With("component", c)
	}
	return lg
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ValidLevel reports whether level is one NewLogger understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
