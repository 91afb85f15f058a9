package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// New builds a logger writing to w. format is "text", "json" or "pretty"
// (colored, for terminals); level is debug, info, warn or error (info when
// unrecognized).
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
	}

	var handler slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "pretty":
		handler = log.NewWithOptions(w, log.Options{
			Level:           log.Level(lvl),
			ReportTimestamp: true,
			TimeFormat:      time.RFC3339,
		})
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Init configures the stderr logger from LOG_LEVEL, LOG_FORMAT and DEBUG,
// installs it as the slog default and returns it.
func Init() *slog.Logger {
	level := os.Getenv("LOG_LEVEL")
	if os.Getenv("DEBUG") == "true" {
		level = "debug"
	}

	l := New(level, os.Getenv("LOG_FORMAT"), os.Stderr)
	slog.SetDefault(l)
	return l
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
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
