// Package log configures the process-wide slog logger shared by the kbflow
// binaries.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup installs the default logger. Level is one of debug, info, warn or
// error; format is text or json. Unknown values fall back to info and text.
func Setup(logLevel, format string) {
	slog.SetDefault(slog.New(newHandler(os.Stderr, logLevel, format)))
}

func newHandler(w io.Writer, logLevel, format string) slog.Handler {
	var level slog.Level

	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if strings.ToLower(format) == FormatJSON {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// WithModule tags the default logger with the kbflow module emitting the logs.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}
