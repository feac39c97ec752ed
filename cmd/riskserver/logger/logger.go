// Package logger builds the risk server's structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/HatiCode/glucoguard/cmd/riskserver/config"
)

// New creates a slog.Logger writing to stderr in the configured format and
// level. Unknown levels fall back to info, unknown formats to text.
func New(cfg *config.Config) *slog.Logger {
	return newWithWriter(os.Stderr, cfg.LogFormat, cfg.LogLevel)
}

func newWithWriter(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With("component", "riskserver")
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
