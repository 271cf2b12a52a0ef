package config

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a *slog.Logger from cfg and sets it as the default logger.
//
// Format "json" produces structured JSON output; anything else produces text.
// The returned LevelVar can be updated later to change verbosity in place,
// which is how config hot-reload applies logging.level.
func NewLogger(cfg LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	return newLogger(os.Stderr, cfg)
}

func newLogger(w io.Writer, cfg LoggingConfig) (*slog.Logger, *slog.LevelVar) {
	level := new(slog.LevelVar)
	level.Set(ParseLevel(cfg.Level))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger, level
}

// ParseLevel maps debug, info, warn and error (case-insensitive) to slog levels.
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
