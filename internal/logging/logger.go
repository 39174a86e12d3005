// Package logging builds the engine's slog.Logger from config.Config,
// grounded in the teacher's server/oscar/middleware.NewLogger.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"github.com/palserver/paltalk-server/internal/config"
)

// New returns a text-handler slog.Logger at the level named by
// cfg.LogLevel, defaulting to info for an unrecognized or empty value.
func New(cfg config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	case "info":
		fallthrough
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
