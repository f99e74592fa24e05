package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a slog.Logger for the named binary, formatted per
// LOG_FORMAT.
func NewLogger(cfg *Config, component string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	if component != "" {
		logger = logger.With(slog.String("component", component))
	}
	if cfg != nil && cfg.NodeID != "" {
		logger = logger.With(slog.String("node", cfg.NodeID))
	}
	return logger
}
