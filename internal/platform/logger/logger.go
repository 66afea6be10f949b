package logger

import (
	"log/slog"
	"os"
)

// New returns the process-wide structured logger. JSON in production,
// text when SITELEDGER_LOG_FORMAT=text is set for local runs.
func New() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("SITELEDGER_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("SITELEDGER_LOG_FORMAT") == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}
