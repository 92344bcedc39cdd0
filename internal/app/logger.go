package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process logger. JSON output is for the deployed
// binaries behind the log shipper; the pretty text handler is the dev default.
// Every record carries the service name so API and worker logs can be told
// apart in a shared stream.
func NewLogger(cfg *Config, service string) *slog.Logger {
	var handler slog.Handler
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true})
	}
	return slog.New(handler).With(slog.String("service", service))
}
