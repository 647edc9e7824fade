// Package observability builds the process logger, wires Sentry and
// provides the echo middleware that reports requests and panics.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a JSON slog logger. Development environments log at
// debug level so OTP codes from the log notifier are visible.
func NewLogger(env string) *slog.Logger {
	return newLogger(os.Stdout, env)
}

func newLogger(w io.Writer, env string) *slog.Logger {
	level := slog.LevelInfo
	if e := strings.ToLower(env); e == "dev" || e == "development" || e == "local" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})).
		With("service", "portfolio-backend")
}
