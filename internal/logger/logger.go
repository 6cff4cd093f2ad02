// Package logger configures the process-wide zerolog logger: console
// writer for development, JSON for production, selected once at startup and passed
// down by constructor injection from there on.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger, mirroring internal/config.LoggingConfig.
type Options struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "console" or "json"
}

// New builds the root logger per Options. Called once in cmd/server/main.go;
// components receive it, or a sub-logger made with .With(), by constructor
// injection. internal/template is the exception: it logs through zerolog's
// global logger.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if opts.Format != "json" {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithContext attaches l to ctx so downstream code can recover it via
// zerolog.Ctx(ctx) without threading a logger parameter through every call.
func WithContext(ctx context.Context, l zerolog.Logger) context.Context {
	return l.WithContext(ctx)
}
