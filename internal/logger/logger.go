// Package logger builds the service's structured zerolog logger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/ruralpay/marketplace/internal/config"
)

// New returns a JSON logger at info level.
func New() zerolog.Logger {
	return NewWithConfig(config.LogConfig{Level: "info"})
}

// NewWithConfig builds a logger writing to stdout.
func NewWithConfig(cfg config.LogConfig) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(out io.Writer, cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", "marketplace-ledger").
		Logger()
}
