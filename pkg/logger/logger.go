// Package logger builds the application's zerolog loggers.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config controls log verbosity and output format.
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // human-readable console output for development
}

// New builds a logger from the config. An unknown or empty level string falls
// back to info, so a typo in LOG_LEVEL never blocks startup.
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	}

	return zerolog.New(out).With().Timestamp().Logger()
}

// SetGlobalLogger installs l as zerolog's package-level logger so code logging
// through zerolog/log shares the configured output.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
