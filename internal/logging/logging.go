// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Configure sets the global logger. Development gets a console writer and
// debug level by default; everything else gets JSON on stderr. An explicit
// level overrides the default.
func Configure(appEnv, level string) zerolog.Logger {
	return ConfigureTo(os.Stderr, appEnv, level)
}

// ConfigureTo is Configure with an explicit destination.
func ConfigureTo(out io.Writer, appEnv, level string) zerolog.Logger {
	lvl := zerolog.InfoLevel
	if appEnv == "development" {
		lvl = zerolog.DebugLevel
	}
	if parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level))); err == nil && level != "" {
		lvl = parsed
	}

	zerolog.TimeFieldFormat = time.RFC3339
	if appEnv == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).Level(lvl).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(lvl)
	log.Logger = logger
	return logger
}
