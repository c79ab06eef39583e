// Package logging builds the process-wide structured logger every
// component in this module derives a child logger from.
package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// New builds a zerolog.Logger at the given level, writing JSON to stdout
// in production and a console writer when env=="dev" — the same split
// email-service/app/logger.Init makes on LOG_FORMAT.
func New(level, env string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	base := zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
	if env == "dev" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger().Level(lvl)
	}
	return base
}

// Component returns a child logger tagged with the given component name,
// the convention every package in this module follows instead of passing
// around untagged loggers.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}
