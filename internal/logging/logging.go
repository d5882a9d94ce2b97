// Package logging wires zerolog the way services/gateway/logger did:
// console output in development, level derived from env.
package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/AlfredDev/orchestratord/internal/config"
)

// New returns a configured zerolog.Logger for the whole daemon.
func New(cfg *config.Config) zerolog.Logger {
	var out zerolog.ConsoleWriter
	lvl := zerolog.InfoLevel
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	} else {
		out = zerolog.ConsoleWriter{Out: os.Stderr, NoColor: true}
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
