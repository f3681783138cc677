package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func New(env string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if isDevelopment(env) {
		level = zerolog.DebugLevel
	}

	var base zerolog.Logger
	if isDevelopment(env) {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	} else {
		base = zerolog.New(os.Stdout)
	}

	return base.Level(level).With().
		Timestamp().
		Str("service", "aquaroute").
		Str("env", env).
		Logger()
}

func isDevelopment(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "dev", "development", "local":
		return true
	default:
		return false
	}
}
