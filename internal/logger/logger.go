package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls log output.
type Config struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// New builds the service logger.
func New(config Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil || config.Level == "" {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if config.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(level).With().
		Timestamp().
		Str("service", "valuation").
		Logger()
}
