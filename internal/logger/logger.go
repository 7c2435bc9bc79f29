// Package logger provides JSON structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Config controls process-wide log output.
type Config struct {
	Level  string `json:"level"`
	Debug  bool   `json:"debug"`
	Output string `json:"output"`
}

var globalLogger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// Init configures the global logger from config.
func Init(config Config) error {
	var output io.Writer = os.Stderr
	if config.Output == "stdout" {
		output = os.Stdout
	}

	level := zerolog.InfoLevel
	if config.Debug {
		level = zerolog.DebugLevel
	} else if config.Level != "" {
		var err error
		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return err
		}
	}

	globalLogger = zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	return nil
}

// WithComponent returns a logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}
