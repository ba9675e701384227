package app

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/meterwatch/meterwatch/pkg/logging"
)

// NewLogger creates a configured logger based on the application
// configuration. Log level precedence (highest to lowest):
//  1. -v/--verbose flag (shortcut for debug)
//  2. -q/--quiet flag (shortcut for warn)
//  3. --log-level flag or LOG_LEVEL environment variable
//  4. Default (info)
func NewLogger(config *Config) zerolog.Logger {
	level := determineLogLevel(config)
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if config.LogFormat == "json" {
		logger = logging.New(os.Stderr)
	} else {
		logger = logging.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    config.NoColor,
		})
	}
	logger = logger.Level(parsed)
	if parsed <= zerolog.DebugLevel {
		logger = logger.With().Caller().Logger()
	}
	return logger
}

// determineLogLevel applies the precedence rules above.
func determineLogLevel(config *Config) string {
	if config.Verbose && config.Quiet {
		fmt.Fprintln(os.Stderr, "Warning: both --verbose and --quiet specified, using --quiet")
		return "warn"
	}
	if config.Verbose {
		return "debug"
	}
	if config.Quiet {
		return "warn"
	}
	if config.LogLevel != "" {
		return config.LogLevel
	}
	return "info"
}
