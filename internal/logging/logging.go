// Package logging builds the zap.Logger ptcoach commands and packages
// share, replacing the teacher's stdlib log.Printf calls with structured,
// leveled logging (grounded on viamrobotics-rdk's zap.Config usage).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a logger at the given level ("debug", "info", "warn", "error").
// verbose, when true, switches the encoder to a human-readable console
// format with stack traces enabled; otherwise it emits single-line JSON
// suitable for log aggregation.
func New(level string, verbose bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: parsing level %q: %w", level, err)
	}

	cfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(lvl),
		Encoding:          "json",
		DisableStacktrace: true,
		EncoderConfig:     zap.NewProductionEncoderConfig(),
		OutputPaths:       []string{"stderr"},
		ErrorOutputPaths:  []string{"stderr"},
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if verbose {
		cfg.Encoding = "console"
		cfg.DisableStacktrace = false
		cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: building logger: %w", err)
	}
	return logger, nil
}

// Must panics if New fails, for use at process startup where there is no
// sensible fallback.
func Must(level string, verbose bool) *zap.Logger {
	logger, err := New(level, verbose)
	if err != nil {
		panic(err)
	}
	return logger
}
