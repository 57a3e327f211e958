// Package config provides TOML configuration loading for ptcoach.
//
// The configuration file supports the following structure:
//
//	[server]
//	host = "0.0.0.0"
//	port = 8080
//
//	[ingest]
//	max_fps = 15
//	queue_mode = "drop"
//	reconnect_delay_sec = 1
//	subscriber_buffer = 16
//	health_log_interval_sec = 30
//
//	[coach]
//	exercise = "squat"
//	models_dir = "models"
//	policy = "tolerance"
//
//	[sink]
//	enabled = false
//	path = "session.jsonl"
//	sample_interval_sec = 5
//
//	[logging]
//	level = "info"
//	verbose = false
//
// Example usage:
//
//	cfg, err := config.Load("config.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on %s:%d\n", cfg.Server.Host, cfg.Server.Port)
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the complete configuration for ptcoach.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Ingest  IngestConfig  `toml:"ingest"`
	Coach   CoachConfig   `toml:"coach"`
	Sink    SinkConfig    `toml:"sink"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig holds the HTTP listener settings for the fan-out server.
type ServerConfig struct {
	// Host is the bind address (default: "0.0.0.0").
	Host string `toml:"host"`
	// Port is the listening TCP port (default: 8080).
	Port int `toml:"port"`
}

// IngestConfig holds pose-frame ingest and fan-out tunables, mirroring
// streamserver.Config.
type IngestConfig struct {
	// MaxFPS caps the ingest rate (default: 15).
	MaxFPS float64 `toml:"max_fps"`
	// QueueMode is "drop" or "depth_one" (default: "drop").
	QueueMode string `toml:"queue_mode"`
	// ReconnectDelaySec is the delay between reconnect attempts for a
	// remote skeleton source (default: 1).
	ReconnectDelaySec int `toml:"reconnect_delay_sec"`
	// SubscriberBuffer is the per-subscriber channel capacity (default: 16).
	SubscriberBuffer int `toml:"subscriber_buffer"`
	// HealthLogIntervalSec is the health-monitor log cadence (default: 30).
	HealthLogIntervalSec int `toml:"health_log_interval_sec"`
}

// CoachConfig selects which exercise and policy the engine runs.
type CoachConfig struct {
	// Exercise is the registry key to coach (default: "squat").
	Exercise string `toml:"exercise"`
	// ModelsDir is where trained model artifacts live (default: "models").
	ModelsDir string `toml:"models_dir"`
	// DataDir is where reference capture JSON lives for training
	// (default: "data").
	DataDir string `toml:"data_dir"`
	// Policy is "simple" or "tolerance" (default: "tolerance").
	Policy string `toml:"policy"`
}

// SinkConfig controls the optional session log.
type SinkConfig struct {
	// Enabled turns on the FileSink (default: false, NopSink).
	Enabled bool `toml:"enabled"`
	// Path is the JSON-lines file to append to.
	Path string `toml:"path"`
	// SampleIntervalSec is the gocron flush cadence (default: 5).
	SampleIntervalSec int `toml:"sample_interval_sec"`
}

// LoggingConfig controls the shared zap.Logger construction.
type LoggingConfig struct {
	// Level is "debug", "info", "warn", or "error" (default: "info").
	Level string `toml:"level"`
	// Verbose switches to a human-readable console encoder (default: false).
	Verbose bool `toml:"verbose"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Ingest: IngestConfig{
			MaxFPS:               15,
			QueueMode:            "drop",
			ReconnectDelaySec:    1,
			SubscriberBuffer:     16,
			HealthLogIntervalSec: 30,
		},
		Coach: CoachConfig{
			Exercise:  "squat",
			ModelsDir: "models",
			DataDir:   "data",
			Policy:    "tolerance",
		},
		Sink: SinkConfig{
			Enabled:           false,
			Path:              "session.jsonl",
			SampleIntervalSec: 5,
		},
		Logging: LoggingConfig{
			Level:   "info",
			Verbose: false,
		},
	}
}

// Load reads and parses a TOML configuration file.
// If the file does not exist, it returns the default configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Ingest.MaxFPS <= 0 {
		return fmt.Errorf("ingest max_fps must be positive, got %f", c.Ingest.MaxFPS)
	}
	switch c.Ingest.QueueMode {
	case "drop", "depth_one":
	default:
		return fmt.Errorf("ingest queue_mode must be \"drop\" or \"depth_one\", got %q", c.Ingest.QueueMode)
	}
	if c.Ingest.ReconnectDelaySec < 0 {
		return fmt.Errorf("ingest reconnect_delay_sec must not be negative, got %d", c.Ingest.ReconnectDelaySec)
	}
	if c.Ingest.SubscriberBuffer <= 0 {
		return fmt.Errorf("ingest subscriber_buffer must be positive, got %d", c.Ingest.SubscriberBuffer)
	}
	if c.Ingest.HealthLogIntervalSec <= 0 {
		return fmt.Errorf("ingest health_log_interval_sec must be positive, got %d", c.Ingest.HealthLogIntervalSec)
	}
	if c.Coach.Exercise == "" {
		return fmt.Errorf("coach exercise must not be empty")
	}
	switch c.Coach.Policy {
	case "simple", "tolerance":
	default:
		return fmt.Errorf("coach policy must be \"simple\" or \"tolerance\", got %q", c.Coach.Policy)
	}
	if c.Sink.Enabled && c.Sink.Path == "" {
		return fmt.Errorf("sink path must be set when sink is enabled")
	}
	if c.Sink.SampleIntervalSec <= 0 {
		return fmt.Errorf("sink sample_interval_sec must be positive, got %d", c.Sink.SampleIntervalSec)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}
