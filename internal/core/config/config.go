// Package config provides configuration management for intervalq services.
package config

import (
	"time"

	"github.com/solatis/intervalq/internal/mapping"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Analysis AnalysisConfig
	Script   ScriptConfig
	Log      LogConfig
}

// ServerConfig holds configuration for the gRPC compile service.
type ServerConfig struct {
	Host            string
	Port            int
	MaxConnections  int
	RequestTimeout  time.Duration
	MaxRequestBytes int
}

// DatabaseConfig locates the mapping store.
type DatabaseConfig struct {
	URL string // sqlite://path or postgres://...
}

// AnalysisConfig holds analysis defaults for mappings.
type AnalysisConfig struct {
	DefaultAnalyzer string // analyzer for text fields that name none
}

// ScriptConfig controls script filters.
type ScriptConfig struct {
	Enabled  bool
	MaxSteps uint64 // per-interval step budget, 0 = unlimited
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string
	Format string // json or text
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            50051,
			MaxConnections:  1000,
			RequestTimeout:  30 * time.Second,
			MaxRequestBytes: 4 << 20,
		},
		Database: DatabaseConfig{
			URL: "sqlite://./data/intervalq.db",
		},
		Analysis: AnalysisConfig{
			DefaultAnalyzer: mapping.StandardAnalyzer,
		},
		Script: ScriptConfig{
			Enabled:  true,
			MaxSteps: 10000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
