package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/intervalq/internal/mapping"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence; flags are
// applied by the caller on the returned Config.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("server.request_timeout", def.Server.RequestTimeout.String())
	v.SetDefault("server.max_request_bytes", def.Server.MaxRequestBytes)
	v.SetDefault("database.url", def.Database.URL)
	v.SetDefault("analysis.default_analyzer", def.Analysis.DefaultAnalyzer)
	v.SetDefault("script.enabled", def.Script.Enabled)
	v.SetDefault("script.max_steps", def.Script.MaxSteps)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)

	// Bind environment variables with IQ_ prefix
	v.SetEnvPrefix("IQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := validateNoSecretsInConfig(configPath); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Port:            v.GetInt("server.port"),
			MaxConnections:  v.GetInt("server.max_connections"),
			RequestTimeout:  v.GetDuration("server.request_timeout"),
			MaxRequestBytes: v.GetInt("server.max_request_bytes"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Analysis: AnalysisConfig{
			DefaultAnalyzer: v.GetString("analysis.default_analyzer"),
		},
		Script: ScriptConfig{
			Enabled:  v.GetBool("script.enabled"),
			MaxSteps: v.GetUint64("script.max_steps"),
		},
		Log: LogConfig{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive limits, known analyzer, log
// settings and the database scheme.
func validateConfig(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections <= 0 {
		return fmt.Errorf("max_connections must be positive, got %d", cfg.Server.MaxConnections)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	if cfg.Server.MaxRequestBytes <= 0 {
		return fmt.Errorf("max_request_bytes must be positive, got %d", cfg.Server.MaxRequestBytes)
	}
	if !strings.HasPrefix(cfg.Database.URL, "sqlite://") &&
		!strings.HasPrefix(cfg.Database.URL, "postgres://") &&
		!strings.HasPrefix(cfg.Database.URL, "postgresql://") {
		return fmt.Errorf("database.url must start with sqlite:// or postgres://, got %q", redactURL(cfg.Database.URL))
	}

	analyzers, err := mapping.NewAnalyzers(nil)
	if err != nil {
		return err
	}
	if _, err := analyzers.Get(cfg.Analysis.DefaultAnalyzer); err != nil {
		return fmt.Errorf("analysis.default_analyzer: %w", err)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format must be json or text, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig rejects database passwords in config files;
// credentials belong in IQ_DATABASE_URL.
func validateNoSecretsInConfig(configPath string) error {
	file := viper.New()
	file.SetConfigFile(configPath)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if file.IsSet("database.password") {
		return fmt.Errorf("database passwords not allowed in config files (use IQ_DATABASE_URL environment variable)")
	}
	raw := file.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil
	}
	if _, hasPassword := u.User.Password(); hasPassword {
		return fmt.Errorf("database passwords not allowed in config files (use IQ_DATABASE_URL environment variable)")
	}
	return nil
}

// redactURL hides the password of a database URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
