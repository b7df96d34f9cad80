package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	want := DefaultConfig()
	if cfg.Server != want.Server {
		t.Errorf("Server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Database != want.Database {
		t.Errorf("Database = %+v, want %+v", cfg.Database, want.Database)
	}
	if cfg.Analysis != want.Analysis {
		t.Errorf("Analysis = %+v, want %+v", cfg.Analysis, want.Analysis)
	}
	if cfg.Script != want.Script {
		t.Errorf("Script = %+v, want %+v", cfg.Script, want.Script)
	}
	if cfg.Log != want.Log {
		t.Errorf("Log = %+v, want %+v", cfg.Log, want.Log)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `server:
  host: "127.0.0.1"
  port: 7070
  request_timeout: 5s
  max_request_bytes: 1024
database:
  url: "sqlite:///var/lib/intervalq/store.db"
analysis:
  default_analyzer: simple
script:
  enabled: false
  max_steps: 500
log:
  level: DEBUG
  format: text
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %v, want %v", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %v, want %v", cfg.Server.Port, 7070)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("RequestTimeout = %v, want %v", cfg.Server.RequestTimeout, 5*time.Second)
	}
	if cfg.Server.MaxRequestBytes != 1024 {
		t.Errorf("MaxRequestBytes = %v, want %v", cfg.Server.MaxRequestBytes, 1024)
	}
	if cfg.Database.URL != "sqlite:///var/lib/intervalq/store.db" {
		t.Errorf("Database.URL = %v", cfg.Database.URL)
	}
	if cfg.Analysis.DefaultAnalyzer != "simple" {
		t.Errorf("DefaultAnalyzer = %v, want simple", cfg.Analysis.DefaultAnalyzer)
	}
	if cfg.Script.Enabled {
		t.Error("Script.Enabled = true, want false")
	}
	if cfg.Script.MaxSteps != 500 {
		t.Errorf("Script.MaxSteps = %v, want 500", cfg.Script.MaxSteps)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("Log = %+v, want debug/text", cfg.Log)
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	t.Setenv("IQ_SERVER_PORT", "8080")
	t.Setenv("IQ_SCRIPT_ENABLED", "false")

	path := writeConfig(t, `server:
  port: 9090
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080 (environment overrides config file)", cfg.Server.Port)
	}
	if cfg.Script.Enabled {
		t.Error("Script.Enabled = true, want false from environment")
	}
}

func TestLoadConfig_RejectsPasswordInFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"password in url", "database:\n  url: \"postgres://iq:hunter2@db:5432/iq\"\n"},
		{"password key", "database:\n  password: hunter2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("LoadConfig() error = nil, want error")
			}
			want := "database passwords not allowed in config files (use IQ_DATABASE_URL environment variable)"
			if err.Error() != want {
				t.Errorf("error = %q, want %q", err.Error(), want)
			}
		})
	}
}

func TestLoadConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv("IQ_DATABASE_URL", "postgres://iq:hunter2@db:5432/iq")

	cfg, err := LoadConfig(writeConfig(t, "server:\n  port: 9090\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Database.URL != "postgres://iq:hunter2@db:5432/iq" {
		t.Errorf("Database.URL = %v", cfg.Database.URL)
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"no connections", func(c *Config) { c.Server.MaxConnections = 0 }, true},
		{"no timeout", func(c *Config) { c.Server.RequestTimeout = 0 }, true},
		{"no request bytes", func(c *Config) { c.Server.MaxRequestBytes = -1 }, true},
		{"mysql url", func(c *Config) { c.Database.URL = "mysql://localhost/iq" }, true},
		{"postgresql url", func(c *Config) { c.Database.URL = "postgresql://localhost/iq" }, false},
		{"unknown analyzer", func(c *Config) { c.Analysis.DefaultAnalyzer = "klingon" }, true},
		{"whitespace analyzer", func(c *Config) { c.Analysis.DefaultAnalyzer = "whitespace" }, false},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"unlimited script steps", func(c *Config) { c.Script.MaxSteps = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	got := redactURL("postgres://iq:hunter2@db/iq")
	if got != "postgres://iq:xxxxx@db/iq" {
		t.Errorf("redactURL() = %v", got)
	}
	if got := redactURL("sqlite://./data/iq.db"); got != "sqlite://./data/iq.db" {
		t.Errorf("redactURL() = %v", got)
	}
}
