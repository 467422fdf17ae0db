package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig holds configuration for the control hub server
type AppConfig struct {
	Server   ServerSettings   `yaml:"server"`
	Storage  StorageSettings  `yaml:"storage"`
	Database DatabaseSettings `yaml:"database"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
	// AuthToken guards the agent websocket and operator endpoints. Empty
	// disables authentication.
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
}

// StorageSettings sizes the in-memory sample ring per agent
type StorageSettings struct {
	BufferSize int `yaml:"buffer_size"`
}

// DatabaseSettings configures SQLite history
type DatabaseSettings struct {
	Enabled       bool          `yaml:"enabled"`
	Path          string        `yaml:"path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushPeriod   time.Duration `yaml:"flush_period"`
	ChannelSize   int           `yaml:"channel_size"`
	RetentionDays int           `yaml:"retention_days"`
	CleanupPeriod time.Duration `yaml:"cleanup_period"`
}

// LoadAppConfig loads server configuration from a YAML file. An empty path
// uses defaults and the environment only.
func LoadAppConfig(path string) (*AppConfig, error) {
	var config AppConfig
	if path != "" {
		yamlData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(yamlData, &config); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	config.ApplyDefaults()
	if err := config.OverrideFromEnv(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults sets default values for server config
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 3000
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "0.0.0.0"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 10 * time.Second
	}
	if ac.Storage.BufferSize == 0 {
		ac.Storage.BufferSize = 100
	}
	if ac.Database.Path == "" {
		ac.Database.Path = "./data/climate.db"
	}
	if ac.Database.BatchSize == 0 {
		ac.Database.BatchSize = 100
	}
	if ac.Database.FlushPeriod == 0 {
		ac.Database.FlushPeriod = 5 * time.Second
	}
	if ac.Database.ChannelSize == 0 {
		ac.Database.ChannelSize = 1000
	}
	if ac.Database.RetentionDays == 0 {
		ac.Database.RetentionDays = 30
	}
	if ac.Database.CleanupPeriod == 0 {
		ac.Database.CleanupPeriod = time.Hour
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config from environment variables
func (ac *AppConfig) OverrideFromEnv() error {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SERVER_PORT: %q is not an integer", v)
		}
		ac.Server.Port = port
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		ac.Database.Path = v
		ac.Database.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
	return nil
}

// Validate checks if server configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if ac.Storage.BufferSize < 10 {
		return fmt.Errorf("buffer size must be at least 10")
	}
	if ac.Database.Enabled {
		if ac.Database.Path == "" {
			return fmt.Errorf("database path is required")
		}
		if ac.Database.BatchSize < 1 {
			return fmt.Errorf("database batch size must be at least 1")
		}
		if ac.Database.RetentionDays < 1 {
			return fmt.Errorf("retention days must be at least 1")
		}
	}
	switch ac.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", ac.Logging.Level)
	}
	return nil
}

// Addr returns the listen address
func (ac *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// String returns a safe string representation (hides auth token)
func (ac *AppConfig) String() string {
	server := ac.Server
	server.AuthToken = maskToken(server.AuthToken)
	return fmt.Sprintf("AppConfig{Server: %+v, Storage: %+v, Database: %+v, Logging: %+v}",
		server,
		ac.Storage,
		ac.Database,
		ac.Logging,
	)
}
