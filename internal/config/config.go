// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	// Server configuration
	Host string `envconfig:"SCRUTINEER_HOST" yaml:"host"`
	Port int    `envconfig:"SCRUTINEER_PORT" yaml:"port"`

	// Server timeouts in seconds
	ReadTimeout     int `envconfig:"SCRUTINEER_READ_TIMEOUT" yaml:"read_timeout"`
	WriteTimeout    int `envconfig:"SCRUTINEER_WRITE_TIMEOUT" yaml:"write_timeout"`
	ShutdownTimeout int `envconfig:"SCRUTINEER_SHUTDOWN_TIMEOUT" yaml:"shutdown_timeout"`

	// Analysis configuration
	Analysis AnalysisConfig `yaml:"analysis"`

	// Bus configuration
	Bus BusConfig `yaml:"bus"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Logging configuration
	Log LogConfig `yaml:"log"`

	// Security configuration
	Security SecurityConfig `yaml:"security"`
}

// AnalysisConfig holds ranking-engine settings.
type AnalysisConfig struct {
	// RandomSeed seeds the Sequential IRV random tiebreak fallback.
	// 0 selects a time seed; any other value makes runs reproducible.
	RandomSeed int64 `envconfig:"SCRUTINEER_RANDOM_SEED" yaml:"random_seed"`

	// Consensus attaches the cross-system agreement report to results.
	Consensus bool `envconfig:"SCRUTINEER_CONSENSUS" yaml:"consensus"`
}

// BusConfig holds event bus settings.
type BusConfig struct {
	Type         string `envconfig:"SCRUTINEER_BUS_TYPE" yaml:"type"`
	KafkaBrokers string `envconfig:"SCRUTINEER_KAFKA_BROKERS" yaml:"kafka_brokers"`

	// KafkaTopic namespaces scrutineer topics on a shared broker:
	// "analysis.completed" is published as "<KafkaTopic>.analysis.completed".
	KafkaTopic string `envconfig:"SCRUTINEER_KAFKA_TOPIC" yaml:"kafka_topic"`
	KafkaGroup string `envconfig:"SCRUTINEER_KAFKA_GROUP" yaml:"kafka_group"`

	// EventLog is a path to a JSON-lines event journal. Empty disables it.
	EventLog string `envconfig:"SCRUTINEER_BUS_EVENT_LOG" yaml:"event_log"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool   `envconfig:"SCRUTINEER_METRICS_ENABLED" yaml:"enabled"`
	Path    string `envconfig:"SCRUTINEER_METRICS_PATH" yaml:"path"`

	// History selects the analysis-history backend: "none" or "redis".
	History   string `envconfig:"SCRUTINEER_METRICS_HISTORY" yaml:"history"`
	RedisURL  string `envconfig:"SCRUTINEER_REDIS_URL" yaml:"redis_url"`
	Retention int    `envconfig:"SCRUTINEER_METRICS_RETENTION" yaml:"retention"` // hours
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `envconfig:"SCRUTINEER_LOG_LEVEL" yaml:"level"`
	Format string `envconfig:"SCRUTINEER_LOG_FORMAT" yaml:"format"`
}

// SecurityConfig holds security settings.
type SecurityConfig struct {
	RateLimit   int    `envconfig:"SCRUTINEER_RATE_LIMIT" yaml:"rate_limit"` // req/s per client, 0 = disabled
	RateBurst   int    `envconfig:"SCRUTINEER_RATE_BURST" yaml:"rate_burst"`
	CORSOrigins string `envconfig:"SCRUTINEER_CORS_ORIGINS" yaml:"cors_origins"`
}

// Load loads configuration from environment variables and optional config file.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Set defaults first
	setDefaults(cfg)

	// Load from YAML file if provided (overrides defaults)
	if configPath != "" {
		if err := loadFromFile(cfg, configPath); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	// Override with environment variables (highest priority)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("processing env config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return Load("")
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func setDefaults(cfg *Config) {
	cfg.Host = "0.0.0.0"
	cfg.Port = 8080
	cfg.ReadTimeout = 15
	cfg.WriteTimeout = 30
	cfg.ShutdownTimeout = 10

	cfg.Analysis = AnalysisConfig{
		RandomSeed: 0,
		Consensus:  true,
	}

	cfg.Bus = BusConfig{
		Type:       "memory",
		KafkaTopic: "scrutineer",
		KafkaGroup: "scrutineer",
	}

	cfg.Metrics = MetricsConfig{
		Enabled:   true,
		Path:      "/metrics",
		History:   "none",
		RedisURL:  "redis://localhost:6379",
		Retention: 24,
	}

	cfg.Log = LogConfig{
		Level:  "info",
		Format: "text",
	}

	cfg.Security = SecurityConfig{
		RateLimit:   0,
		RateBurst:   20,
		CORSOrigins: "*",
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, "port must be between 1 and 65535")
	}

	if c.ReadTimeout < 1 {
		errs = append(errs, "read_timeout must be positive")
	}

	if c.WriteTimeout < 1 {
		errs = append(errs, "write_timeout must be positive")
	}

	if c.ShutdownTimeout < 1 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	// Bus validation
	validBusTypes := map[string]bool{"memory": true, "kafka": true}
	if !validBusTypes[c.Bus.Type] {
		errs = append(errs, fmt.Sprintf("invalid bus type: %s (must be memory or kafka)", c.Bus.Type))
	}

	if c.Bus.Type == "kafka" {
		if c.Bus.KafkaBrokers == "" {
			errs = append(errs, "kafka_brokers is required for the kafka bus")
		}
		if c.Bus.KafkaTopic == "" {
			errs = append(errs, "kafka_topic is required for the kafka bus")
		}
	}

	// Metrics validation
	validHistories := map[string]bool{"none": true, "redis": true}
	if !validHistories[c.Metrics.History] {
		errs = append(errs, fmt.Sprintf("invalid metrics history: %s (must be none or redis)", c.Metrics.History))
	}

	if c.Metrics.History == "redis" {
		if c.Metrics.RedisURL == "" {
			errs = append(errs, "redis_url is required for redis metrics history")
		}
		if c.Metrics.Retention < 1 {
			errs = append(errs, "retention must be positive for redis metrics history")
		}
	}

	// Log validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.Log.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s (must be text or json)", c.Log.Format))
	}

	// Security validation
	if c.Security.RateLimit < 0 {
		errs = append(errs, "rate_limit must not be negative")
	}

	if c.Security.RateLimit > 0 && c.Security.RateBurst < 1 {
		errs = append(errs, "rate_burst must be positive when rate limiting is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// Address returns the server address.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Log.Level == "debug"
}
