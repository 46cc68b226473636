package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the engines and the CLI
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Triggers TriggerConfig  `yaml:"triggers"`
	Segments SegmentConfig  `yaml:"segments"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds the Postgres connection settings
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ConnMaxLifetime returns the pooled connection lifetime as a Duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the Redis connection used for distributed locks.
// When URL is empty, locks fall back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// ScoringConfig holds batch rescoring settings
type ScoringConfig struct {
	BatchSize      int `yaml:"batch_size"`
	Concurrency    int `yaml:"concurrency"`
	WindowDays     int `yaml:"window_days"`
	LockTTLSeconds int `yaml:"lock_ttl_seconds"`
}

// LockTTL returns the batch lock TTL as a Duration
func (c ScoringConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// TriggerConfig holds trigger detection settings
type TriggerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// SegmentConfig holds member paging limits
type SegmentConfig struct {
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Redact reports whether PII redaction is on. It defaults to true.
func (c LogConfig) Redact() bool {
	return c.RedactPII == nil || *c.RedactPII
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 30
	}
	if cfg.Scoring.BatchSize == 0 {
		cfg.Scoring.BatchSize = 50
	}
	if cfg.Scoring.Concurrency == 0 {
		cfg.Scoring.Concurrency = 8
	}
	if cfg.Scoring.WindowDays == 0 {
		cfg.Scoring.WindowDays = 90
	}
	if cfg.Scoring.LockTTLSeconds == 0 {
		cfg.Scoring.LockTTLSeconds = 600
	}
	if cfg.Triggers.Concurrency == 0 {
		cfg.Triggers.Concurrency = 8
	}
	if cfg.Segments.DefaultPageSize == 0 {
		cfg.Segments.DefaultPageSize = 50
	}
	if cfg.Segments.MaxPageSize == 0 {
		cfg.Segments.MaxPageSize = 500
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "crm"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars. An empty path
// skips the YAML file and starts from defaults.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("CRM_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if err := envInt("CRM_SCORING_BATCH_SIZE", &cfg.Scoring.BatchSize); err != nil {
		return nil, err
	}
	if err := envInt("CRM_SCORING_CONCURRENCY", &cfg.Scoring.Concurrency); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %q", key, v)
	}
	*dst = n
	return nil
}
