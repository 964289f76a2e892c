// Package config provides centralized configuration management.
//
// Configuration can be loaded from:
//  1. YAML file (config.yaml)
//  2. Environment variables (fallback)
//
// Example usage:
//
//	cfg := config.LoadOrEnv()
//	dbPath := cfg.Storage.DatabasePath
//	clientID := cfg.Guesty.ClientID
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the entire application configuration
type Config struct {
	Guesty        GuestyConfig        `yaml:"guesty"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Sync          SyncConfig          `yaml:"sync"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// GuestyConfig holds Guesty API credentials and endpoints
type GuestyConfig struct {
	ClientID     string  `yaml:"client_id"`
	ClientSecret string  `yaml:"client_secret"`
	APIURL       string  `yaml:"api_url"`
	TokenURL     string  `yaml:"token_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	TimeoutSecs  int     `yaml:"timeout_seconds"`
}

// StorageConfig holds database configuration
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig holds HTTP API server settings
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// SyncConfig holds sync pipeline tuning
type SyncConfig struct {
	BatchSize      int `yaml:"batch_size"`
	BatchDelayMs   int `yaml:"batch_delay_ms"`
	ListingDelayMs int `yaml:"listing_delay_ms"`
	BudgetSeconds  int `yaml:"budget_seconds"`
}

// SchedulerConfig holds background sync scheduling
type SchedulerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BatchDelay returns the inter-batch delay as a duration
func (s SyncConfig) BatchDelay() time.Duration {
	return time.Duration(s.BatchDelayMs) * time.Millisecond
}

// ListingDelay returns the inter-listing delay as a duration
func (s SyncConfig) ListingDelay() time.Duration {
	return time.Duration(s.ListingDelayMs) * time.Millisecond
}

// Budget returns the wall-clock execution budget for a sync run
func (s SyncConfig) Budget() time.Duration {
	return time.Duration(s.BudgetSeconds) * time.Second
}

// Load reads and parses the config file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${GUESTY_CLIENT_SECRET})
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv loads configuration from environment variables only
func LoadFromEnv() *Config {
	cfg := &Config{
		Guesty: GuestyConfig{
			ClientID:     os.Getenv("GUESTY_CLIENT_ID"),
			ClientSecret: os.Getenv("GUESTY_CLIENT_SECRET"),
			APIURL:       getEnv("GUESTY_API_URL", "https://open-api.guesty.com"),
			TokenURL:     os.Getenv("GUESTY_TOKEN_URL"),
		},
		Storage: StorageConfig{
			DatabasePath: getEnv("GUESTY_DB_PATH", "guesty_sync.db"),
		},
		Server: ServerConfig{
			Port: getEnvInt("PORT", 8080),
		},
		Sync: SyncConfig{
			BatchSize:      getEnvInt("SYNC_BATCH_SIZE", 10),
			BatchDelayMs:   getEnvInt("SYNC_BATCH_DELAY_MS", 200),
			ListingDelayMs: getEnvInt("SYNC_LISTING_DELAY_MS", 1000),
			BudgetSeconds:  getEnvInt("SYNC_BUDGET_SECONDS", 50),
		},
		Scheduler: SchedulerConfig{
			Enabled:         getEnv("SCHEDULER_ENABLED", "false") == "true",
			IntervalMinutes: getEnvInt("SCHEDULER_INTERVAL_MINUTES", 30),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "text"),
			},
		},
	}

	cfg.applyDefaults()
	return cfg
}

// LoadOrEnv tries to load from config.yaml, falls back to environment variables
func LoadOrEnv() *Config {
	return LoadOrEnvWithPath("config.yaml")
}

// LoadOrEnvWithPath tries to load from specified path, falls back to environment variables
func LoadOrEnvWithPath(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	return LoadFromEnv()
}

// applyDefaults fills in zero values that have sensible defaults
func (c *Config) applyDefaults() {
	if c.Guesty.APIURL == "" {
		c.Guesty.APIURL = "https://open-api.guesty.com"
	}
	if c.Guesty.TokenURL == "" {
		c.Guesty.TokenURL = c.Guesty.APIURL + "/oauth2/token"
	}
	if c.Guesty.RateLimitRPS <= 0 {
		c.Guesty.RateLimitRPS = 5
	}
	if c.Guesty.TimeoutSecs <= 0 {
		c.Guesty.TimeoutSecs = 30
	}
	if c.Storage.DatabasePath == "" {
		c.Storage.DatabasePath = "guesty_sync.db"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	if c.Sync.BatchSize <= 0 {
		c.Sync.BatchSize = 10
	}
	if c.Sync.BatchDelayMs <= 0 {
		c.Sync.BatchDelayMs = 200
	}
	if c.Sync.ListingDelayMs <= 0 {
		c.Sync.ListingDelayMs = 1000
	}
	if c.Sync.BudgetSeconds <= 0 {
		c.Sync.BudgetSeconds = 50
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		c.Scheduler.IntervalMinutes = 30
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
}

// getEnv retrieves an environment variable with a fallback default
func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// getEnvInt retrieves an integer environment variable with a fallback default
func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var result int
		if _, err := fmt.Sscanf(val, "%d", &result); err == nil {
			return result
		}
	}
	return fallback
}
