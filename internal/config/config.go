package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config holds all application configuration
// Supports environment variables with sensible defaults
//
// Environment Variables:
// Engine Configuration:
// - ENGINE_URL: Base URL of the rembg inference service (default: http://127.0.0.1:7000)
// - ENGINE_TIMEOUT: Per-request timeout in seconds (default: 300)
// - REMBG_MODELS_PATH: Override for the model storage directory (default: ~/.u2net)
//
// Storage Configuration:
// - DATA_DIR: Directory for the job database and settings (default: /app/data)
// - OUTPUT_DIR: Default directory for job outputs (default: /app/output)
//
// Watch Configuration:
// - WATCH_DIR: Inbox directory scanned on a schedule (optional, empty disables)
// - WATCH_CRON: Cron expression for inbox scans (default: @every 5m)
//
// System Configuration:
// - HTTP_ADDR: Listen address for the API server (default: :8080)
// - LOG_LEVEL: DEBUG, INFO, WARN, ERROR (default: INFO)
// - LOG_FILE: Log file path (optional, empty logs to stdout)

type Config struct {
	// Engine Configuration
	Engine EngineConfig `json:"engine"`

	// Storage Configuration
	Storage StorageConfig `json:"storage"`

	// Watch Configuration
	Watch WatchConfig `json:"watch"`

	// System Configuration
	System SystemConfig `json:"system"`
}

// EngineConfig holds the configuration for the inference engine service
type EngineConfig struct {
	URL       string `json:"url"`
	Timeout   int    `json:"timeout"`
	ModelsDir string `json:"models_dir"`
}

// StorageConfig holds the configuration for on-disk state
type StorageConfig struct {
	DataDir   string `json:"data_dir"`
	OutputDir string `json:"output_dir"`
}

// DBPath returns the location of the job database inside the data directory.
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "jobs.db")
}

// SettingsPath returns the location of the runtime settings file.
func (c StorageConfig) SettingsPath() string {
	return filepath.Join(c.DataDir, "settings.json")
}

// WatchConfig holds the configuration for the scheduled inbox scan
type WatchConfig struct {
	InputDir string `json:"input_dir"`
	CronExpr string `json:"cron_expr"`
}

// Enabled reports whether the watch service should run at all.
func (c WatchConfig) Enabled() bool {
	return c.InputDir != ""
}

// SystemConfig holds the system configuration
type SystemConfig struct {
	HTTPAddr string `json:"http_addr"`
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		Engine: EngineConfig{
			URL:       getEnvString("ENGINE_URL", "http://127.0.0.1:7000"),
			Timeout:   getEnvInt("ENGINE_TIMEOUT", 300),
			ModelsDir: modelsDirFromEnv(),
		},
		Storage: StorageConfig{
			DataDir:   getEnvString("DATA_DIR", "/app/data"),
			OutputDir: getEnvString("OUTPUT_DIR", "/app/output"),
		},
		Watch: WatchConfig{
			InputDir: getEnvString("WATCH_DIR", ""),
			CronExpr: getEnvString("WATCH_CRON", "@every 5m"),
		},
		System: SystemConfig{
			HTTPAddr: getEnvString("HTTP_ADDR", ":8080"),
			LogLevel: getEnvString("LOG_LEVEL", "INFO"),
			LogFile:  getEnvString("LOG_FILE", ""),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	// Validate required configuration
	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.Engine.URL == "" {
		return fmt.Errorf("ENGINE_URL is required")
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("ENGINE_TIMEOUT must be positive")
	}
	return nil
}

// modelsDirFromEnv resolves the model storage directory. The environment
// variable takes precedence; the default matches rembg's own per-user cache.
func modelsDirFromEnv() string {
	if env := os.Getenv("REMBG_MODELS_PATH"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".u2net"
	}
	return filepath.Join(home, ".u2net")
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
