// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Deadlines holds the per-task-kind deadlines enforced by the queue worker.
type Deadlines struct {
	Balance time.Duration
	Export  time.Duration
	Trade   time.Duration
}

// Config holds application configuration
type Config struct {
	ListenAddr             string   // Loopback host:port for the HTTP surface
	TargetTitleSubstrings  []string // Window-title substrings identifying the GUI
	TargetProcessNames     []string // Executable names of the target GUI process
	ExportDir              string   // Directory the GUI's Save dialog writes to
	DataDir                string   // Directory for the task history database
	RetentionCutoffHour    int      // Files older than the last cutoff are stale
	RetentionSweepInterval time.Duration
	QueueCapacity          int
	Deadlines              Deadlines
	AutoConfirmDefault     bool
	LogLevel               string
	DevMode                bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	exportDir, err := filepath.Abs(getEnv("BRIDGE_EXPORT_DIR", "./exports"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve export directory path: %w", err)
	}
	if err := os.MkdirAll(exportDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}

	dataDir, err := filepath.Abs(getEnv("BRIDGE_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		ListenAddr:             getEnv("BRIDGE_LISTEN_ADDR", "127.0.0.1:18620"),
		TargetTitleSubstrings:  getEnvAsList("BRIDGE_TARGET_TITLES", []string{"网上股票交易系统", "股票交易"}),
		TargetProcessNames:     getEnvAsList("BRIDGE_TARGET_PROCESSES", []string{"xiadan.exe"}),
		ExportDir:              exportDir,
		DataDir:                dataDir,
		RetentionCutoffHour:    getEnvAsInt("BRIDGE_RETENTION_CUTOFF_HOUR", 15),
		RetentionSweepInterval: getEnvAsDuration("BRIDGE_RETENTION_SWEEP_INTERVAL", 10*time.Minute),
		QueueCapacity:          getEnvAsInt("BRIDGE_QUEUE_CAPACITY", 32),
		Deadlines: Deadlines{
			Balance: getEnvAsDuration("BRIDGE_BALANCE_DEADLINE", 15*time.Second),
			Export:  getEnvAsDuration("BRIDGE_EXPORT_DEADLINE", 20*time.Second),
			Trade:   getEnvAsDuration("BRIDGE_TRADE_DEADLINE", 10*time.Second),
		},
		AutoConfirmDefault: getEnvAsBool("BRIDGE_AUTO_CONFIRM", false),
		LogLevel:           getEnv("BRIDGE_LOG_LEVEL", "info"),
		DevMode:            getEnvAsBool("BRIDGE_DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if len(c.TargetTitleSubstrings) == 0 {
		return fmt.Errorf("at least one target title substring is required")
	}
	if c.RetentionCutoffHour < 0 || c.RetentionCutoffHour > 23 {
		return fmt.Errorf("retention cutoff hour must be in [0,23], got %d", c.RetentionCutoffHour)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
