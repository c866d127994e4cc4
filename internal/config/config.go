// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultObservationStart is used as the fetch start for series with no
// ingested history and as the fallback start for backfill requests.
const DefaultObservationStart = "2000-01-01"

// Config holds application configuration
type Config struct {
	DataDir          string // Base directory for warehouse and cache databases (always absolute)
	FredAPIKey       string // FRED API key; required before any ingestion run
	ObservationStart string // Default observation start date (YYYY-MM-DD)
	LogLevel         string
	Port             int
	DevMode          bool
	IngestSchedule   string // Cron expression for the scheduled ingest+transform cycle
	Backup           *BackupConfig
}

// BackupConfig holds warehouse backup configuration for S3-compatible storage
type BackupConfig struct {
	Enabled         bool
	Bucket          string
	Endpoint        string // Custom endpoint for S3-compatible providers, empty for AWS
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Keep            int // Number of backup archives to retain
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("PULSE_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:          absDataDir,
		FredAPIKey:       getEnv("FRED_API_KEY", ""),
		ObservationStart: getEnv("OBSERVATION_START", DefaultObservationStart),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		Port:             getEnvAsInt("PORT", 8080),
		DevMode:          getEnvAsBool("DEV_MODE", false),
		IngestSchedule:   getEnv("INGEST_SCHEDULE", "0 30 6 * * MON"), // Monday 06:30
		Backup:           loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if _, err := time.Parse("2006-01-02", c.ObservationStart); err != nil {
		return fmt.Errorf("invalid OBSERVATION_START %q: %w", c.ObservationStart, err)
	}
	// FRED_API_KEY is not required at startup: read endpoints and the
	// transform stage work without it. The ingestor validates it per run.
	return nil
}

func loadBackupConfig() *BackupConfig {
	return &BackupConfig{
		Enabled:         getEnvAsBool("BACKUP_ENABLED", false),
		Bucket:          getEnv("BACKUP_BUCKET", ""),
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Keep:            getEnvAsInt("BACKUP_KEEP", 14),
	}
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
