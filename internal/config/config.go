package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config carries everything the import tools read from the environment.
// A .env file in the working directory is loaded first; real environment
// variables take precedence over it.
type Config struct {
	// DatabaseURL is the postgres connection string for the ledger store.
	DatabaseURL string

	// ImportDir is scanned for cashbox export files.
	ImportDir string

	// BatchSize is the number of rows per bulk insert.
	BatchSize int

	// LogLevel is a zerolog level name ("debug", "info", ...).
	LogLevel string

	// KafkaBrokers enables the post-commit ImportCompleted event when
	// non-empty (comma-separated broker addresses).
	KafkaBrokers string

	// BackupBucket enables uploading archived files to GCS when non-empty.
	BackupBucket string
}

const (
	defaultImportDir = "cashbox"
	defaultBatchSize = 1000
	defaultLogLevel  = "info"
)

// Load reads configuration from .env (if present) and the environment.
func Load() (*Config, error) {
	// Missing .env is fine; env vars alone are a valid configuration.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ImportDir:    getEnv("IMPORT_DIR", defaultImportDir),
		BatchSize:    defaultBatchSize,
		LogLevel:     getEnv("LOG_LEVEL", defaultLogLevel),
		KafkaBrokers: os.Getenv("KAFKA_BROKERS"),
		BackupBucket: os.Getenv("BACKUP_BUCKET"),
	}

	if v := os.Getenv("BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("config: invalid BATCH_SIZE %q", v)
		}
		cfg.BatchSize = n
	}

	return cfg, nil
}

// Validate checks the fields the import pipeline cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	if c.ImportDir == "" {
		return fmt.Errorf("config: IMPORT_DIR must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
