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

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// PreferredQuote is appended to normalized base assets before price lookup (e.g. BTC -> BTCUSDT)
	PreferredQuote string
	Price          *PriceConfig

	// LedgerWorkers bounds how many per-symbol ledgers are replayed concurrently
	LedgerWorkers int

	// Backup is nil when no bucket is configured
	Backup *BackupConfig
}

// BackupConfig holds offsite backup settings for an S3-compatible bucket (R2, S3, MinIO)
type BackupConfig struct {
	Bucket          string
	Endpoint        string // Empty uses the AWS endpoint for Region
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	RetentionDays   int // 0 keeps every backup
}

// PriceConfig holds price oracle settings
type PriceConfig struct {
	APIURL         string
	RequestTimeout time.Duration
	CacheTTL       time.Duration // In-process window for repeated lookups
	PersistTTL     time.Duration // Freshness of the sqlite-backed cache
	RateLimit      float64       // Requests per second against the price API
	RateBurst      int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("HOLDINGS_DATA_DIR", "./data")

	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:        absDataDir,
		Port:           getEnvAsInt("HOLDINGS_PORT", 8080),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		PreferredQuote: strings.ToUpper(getEnv("PREFERRED_QUOTE", "USDT")),
		LedgerWorkers:  getEnvAsInt("LEDGER_WORKERS", 4),
		Price:          loadPriceConfig(),
		Backup:         loadBackupConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadPriceConfig() *PriceConfig {
	return &PriceConfig{
		APIURL:         getEnv("PRICE_API_URL", "https://api.binance.com"),
		RequestTimeout: getEnvAsDuration("PRICE_REQUEST_TIMEOUT", 10*time.Second),
		CacheTTL:       getEnvAsDuration("PRICE_CACHE_TTL", 30*time.Second),
		PersistTTL:     getEnvAsDuration("PRICE_PERSIST_TTL", 10*time.Minute),
		RateLimit:      getEnvAsFloat("PRICE_RATE_LIMIT", 5),
		RateBurst:      getEnvAsInt("PRICE_RATE_BURST", 5),
	}
}

func loadBackupConfig() *BackupConfig {
	bucket := getEnv("BACKUP_BUCKET", "")
	if bucket == "" {
		return nil
	}
	return &BackupConfig{
		Bucket:          bucket,
		Endpoint:        getEnv("BACKUP_ENDPOINT", ""),
		Region:          getEnv("BACKUP_REGION", "auto"),
		AccessKeyID:     getEnv("BACKUP_ACCESS_KEY_ID", ""),
		SecretAccessKey: getEnv("BACKUP_SECRET_ACCESS_KEY", ""),
		Prefix:          getEnv("BACKUP_PREFIX", "holdings-backup-"),
		RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.PreferredQuote == "" {
		return fmt.Errorf("preferred quote asset must not be empty")
	}
	if c.LedgerWorkers < 1 {
		return fmt.Errorf("ledger workers must be at least 1, got %d", c.LedgerWorkers)
	}
	if c.Price == nil || c.Price.APIURL == "" {
		return fmt.Errorf("price API URL must not be empty")
	}
	if c.Price.RateLimit <= 0 {
		return fmt.Errorf("price rate limit must be positive, got %v", c.Price.RateLimit)
	}
	if c.Backup != nil {
		if (c.Backup.AccessKeyID == "") != (c.Backup.SecretAccessKey == "") {
			return fmt.Errorf("backup access key id and secret must be set together")
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("backup retention days must not be negative, got %d", c.Backup.RetentionDays)
		}
	}
	return nil
}

// DatabasePath returns the absolute path of a named database file inside DataDir
func (c *Config) DatabasePath(name string) string {
	return filepath.Join(c.DataDir, name+".db")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
