package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Blob     BlobConfig
	Ingest   IngestConfig
	Cleanup  CleanupConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// BlobConfig holds S3/MinIO blob storage configuration.
type BlobConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	PresignExpiry   time.Duration
}

// IngestConfig holds inbound ingestion configuration.
type IngestConfig struct {
	// Domain is the mail domain this store serves; recipient resolution
	// strips it from the address.
	Domain string
	// SpamThreshold routes messages with a score at or above it to Spam.
	SpamThreshold float64
}

// CleanupConfig holds the orphaned-blob reconciliation sweep configuration.
type CleanupConfig struct {
	Enabled      bool
	Interval     time.Duration
	AgeThreshold time.Duration
	BatchSize    int
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "mailstore"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Blob: BlobConfig{
			Endpoint:        getEnv("BLOB_ENDPOINT", "localhost:9000"),
			Region:          getEnv("BLOB_REGION", "us-east-1"),
			Bucket:          getEnv("BLOB_BUCKET", "mailstore-attachments"),
			AccessKeyID:     getEnv("BLOB_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BLOB_SECRET_ACCESS_KEY", ""),
			UseSSL:          getBoolEnv("BLOB_USE_SSL", false),
			PresignExpiry:   getDurationEnv("BLOB_PRESIGN_EXPIRY", time.Hour),
		},
		Ingest: IngestConfig{
			Domain:        getEnv("MAIL_DOMAIN", "example.com"),
			SpamThreshold: getFloatEnv("SPAM_THRESHOLD", 5.0),
		},
		Cleanup: CleanupConfig{
			Enabled:      getBoolEnv("CLEANUP_ENABLED", true),
			Interval:     getDurationEnv("CLEANUP_INTERVAL", time.Hour),
			AgeThreshold: getDurationEnv("CLEANUP_AGE_THRESHOLD", 24*time.Hour),
			BatchSize:    getIntEnv("CLEANUP_BATCH_SIZE", 1000),
		},
	}
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return "host=" + d.Host +
		" port=" + d.Port +
		" user=" + d.User +
		" password=" + d.Password +
		" dbname=" + d.DBName +
		" sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
