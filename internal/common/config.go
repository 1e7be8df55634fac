package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	OCR      OCRConfig
	Ingest   IngestConfig
	Engine   EngineConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Addr           string
	UploadMaxBytes int64
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Language    string
	TessdataDir string
}

// IngestConfig configures the drop-directory watcher. Empty Roots disables it.
type IngestConfig struct {
	Roots    []string
	Debounce time.Duration
}

// EngineConfig exposes the extraction policy knobs the engine leaves to the
// calling product: equality tolerance, the rule-priority trust cutoff for
// direct subtotal candidates (lower priority value = higher precedence), the
// tax-table adjacency window, and the coherence threshold. Structured policy
// (per-field weights, per-source confidence bases) is set programmatically
// through engine options rather than flat env vars.
type EngineConfig struct {
	RegistryPath       string // empty = embedded default registry
	Tolerance          string // decimal, e.g. "0.01"
	TrustPriority      int
	AdjacencyWindow    int
	CoherenceThreshold float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Server: ServerConfig{
			Addr:           getEnv("HTTP_ADDR", ":8080"),
			UploadMaxBytes: getEnvAsInt64("UPLOAD_MAX_BYTES", 10*1024*1024),
		},
		OCR: OCRConfig{
			Language:    getEnv("OCR_LANG", "fra"),
			TessdataDir: getEnv("TESSDATA_PREFIX", ""),
		},
		Ingest: IngestConfig{
			Roots:    getEnvAsList("INGEST_ROOTS"),
			Debounce: getEnvAsDuration("INGEST_DEBOUNCE", 500*time.Millisecond),
		},
		Engine: EngineConfig{
			RegistryPath:       getEnv("REGISTRY_PATH", ""),
			Tolerance:          getEnv("ENGINE_TOLERANCE", "0.01"),
			TrustPriority:      getEnvAsInt("ENGINE_TRUST_PRIORITY", 30),
			AdjacencyWindow:    getEnvAsInt("ENGINE_ADJACENCY_WINDOW", 40),
			CoherenceThreshold: getEnvAsFloat64("ENGINE_COHERENCE_THRESHOLD", 0.60),
		},
	}
}

// Validate checks the loaded configuration for fatal startup errors.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.Addr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Engine.TrustPriority <= 0 {
		return NewAppError("CONFIG_ERROR", "ENGINE_TRUST_PRIORITY must be positive", ErrInvalidInput)
	}
	if c.Engine.AdjacencyWindow <= 0 {
		return NewAppError("CONFIG_ERROR", "ENGINE_ADJACENCY_WINDOW must be positive", ErrInvalidInput)
	}
	return nil
}

// Helper functions for environment variable parsing
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

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
