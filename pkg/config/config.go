package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wardenhq/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Bundle        BundleConfig
	Observability ObservabilityConfig
	Audit         AuditConfig

	// SeedFile optionally points at a YAML file of roles and permissions to
	// create on startup.
	SeedFile string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig selects and configures the persistence backend
type StorageConfig struct {
	// Type is "memory" or "dynamodb"
	Type string

	// DynamoDB settings
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	EntityTable  string
	EdgeTable    string
	VersionTable string
	ActiveIndex  string
	MaxRetries   int
	RequestLimit time.Duration
}

// BundleConfig holds bundle export, caching, and publishing settings
type BundleConfig struct {
	CacheEnabled bool
	L1CacheSize  int
	CacheTTL     time.Duration

	RedisURL      string
	RedisPassword string
	RedisDB       int

	S3Bucket string
	S3Prefix string

	// PublishSchedule is a cron expression; empty disables scheduled
	// publishing.
	PublishSchedule string
	PublishTenants  []string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// AuditConfig holds audit trail settings
type AuditConfig struct {
	Enabled bool
	// Path is the audit log file; empty writes to stdout.
	Path string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Bundle:        loadBundleConfig(),
		Observability: loadObservabilityConfig(),
		Audit:         loadAuditConfig(),
		SeedFile:      getEnv("WARDEN_SEED_FILE", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("WARDEN_HOST", "0.0.0.0"),
		Port:            getEnv("WARDEN_PORT", "8080"),
		ReadTimeout:     getEnvDuration("WARDEN_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WARDEN_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("WARDEN_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("WARDEN_HEALTH_PORT", "9090"),
	}
}

func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:         getEnv("WARDEN_STORAGE_TYPE", "memory"),
		Region:       getEnv("WARDEN_DYNAMODB_REGION", "us-east-1"),
		Endpoint:     getEnv("WARDEN_DYNAMODB_ENDPOINT", ""),
		AccessKey:    getEnv("WARDEN_DYNAMODB_ACCESS_KEY", ""),
		SecretKey:    getEnv("WARDEN_DYNAMODB_SECRET_KEY", ""),
		EntityTable:  getEnv("WARDEN_DYNAMODB_ENTITY_TABLE", "warden-entities"),
		EdgeTable:    getEnv("WARDEN_DYNAMODB_EDGE_TABLE", "warden-edges"),
		VersionTable: getEnv("WARDEN_DYNAMODB_VERSION_TABLE", "warden-policy-versions"),
		ActiveIndex:  getEnv("WARDEN_DYNAMODB_ACTIVE_INDEX", "active-tenant-index"),
		MaxRetries:   getEnvInt("WARDEN_DYNAMODB_MAX_RETRIES", 3),
		RequestLimit: getEnvDuration("WARDEN_DYNAMODB_TIMEOUT", 10*time.Second),
	}
}

func loadBundleConfig() BundleConfig {
	return BundleConfig{
		CacheEnabled:    getEnvBool("WARDEN_BUNDLE_CACHE_ENABLED", true),
		L1CacheSize:     getEnvInt("WARDEN_BUNDLE_L1_CACHE_SIZE", 128),
		CacheTTL:        getEnvDuration("WARDEN_BUNDLE_CACHE_TTL", 5*time.Minute),
		RedisURL:        getEnv("WARDEN_REDIS_URL", ""),
		RedisPassword:   getEnv("WARDEN_REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("WARDEN_REDIS_DB", 0),
		S3Bucket:        getEnv("WARDEN_BUNDLE_S3_BUCKET", ""),
		S3Prefix:        getEnv("WARDEN_BUNDLE_S3_PREFIX", "bundles"),
		PublishSchedule: getEnv("WARDEN_BUNDLE_PUBLISH_SCHEDULE", ""),
		PublishTenants:  getEnvList("WARDEN_BUNDLE_PUBLISH_TENANTS"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           parseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
		OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
	}
}

func loadAuditConfig() AuditConfig {
	return AuditConfig{
		Enabled: getEnvBool("WARDEN_AUDIT_ENABLED", false),
		Path:    getEnv("WARDEN_AUDIT_PATH", ""),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
	case "dynamodb":
		if c.Storage.Region == "" {
			return fmt.Errorf("region is required for dynamodb storage")
		}
		if c.Storage.EntityTable == "" || c.Storage.EdgeTable == "" || c.Storage.VersionTable == "" {
			return fmt.Errorf("entity, edge, and version table names are required for dynamodb storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or dynamodb)", c.Storage.Type)
	}

	if c.Bundle.PublishSchedule != "" {
		if c.Bundle.S3Bucket == "" {
			return fmt.Errorf("S3 bucket is required when bundle publishing is scheduled")
		}
		if len(c.Bundle.PublishTenants) == 0 {
			return fmt.Errorf("at least one tenant is required when bundle publishing is scheduled")
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a slice
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
