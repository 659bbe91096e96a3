package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/credentials"
	"github.com/platinummonkey/warden/pkg/observability"
	"github.com/platinummonkey/warden/pkg/serviceaccount"
	"github.com/platinummonkey/warden/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Observability ObservabilityConfig
	Policy        PolicyConfig
	Credentials   credentials.Params
	Dispatch      DispatchConfig
	Sweeper       SweeperConfig
	Archive       ArchiveConfig
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

	// Authentication attempts per minute per tenant and client IP; 0 disables
	AuthRateLimit int
	AuthRateBurst int
	// TrustProxyHeaders keys rate limits on X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxyHeaders bool
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
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (c ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        c.OTelEnabled,
		Endpoint:       c.OTelEndpoint,
		ServiceName:    c.OTelServiceName,
		ServiceVersion: c.OTelServiceVersion,
		Insecure:       c.OTelInsecure,
		SampleRatio:    c.OTelSampleRatio,
	}
}

// PolicyConfig is the expiration policy used when no policy file is set,
// plus the file location
type PolicyConfig struct {
	File              string
	DefaultExpiration time.Duration
	MaxExpiration     time.Duration
	AllowNoExpiration bool
}

// Policy returns the environment-configured expiration policy
func (c PolicyConfig) Policy() serviceaccount.Policy {
	return serviceaccount.Policy{
		DefaultExpiration: c.DefaultExpiration,
		MaxExpiration:     c.MaxExpiration,
		AllowNoExpiration: c.AllowNoExpiration,
	}
}

// DispatchConfig tunes the command dispatcher
type DispatchConfig struct {
	StateCacheSize int
	// DedupBackend is "memory", "redis" or "none"
	DedupBackend   string
	DedupTTL       time.Duration
	DedupCacheSize int
	ViewCacheTTL   time.Duration
}

// SweeperConfig controls the expiry sweeper
type SweeperConfig struct {
	Schedule string
	Workers  int
	Timeout  time.Duration
	Actor    string
}

// ArchiveConfig controls audit trail archiving to S3
type ArchiveConfig struct {
	Enabled  bool
	Prefix   string
	Schedule string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Observability: loadObservabilityConfig(),
		Policy:        loadPolicyConfig(),
		Credentials:   loadCredentialParams(),
		Dispatch:      loadDispatchConfig(),
		Sweeper:       loadSweeperConfig(),
		Archive:       loadArchiveConfig(),
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
		AuthRateLimit:   getEnvInt("WARDEN_AUTH_RATE_LIMIT", 60),
		AuthRateBurst:   getEnvInt("WARDEN_AUTH_RATE_BURST", 10),

		TrustProxyHeaders: getEnvBool("WARDEN_TRUST_PROXY_HEADERS", false),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	if storageType := getEnv("WARDEN_STORAGE_TYPE", ""); storageType != "" {
		cfg.Type = strings.ToLower(storageType)
	}

	cfg.PostgresURL = getEnv("WARDEN_POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnv("WARDEN_POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	if maxConns := getEnvInt("WARDEN_POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("WARDEN_POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	if timeout := getEnvDuration("WARDEN_POSTGRES_TIMEOUT", 0); timeout > 0 {
		cfg.PostgresTimeout = timeout
	}

	cfg.RedisURL = getEnv("WARDEN_REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("WARDEN_REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("WARDEN_REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if retries := getEnvInt("WARDEN_REDIS_MAX_RETRIES", 0); retries > 0 {
		cfg.RedisMaxRetries = retries
	}
	if poolSize := getEnvInt("WARDEN_REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	cfg.S3Endpoint = getEnv("WARDEN_S3_ENDPOINT", cfg.S3Endpoint)
	cfg.S3Region = getEnv("WARDEN_S3_REGION", cfg.S3Region)
	cfg.S3Bucket = getEnv("WARDEN_S3_BUCKET", cfg.S3Bucket)
	cfg.S3AccessKey = getEnv("WARDEN_S3_ACCESS_KEY", cfg.S3AccessKey)
	cfg.S3SecretKey = getEnv("WARDEN_S3_SECRET_KEY", cfg.S3SecretKey)
	cfg.S3UsePathStyle = getEnvBool("WARDEN_S3_USE_PATH_STYLE", cfg.S3UsePathStyle)

	return cfg
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("WARDEN_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("WARDEN_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("WARDEN_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("WARDEN_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("WARDEN_OTEL_SERVICE_NAME", "warden"),
		OTelServiceVersion: getEnv("WARDEN_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("WARDEN_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("WARDEN_OTEL_SAMPLE_RATIO", 1.0),
	}
}

func loadPolicyConfig() PolicyConfig {
	def := serviceaccount.DefaultPolicy()
	return PolicyConfig{
		File:              getEnv("WARDEN_POLICY_FILE", ""),
		DefaultExpiration: getEnvDays("WARDEN_POLICY_DEFAULT_EXPIRATION", def.DefaultExpiration),
		MaxExpiration:     getEnvDays("WARDEN_POLICY_MAX_EXPIRATION", def.MaxExpiration),
		AllowNoExpiration: getEnvBool("WARDEN_POLICY_ALLOW_NO_EXPIRATION", def.AllowNoExpiration),
	}
}

func loadCredentialParams() credentials.Params {
	params := credentials.DefaultParams()
	if t := getEnvInt("WARDEN_ARGON2_TIME", 0); t > 0 {
		params.Time = uint32(t)
	}
	if m := getEnvInt("WARDEN_ARGON2_MEMORY_KIB", 0); m > 0 {
		params.Memory = uint32(m)
	}
	if p := getEnvInt("WARDEN_ARGON2_THREADS", 0); p > 0 && p < 256 {
		params.Threads = uint8(p)
	}
	return params
}

func loadDispatchConfig() DispatchConfig {
	return DispatchConfig{
		StateCacheSize: getEnvInt("WARDEN_STATE_CACHE_SIZE", 10000),
		DedupBackend:   strings.ToLower(getEnv("WARDEN_DEDUP_BACKEND", "memory")),
		DedupTTL:       getEnvDuration("WARDEN_DEDUP_TTL", 24*time.Hour),
		DedupCacheSize: getEnvInt("WARDEN_DEDUP_CACHE_SIZE", 100000),
		ViewCacheTTL:   getEnvDuration("WARDEN_VIEW_CACHE_TTL", 5*time.Minute),
	}
}

func loadSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Schedule: getEnv("WARDEN_SWEEPER_SCHEDULE", "@every 5m"),
		Workers:  getEnvInt("WARDEN_SWEEPER_WORKERS", 8),
		Timeout:  getEnvDuration("WARDEN_SWEEPER_TIMEOUT", 30*time.Second),
		Actor:    getEnv("WARDEN_SWEEPER_ACTOR", "system:expiry-sweeper"),
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:  getEnvBool("WARDEN_ARCHIVE_ENABLED", false),
		Prefix:   getEnv("WARDEN_ARCHIVE_PREFIX", "audit"),
		Schedule: getEnv("WARDEN_ARCHIVE_SCHEDULE", "@daily"),
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
	if c.Server.AuthRateLimit < 0 || c.Server.AuthRateBurst < 0 {
		return fmt.Errorf("auth rate limit and burst must not be negative")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if err := ValidatePolicy(c.Policy.Policy()); err != nil {
		return err
	}

	switch c.Dispatch.DedupBackend {
	case "memory", "none":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis deduplication")
		}
	default:
		return fmt.Errorf("invalid dedup backend: %s (must be memory, redis or none)", c.Dispatch.DedupBackend)
	}
	if c.Dispatch.StateCacheSize <= 0 {
		return fmt.Errorf("state cache size must be positive")
	}

	if c.Sweeper.Actor == "" {
		return fmt.Errorf("sweeper actor is required")
	}

	if c.Archive.Enabled && c.Storage.S3Bucket == "" {
		return fmt.Errorf("S3 bucket is required when audit archiving is enabled")
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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

// getEnvDays is getEnvDuration that also accepts a whole number of days ("90d")
func getEnvDays(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
