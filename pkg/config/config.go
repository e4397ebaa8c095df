package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/platinummonkey/subscriptions/pkg/observability"
	"github.com/platinummonkey/subscriptions/pkg/storage"
	"github.com/robfig/cron/v3"
)

const envPrefix = "SUBSCRIPTIONS_"

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       storage.Config
	Admin         AdminConfig
	Renewal       RenewalConfig
	Currency      CurrencyConfig
	Webhooks      WebhookConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	MaxBodyBytes    int64
	AllowedOrigins  []string

	// Public catalogue rate limit per client IP; 0 disables it
	RateLimitPerMinute int
	RateLimitBurst     int

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AdminConfig controls the staff admin site
type AdminConfig struct {
	Enabled   bool
	JWTSecret string
	JWTIssuer string

	// AuditLogDir additionally writes the admin change history as JSON
	// lines under this directory
	AuditLogDir string
}

// RenewalConfig controls the renewal processor
type RenewalConfig struct {
	Schedule      string
	Workers       int
	ChargeTimeout time.Duration
	LockKey       string
	LockTTL       time.Duration
}

// WebhookConfig lists the endpoints notified of renewal outcomes
type WebhookConfig struct {
	URLs          []string
	Secret        string
	Timeout       time.Duration
	MaxAttempts   int
	RetryInterval time.Duration
}

// CurrencyConfig locates currency definitions
type CurrencyConfig struct {
	// DefinitionsFile overrides the embedded definitions when set
	DefinitionsFile string
	Watch           bool
	SyncOnStart     bool
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

// OTel returns the tracing setup derived from the configuration
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadDotEnv loads variables from .env style files without overriding the
// environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	obs, err := loadObservabilityConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Admin:         loadAdminConfig(),
		Renewal:       loadRenewalConfig(),
		Currency:      loadCurrencyConfig(),
		Webhooks:      loadWebhookConfig(),
		Observability: obs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("HOST", "0.0.0.0"),
		Port:            getEnv("PORT", "8080"),
		ReadTimeout:     getEnvDuration("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxBodyBytes:    getEnvInt64("MAX_BODY_BYTES", 1<<20),
		AllowedOrigins:  getEnvList("ALLOWED_ORIGINS", nil),
		HealthPort:      getEnv("HEALTH_PORT", "9090"),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 600),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 50),
	}
}

func loadStorageConfig() storage.Config {
	cfg := storage.DefaultConfig()

	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.PostgresReplicaURLs = getEnv("POSTGRES_REPLICA_URLS", cfg.PostgresReplicaURLs)
	if maxConns := getEnvInt("POSTGRES_MAX_CONNS", 0); maxConns > 0 {
		cfg.PostgresMaxConns = maxConns
	}
	if minConns := getEnvInt("POSTGRES_MIN_CONNS", 0); minConns > 0 {
		cfg.PostgresMinConns = minConns
	}
	cfg.PostgresTimeout = getEnvDuration("POSTGRES_TIMEOUT", cfg.PostgresTimeout)

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", cfg.RedisPassword)
	if redisDB := getEnvInt("REDIS_DB", -1); redisDB >= 0 {
		cfg.RedisDB = redisDB
	}
	if retries := getEnvInt("REDIS_MAX_RETRIES", 0); retries > 0 {
		cfg.RedisMaxRetries = retries
	}
	if poolSize := getEnvInt("REDIS_POOL_SIZE", 0); poolSize > 0 {
		cfg.RedisPoolSize = poolSize
	}

	cfg.CacheEnabled = getEnvBool("CACHE_ENABLED", cfg.CacheEnabled)
	for kind, ttl := range cfg.CacheTTL {
		cfg.CacheTTL[kind] = getEnvDuration("CACHE_TTL_"+strings.ToUpper(kind), ttl)
	}
	if size := getEnvInt("L1_CACHE_SIZE", 0); size > 0 {
		cfg.L1CacheSize = size
	}
	cfg.L1CacheTTL = getEnvDuration("L1_CACHE_TTL", cfg.L1CacheTTL)

	return cfg
}

func loadAdminConfig() AdminConfig {
	return AdminConfig{
		Enabled:   getEnvBool("ENABLE_ADMIN", true),
		JWTSecret: getEnv("JWT_SECRET", ""),
		JWTIssuer: getEnv("JWT_ISSUER", ""),

		AuditLogDir: getEnv("ADMIN_AUDIT_LOG_DIR", ""),
	}
}

func loadRenewalConfig() RenewalConfig {
	return RenewalConfig{
		Schedule:      getEnv("RENEWAL_SCHEDULE", "@every 1h"),
		Workers:       getEnvInt("RENEWAL_WORKERS", 4),
		ChargeTimeout: getEnvDuration("RENEWAL_CHARGE_TIMEOUT", 30*time.Second),
		LockKey:       getEnv("RENEWAL_LOCK_KEY", "subscriptions:renewal:lock"),
		LockTTL:       getEnvDuration("RENEWAL_LOCK_TTL", 30*time.Minute),
	}
}

func loadCurrencyConfig() CurrencyConfig {
	return CurrencyConfig{
		DefinitionsFile: getEnv("CURRENCY_FILE", ""),
		Watch:           getEnvBool("CURRENCY_WATCH", false),
		SyncOnStart:     getEnvBool("CURRENCY_SYNC_ON_START", true),
	}
}

func loadWebhookConfig() WebhookConfig {
	return WebhookConfig{
		URLs:          getEnvList("WEBHOOK_URLS", nil),
		Secret:        getEnv("WEBHOOK_SECRET", ""),
		Timeout:       getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		MaxAttempts:   getEnvInt("WEBHOOK_MAX_ATTEMPTS", 5),
		RetryInterval: getEnvDuration("WEBHOOK_RETRY_INTERVAL", 30*time.Second),
	}
}

func loadObservabilityConfig() (ObservabilityConfig, error) {
	level, err := observability.ParseLogLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return ObservabilityConfig{}, err
	}

	return ObservabilityConfig{
		LogLevel:           level,
		MetricsEnabled:     getEnvBool("METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("OTEL_SERVICE_NAME", "subscriptions"),
		OTelServiceVersion: getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("OTEL_SAMPLE_RATIO", 1),
	}, nil
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

	if c.Server.RateLimitPerMinute < 0 || c.Server.RateLimitBurst < 0 {
		return fmt.Errorf("rate limits must not be negative")
	}

	if c.Storage.PostgresURL == "" {
		return fmt.Errorf("postgres URL is required")
	}

	if c.Admin.Enabled && len(c.Admin.JWTSecret) < 32 {
		return fmt.Errorf("a JWT secret of at least 32 bytes is required when the admin site is enabled")
	}

	if c.Renewal.Workers < 1 {
		return fmt.Errorf("renewal workers must be at least 1")
	}
	if c.Renewal.LockTTL <= 0 {
		return fmt.Errorf("renewal lock TTL must be positive")
	}
	if _, err := cron.ParseStandard(c.Renewal.Schedule); err != nil {
		return fmt.Errorf("invalid renewal schedule %q: %w", c.Renewal.Schedule, err)
	}

	for _, u := range c.Webhooks.URLs {
		parsed, err := url.Parse(u)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return fmt.Errorf("invalid webhook URL %q", u)
		}
	}
	if len(c.Webhooks.URLs) > 0 && (c.Webhooks.MaxAttempts < 1 || c.Webhooks.RetryInterval <= 0) {
		return fmt.Errorf("webhook attempts and retry interval must be positive")
	}

	if c.Currency.Watch && c.Currency.DefinitionsFile == "" {
		return fmt.Errorf("a currency definitions file is required to watch for changes")
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

// getEnv returns SUBSCRIPTIONS_<key> or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(envPrefix + key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := getEnv(key, ""); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := getEnv(key, ""); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := getEnv(key, ""); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := getEnv(key, ""); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
