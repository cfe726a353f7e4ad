package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the creative-library analytics service.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Tracker   TrackerConfig
	AdSource  AdSourceConfig
	Run       RunConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// TrackerConfig configures the tracking-platform client and the
// rate-limited fetcher in front of it. Rate defaults follow the
// provider's documented limit of 20 requests per rolling minute.
type TrackerConfig struct {
	BaseURL string
	APIKey  string

	// RequestsPerMinute is the provider's hard request ceiling.
	RequestsPerMinute int
	// RequestDelay is the fixed pacing between sequential lookups.
	RequestDelay time.Duration
	// BulkThreshold switches to bulk fetching above this many keys.
	BulkThreshold int
	// BulkSize is the maximum number of keys per bulk request.
	BulkSize int
	// MaxRetries is the number of retries after a transient failure.
	MaxRetries int
	// RetryBackoff is the fixed wait before a retry.
	RetryBackoff time.Duration
	// RateLimitBackoff is the elevated wait after an upstream 429.
	RateLimitBackoff time.Duration
	// Concurrency bounds parallel lookups within one fetch call.
	Concurrency int
	// HTTPTimeout is the per-request timeout.
	HTTPTimeout time.Duration
	// CacheTTL controls the optional Redis lookup cache (0 disables it).
	CacheTTL time.Duration
}

// AdSourceConfig configures the advertising-platform client used to
// pull spend records when the caller does not supply them.
type AdSourceConfig struct {
	BaseURL     string
	AccessToken string
	PageSize    int
	HTTPTimeout time.Duration
}

// RunConfig holds per-correlation-run settings.
type RunConfig struct {
	// Timeout bounds a whole correlation run. On expiry the run returns
	// a partial result flagged incomplete instead of an error.
	Timeout time.Duration
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CREATIVE_ANALYTICS_HTTP_ADDR", ":8090"),
			Env:             getEnv("CREATIVE_ANALYTICS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("CREATIVE_ANALYTICS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("CREATIVE_ANALYTICS_DB_HOST", "localhost"),
			Port:     getIntEnv("CREATIVE_ANALYTICS_DB_PORT", 5432),
			User:     getEnv("CREATIVE_ANALYTICS_DB_USER", "creative"),
			Password: getEnv("CREATIVE_ANALYTICS_DB_PASSWORD", ""),
			DBName:   getEnv("CREATIVE_ANALYTICS_DB_NAME", "creative_library"),
			SSLMode:  getEnv("CREATIVE_ANALYTICS_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("CREATIVE_ANALYTICS_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("CREATIVE_ANALYTICS_DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CREATIVE_ANALYTICS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CREATIVE_ANALYTICS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("CREATIVE_ANALYTICS_REDIS_DB", 0),
		},
		Tracker: TrackerConfig{
			BaseURL:           getEnv("CREATIVE_ANALYTICS_TRACKER_URL", ""),
			APIKey:            getEnv("CREATIVE_ANALYTICS_TRACKER_API_KEY", ""),
			RequestsPerMinute: getIntEnv("CREATIVE_ANALYTICS_TRACKER_RPM", 20),
			RequestDelay:      getDurationEnv("CREATIVE_ANALYTICS_TRACKER_DELAY", 3*time.Second),
			BulkThreshold:     getIntEnv("CREATIVE_ANALYTICS_TRACKER_BULK_THRESHOLD", 10),
			BulkSize:          getIntEnv("CREATIVE_ANALYTICS_TRACKER_BULK_SIZE", 25),
			MaxRetries:        getIntEnv("CREATIVE_ANALYTICS_TRACKER_RETRIES", 1),
			RetryBackoff:      getDurationEnv("CREATIVE_ANALYTICS_TRACKER_RETRY_BACKOFF", 2*time.Second),
			RateLimitBackoff:  getDurationEnv("CREATIVE_ANALYTICS_TRACKER_429_BACKOFF", 15*time.Second),
			Concurrency:       getIntEnv("CREATIVE_ANALYTICS_TRACKER_CONCURRENCY", 4),
			HTTPTimeout:       getDurationEnv("CREATIVE_ANALYTICS_TRACKER_HTTP_TIMEOUT", 10*time.Second),
			CacheTTL:          getDurationEnv("CREATIVE_ANALYTICS_TRACKER_CACHE_TTL", 0),
		},
		AdSource: AdSourceConfig{
			BaseURL:     getEnv("CREATIVE_ANALYTICS_ADSOURCE_URL", ""),
			AccessToken: getEnv("CREATIVE_ANALYTICS_ADSOURCE_TOKEN", ""),
			PageSize:    getIntEnv("CREATIVE_ANALYTICS_ADSOURCE_PAGE_SIZE", 100),
			HTTPTimeout: getDurationEnv("CREATIVE_ANALYTICS_ADSOURCE_HTTP_TIMEOUT", 15*time.Second),
		},
		Run: RunConfig{
			Timeout: getDurationEnv("CREATIVE_ANALYTICS_RUN_TIMEOUT", 5*time.Minute),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("CREATIVE_ANALYTICS_AUTH_ENABLED", false),
			MasterKey: getEnv("CREATIVE_ANALYTICS_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("CREATIVE_ANALYTICS_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("CREATIVE_ANALYTICS_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("CREATIVE_ANALYTICS_RATE_LIMIT_RPS", 20),
			Burst:   getIntEnv("CREATIVE_ANALYTICS_RATE_LIMIT_BURST", 40),
		},
		Log: LogConfig{
			Level:  getEnv("CREATIVE_ANALYTICS_LOG_LEVEL", "info"),
			Format: getEnv("CREATIVE_ANALYTICS_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("CREATIVE_ANALYTICS_METRICS_ENABLED", true),
			Path:    getEnv("CREATIVE_ANALYTICS_METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("CREATIVE_ANALYTICS_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Tracker.RequestsPerMinute <= 0 {
		return fmt.Errorf("tracker requests per minute must be positive, got %d", c.Tracker.RequestsPerMinute)
	}
	if c.Tracker.BulkSize <= 0 {
		return fmt.Errorf("tracker bulk size must be positive, got %d", c.Tracker.BulkSize)
	}
	if c.Tracker.Concurrency <= 0 {
		return fmt.Errorf("tracker concurrency must be positive, got %d", c.Tracker.Concurrency)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
