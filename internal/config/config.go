// Package config provides centralized configuration management for both
// sanandem binaries. Settings come from environment variables with sensible
// defaults and are validated on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	App         AppConfig
	Security    SecurityConfig
	Session     SessionConfig
	Rate        RateLimitConfig
	Cache       CacheConfig
	Export      ExportConfig
	Maintenance MaintenanceConfig
	Metrics     MetricsConfig
	Logging     LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" envDefault:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" envDefault:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0, exports stream)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" envDefault:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required).
	// DB_URL is read when DATABASE_URL is unset.
	URL string `env:"DATABASE_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" envDefault:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" envDefault:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
}

// AppConfig identifies the running deployment.
type AppConfig struct {
	// Env is development or production (default: development)
	Env string `env:"APP_ENV" envDefault:"development"`

	// Version is reported by the health endpoint.
	Version string `env:"APP_VERSION" envDefault:"1.0.0"`
}

// IsProduction reports whether the deployment runs in production mode.
func (c *AppConfig) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// IPSalt is mixed into submitter IP hashes. Required in production.
	IPSalt string `env:"IP_SALT"`

	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" envDefault:"true"`

	// CookieSecure forces the Secure cookie flag on or off.
	// Empty follows APP_ENV.
	CookieSecure string `env:"SESSION_COOKIE_SECURE"`
}

// SessionConfig holds admin session lifetimes.
type SessionConfig struct {
	// TTL is how long a fresh session lives (default: 30 days)
	TTL time.Duration `env:"SESSION_TTL" envDefault:"720h"`

	// RefreshWindow extends a session when less than this remains (default: 15 days)
	RefreshWindow time.Duration `env:"SESSION_REFRESH_WINDOW" envDefault:"360h"`
}

// RateLimitConfig holds rate limiting settings.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`

	// RequestsPerMinute is the general throttle per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" envDefault:"100"`

	// SubmitLimit is report submissions per SubmitWindow (default: 5 per 15m)
	SubmitLimit  int           `env:"RATE_LIMIT_SUBMIT" envDefault:"5"`
	SubmitWindow time.Duration `env:"RATE_LIMIT_SUBMIT_WINDOW" envDefault:"15m"`

	// LoginLimit is admin login attempts per LoginWindow (default: 5 per 1m)
	LoginLimit  int           `env:"RATE_LIMIT_LOGIN" envDefault:"5"`
	LoginWindow time.Duration `env:"RATE_LIMIT_LOGIN_WINDOW" envDefault:"1m"`

	// SweepProbability is the chance an allowed request purges stale windows.
	SweepProbability float64 `env:"RATE_LIMIT_SWEEP_PROBABILITY" envDefault:"0.01"`
}

// CacheConfig holds statistics cache settings.
type CacheConfig struct {
	// Backend is memory, postgres or redis (default: postgres)
	Backend string `env:"CACHE_BACKEND" envDefault:"postgres"`

	// TTL is the lifetime of cached statistics (default: 1h)
	TTL time.Duration `env:"CACHE_TTL" envDefault:"1h"`

	// SweepProbability is the chance a cache hit purges expired entries.
	SweepProbability float64 `env:"CACHE_SWEEP_PROBABILITY" envDefault:"0.01"`

	// RedisURL is required for the redis backend.
	RedisURL string `env:"REDIS_URL"`

	// KeyPrefix namespaces redis keys.
	KeyPrefix string `env:"CACHE_KEY_PREFIX" envDefault:"sanandem:"`
}

// ExportConfig holds data export settings.
type ExportConfig struct {
	MaxConcurrent      int           `env:"EXPORT_MAX_CONCURRENT" envDefault:"3"`
	MaxWaitTime        time.Duration `env:"EXPORT_MAX_WAIT_TIME" envDefault:"10s"`
	PublicDefaultLimit int           `env:"EXPORT_PUBLIC_DEFAULT_LIMIT" envDefault:"1000"`
	PublicMaxLimit     int           `env:"EXPORT_PUBLIC_MAX_LIMIT" envDefault:"5000"`
	AdminDefaultLimit  int           `env:"EXPORT_ADMIN_DEFAULT_LIMIT" envDefault:"10000"`

	// FlushInterval is rows written between flushes of a streamed export.
	FlushInterval int `env:"EXPORT_FLUSH_INTERVAL" envDefault:"500"`
}

// MaintenanceConfig controls the background cleanup loop.
type MaintenanceConfig struct {
	// Interval is how often expired cache entries, sessions and
	// rate limit windows are purged (default: 1h)
	Interval time.Duration `env:"MAINTENANCE_INTERVAL" envDefault:"1h"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" envDefault:"true"`
	Path    string `env:"METRICS_PATH" envDefault:"/metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" envDefault:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" envDefault:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// SecureCookies reports whether session cookies carry the Secure flag.
func (c *Config) SecureCookies() bool {
	if v, err := strconv.ParseBool(c.Security.CookieSecure); err == nil {
		return v
	}
	return c.App.IsProduction()
}
