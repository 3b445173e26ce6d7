package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = os.Getenv("DB_URL")
	}
	cfg.Security.TrustedProxies = trimList(cfg.Security.TrustedProxies)
	cfg.Cache.Backend = strings.ToLower(strings.TrimSpace(cfg.Cache.Backend))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error.
// Use this only in main() where early termination is desired.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

func trimList(in []string) []string {
	if len(in) == 0 {
		return in
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.URL == "" {
		errs = append(errs, "DATABASE_URL is required")
	}
	if c.Database.MaxConns < c.Database.MinConns {
		errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
			c.Database.MaxConns, c.Database.MinConns))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}
	if c.Database.MinConns < 0 {
		errs = append(errs, "DB_MIN_CONNS must be non-negative")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// App validation
	switch strings.ToLower(c.App.Env) {
	case "development", "production":
	default:
		errs = append(errs, fmt.Sprintf("APP_ENV (%q) must be development or production", c.App.Env))
	}

	// Security validation
	if c.App.IsProduction() {
		if c.Security.IPSalt == "" {
			errs = append(errs, "IP_SALT is required in production")
		} else if len(c.Security.IPSalt) < 32 {
			errs = append(errs, "IP_SALT must be at least 32 characters in production")
		}
	}

	// Session validation
	if c.Session.TTL <= 0 {
		errs = append(errs, "SESSION_TTL must be positive")
	}
	if c.Session.RefreshWindow <= 0 || c.Session.RefreshWindow >= c.Session.TTL {
		errs = append(errs, "SESSION_REFRESH_WINDOW must be positive and shorter than SESSION_TTL")
	}

	// Rate limit validation
	if c.Rate.Enabled {
		if c.Rate.RequestsPerMinute <= 0 {
			errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
		}
		if c.Rate.SubmitLimit <= 0 || c.Rate.SubmitWindow <= 0 {
			errs = append(errs, "RATE_LIMIT_SUBMIT and RATE_LIMIT_SUBMIT_WINDOW must be positive")
		}
		if c.Rate.LoginLimit <= 0 || c.Rate.LoginWindow <= 0 {
			errs = append(errs, "RATE_LIMIT_LOGIN and RATE_LIMIT_LOGIN_WINDOW must be positive")
		}
	}
	if c.Rate.SweepProbability < 0 || c.Rate.SweepProbability > 1 {
		errs = append(errs, "RATE_LIMIT_SWEEP_PROBABILITY must be between 0 and 1")
	}

	// Cache validation
	switch c.Cache.Backend {
	case "memory", "postgres":
	case "redis":
		if c.Cache.RedisURL == "" {
			errs = append(errs, "REDIS_URL is required when CACHE_BACKEND is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("CACHE_BACKEND (%q) must be one of: memory, postgres, redis", c.Cache.Backend))
	}
	if c.Cache.TTL <= 0 {
		errs = append(errs, "CACHE_TTL must be positive")
	}
	if c.Cache.SweepProbability < 0 || c.Cache.SweepProbability > 1 {
		errs = append(errs, "CACHE_SWEEP_PROBABILITY must be between 0 and 1")
	}

	// Export validation
	if c.Export.MaxConcurrent <= 0 {
		errs = append(errs, "EXPORT_MAX_CONCURRENT must be positive")
	}
	if c.Export.MaxWaitTime <= 0 {
		errs = append(errs, "EXPORT_MAX_WAIT_TIME must be positive")
	}
	if c.Export.PublicDefaultLimit <= 0 || c.Export.PublicMaxLimit < c.Export.PublicDefaultLimit {
		errs = append(errs, "EXPORT_PUBLIC_MAX_LIMIT must be >= EXPORT_PUBLIC_DEFAULT_LIMIT > 0")
	}
	if c.Export.AdminDefaultLimit <= 0 {
		errs = append(errs, "EXPORT_ADMIN_DEFAULT_LIMIT must be positive")
	}
	if c.Export.FlushInterval <= 0 {
		errs = append(errs, "EXPORT_FLUSH_INTERVAL must be positive")
	}

	if c.Maintenance.Interval <= 0 {
		errs = append(errs, "MAINTENANCE_INTERVAL must be positive")
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Sprintf("METRICS_PATH (%q) must start with /", c.Metrics.Path))
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// String returns a safe string representation of the config for logging.
// Database URL, Redis URL and IP salt are masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	b.WriteString(fmt.Sprintf("Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port))
	b.WriteString(fmt.Sprintf("Database: {URL: [MASKED], MaxConns: %d, MinConns: %d}, ",
		c.Database.MaxConns, c.Database.MinConns))
	b.WriteString(fmt.Sprintf("App: {Env: %q, Version: %q}, ", c.App.Env, c.App.Version))
	b.WriteString(fmt.Sprintf("Security: {IPSalt: %s, EnableCSP: %v, SecureCookies: %v}, ",
		mask(c.Security.IPSalt), c.Security.EnableCSP, c.SecureCookies()))
	b.WriteString(fmt.Sprintf("Rate: {Enabled: %v, RequestsPerMinute: %d, Submit: %d/%s, Login: %d/%s}, ",
		c.Rate.Enabled, c.Rate.RequestsPerMinute,
		c.Rate.SubmitLimit, c.Rate.SubmitWindow, c.Rate.LoginLimit, c.Rate.LoginWindow))
	b.WriteString(fmt.Sprintf("Cache: {Backend: %q, TTL: %s, RedisURL: %s}, ",
		c.Cache.Backend, c.Cache.TTL, mask(c.Cache.RedisURL)))
	b.WriteString(fmt.Sprintf("Logging: {Level: %q, Format: %q}",
		c.Logging.Level, c.Logging.Format))
	b.WriteString("}")
	return b.String()
}

func mask(s string) string {
	if s == "" {
		return "[UNSET]"
	}
	return "[MASKED]"
}
