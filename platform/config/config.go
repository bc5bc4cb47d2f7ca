// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetRateLimitPerSecond() float64
	GetRateLimitBurst() int
}

// SchedulerConfig provides settings for the redis-backed task queue.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSLASweepInterval() time.Duration
}

// CalculationConfig provides settings for the external calculation service.
type CalculationConfig interface {
	GetCalculationAPIURL() string
	GetCalculationAPIKey() string
	GetCalculationTimeout() time.Duration
	IsCalculationEnabled() bool
}

// ScoringConfig points at an optional override for the scoring weights file.
type ScoringConfig interface {
	GetScoringConfigPath() string
}

// PhoneConfig provides the default region used to parse local numbers.
type PhoneConfig interface {
	GetDefaultPhoneRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                string
	HTTPAddr           string
	DatabaseURL        string
	JWTAccessSecret    string
	CORSAllowAll       bool
	CORSOrigins        []string
	CORSAllowCreds     bool
	RateLimitPerSecond float64
	RateLimitBurst     int
	RedisURL           string
	RedisTLSInsecure   bool
	AsynqQueueName     string
	AsynqConcurrency   int
	SLASweepInterval   time.Duration
	CalculationAPIURL  string
	CalculationAPIKey  string
	CalculationTimeout time.Duration
	ScoringConfigPath  string
	DefaultPhoneRegion string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string            { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool          { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string       { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool        { return c.CORSAllowCreds }
func (c *Config) GetRateLimitPerSecond() float64 { return c.RateLimitPerSecond }
func (c *Config) GetRateLimitBurst() int         { return c.RateLimitBurst }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string                { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool          { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string          { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int           { return c.AsynqConcurrency }
func (c *Config) GetSLASweepInterval() time.Duration { return c.SLASweepInterval }

// CalculationConfig implementation
func (c *Config) GetCalculationAPIURL() string         { return c.CalculationAPIURL }
func (c *Config) GetCalculationAPIKey() string         { return c.CalculationAPIKey }
func (c *Config) GetCalculationTimeout() time.Duration { return c.CalculationTimeout }
func (c *Config) IsCalculationEnabled() bool           { return c.CalculationAPIURL != "" }

// ScoringConfig implementation
func (c *Config) GetScoringConfigPath() string { return c.ScoringConfigPath }

// PhoneConfig implementation
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                getEnv("APP_ENV", "development"),
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		JWTAccessSecret:    getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:       corsAllowAll,
		CORSOrigins:        corsOrigins,
		CORSAllowCreds:     strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RateLimitPerSecond: mustFloat(getEnv("RATE_LIMIT_RPS", "20")),
		RateLimitBurst:     mustInt(getEnv("RATE_LIMIT_BURST", "40")),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisTLSInsecure:   strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:     getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:   mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		SLASweepInterval:   mustDuration(getEnv("SLA_SWEEP_INTERVAL", "15m")),
		CalculationAPIURL:  strings.TrimRight(getEnv("CALCULATION_API_URL", ""), "/"),
		CalculationAPIKey:  getEnv("CALCULATION_API_KEY", ""),
		CalculationTimeout: mustDuration(getEnv("CALCULATION_TIMEOUT", "5s")),
		ScoringConfigPath:  getEnv("SCORING_CONFIG_PATH", ""),
		DefaultPhoneRegion: strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.CalculationTimeout <= 0 {
		return nil, fmt.Errorf("CALCULATION_TIMEOUT must be a positive duration")
	}
	if cfg.SLASweepInterval <= 0 {
		return nil, fmt.Errorf("SLA_SWEEP_INTERVAL must be a positive duration")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
