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
}

// RedisConfig provides settings for the Redis connection used by the
// tenant cache and the asynq task queue.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the background scheduler process.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSlaSweepInterval() time.Duration
	GetOutboxDispatchInterval() time.Duration
}

// RoutingConfig provides settings for the routing decision engine.
type RoutingConfig interface {
	GetCollaboratorTimeout() time.Duration
	GetScoringWeightsFile() string
	GetTenantCacheTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                    string
	HTTPAddr               string
	DatabaseURL            string
	JWTAccessSecret        string
	CORSAllowAll           bool
	CORSOrigins            []string
	CORSAllowCreds         bool
	RedisURL               string
	RedisTLSInsecure       bool
	AsynqQueueName         string
	AsynqConcurrency       int
	SlaSweepInterval       time.Duration
	OutboxDispatchInterval time.Duration
	CollaboratorTimeout    time.Duration
	ScoringWeightsFile     string
	TenantCacheTTL         time.Duration
}

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string                { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int                 { return c.AsynqConcurrency }
func (c *Config) GetSlaSweepInterval() time.Duration       { return c.SlaSweepInterval }
func (c *Config) GetOutboxDispatchInterval() time.Duration { return c.OutboxDispatchInterval }

// RoutingConfig implementation
func (c *Config) GetCollaboratorTimeout() time.Duration { return c.CollaboratorTimeout }
func (c *Config) GetScoringWeightsFile() string         { return c.ScoringWeightsFile }
func (c *Config) GetTenantCacheTTL() time.Duration      { return c.TenantCacheTTL }

// Load reads configuration from the environment, with .env support for
// local development.
func Load() (*Config, error) {
	// .env is optional; real environments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{
		Env:                    getEnv("APP_ENV", "development"),
		HTTPAddr:               getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		JWTAccessSecret:        os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:           getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:            getEnvList("CORS_ORIGINS"),
		CORSAllowCreds:         getEnvBool("CORS_ALLOW_CREDENTIALS", true),
		RedisURL:               os.Getenv("REDIS_URL"),
		RedisTLSInsecure:       getEnvBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:         getEnv("ASYNQ_QUEUE", "routing"),
		AsynqConcurrency:       getEnvInt("ASYNQ_CONCURRENCY", 10),
		SlaSweepInterval:       getEnvDuration("SLA_SWEEP_INTERVAL", time.Minute),
		OutboxDispatchInterval: getEnvDuration("OUTBOX_DISPATCH_INTERVAL", 2*time.Second),
		CollaboratorTimeout:    getEnvDuration("COLLABORATOR_TIMEOUT", 3*time.Second),
		ScoringWeightsFile:     os.Getenv("SCORING_WEIGHTS_FILE"),
		TenantCacheTTL:         getEnvDuration("TENANT_CACHE_TTL", 5*time.Minute),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
