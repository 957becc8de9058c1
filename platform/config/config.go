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

// DistributionConfig provides settings for the distribution endpoint.
type DistributionConfig interface {
	GetDistributionAPIKey() string
}

// CRMConfig provides settings for the external CRM integration.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIToken() string
	GetCRMGroupID() string
	GetCRMTimeout() time.Duration
	GetCRMRequestsPerSecond() float64
	IsCRMEnabled() bool
}

// SchedulerConfig provides settings for the asynq task scheduler.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for operator alert emails.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromAddress() string
	GetAlertRecipients() []string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	DistributionAPIKey   string
	CRMBaseURL           string
	CRMAPIToken          string
	CRMGroupID           string
	CRMTimeout           time.Duration
	CRMRequestsPerSecond float64
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	EmailEnabled         bool
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	EmailFromAddress     string
	AlertRecipients      []string
}

// Load reads configuration from the environment, loading a .env file first
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		JWTAccessSecret:      os.Getenv("JWT_ACCESS_SECRET"),
		CORSAllowAll:         getEnvBool("CORS_ALLOW_ALL", false),
		CORSOrigins:          getEnvList("CORS_ORIGINS"),
		CORSAllowCreds:       getEnvBool("CORS_ALLOW_CREDENTIALS", true),
		DistributionAPIKey:   os.Getenv("DISTRIBUTION_API_KEY"),
		CRMBaseURL:           strings.TrimRight(os.Getenv("CRM_BASE_URL"), "/"),
		CRMAPIToken:          os.Getenv("CRM_API_TOKEN"),
		CRMGroupID:           os.Getenv("CRM_GROUP_ID"),
		CRMTimeout:           getEnvDuration("CRM_TIMEOUT", 15*time.Second),
		CRMRequestsPerSecond: getEnvFloat("CRM_REQUESTS_PER_SECOND", 5),
		RedisURL:             os.Getenv("REDIS_URL"),
		RedisTLSInsecure:     getEnvBool("REDIS_TLS_INSECURE", false),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     getEnvInt("ASYNQ_CONCURRENCY", 10),
		EmailEnabled:         getEnvBool("EMAIL_ENABLED", false),
		SMTPHost:             os.Getenv("SMTP_HOST"),
		SMTPPort:             getEnvInt("SMTP_PORT", 587),
		SMTPUsername:         os.Getenv("SMTP_USERNAME"),
		SMTPPassword:         os.Getenv("SMTP_PASSWORD"),
		EmailFromAddress:     os.Getenv("EMAIL_FROM_ADDRESS"),
		AlertRecipients:      getEnvList("ALERT_RECIPIENTS"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string    { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetDistributionAPIKey() string { return c.DistributionAPIKey }

func (c *Config) GetCRMBaseURL() string             { return c.CRMBaseURL }
func (c *Config) GetCRMAPIToken() string            { return c.CRMAPIToken }
func (c *Config) GetCRMGroupID() string             { return c.CRMGroupID }
func (c *Config) GetCRMTimeout() time.Duration      { return c.CRMTimeout }
func (c *Config) GetCRMRequestsPerSecond() float64  { return c.CRMRequestsPerSecond }
func (c *Config) IsCRMEnabled() bool                { return c.CRMBaseURL != "" && c.CRMAPIToken != "" }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetEmailEnabled() bool        { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string          { return c.SMTPHost }
func (c *Config) GetSMTPPort() int             { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string      { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string      { return c.SMTPPassword }
func (c *Config) GetEmailFromAddress() string  { return c.EmailFromAddress }
func (c *Config) GetAlertRecipients() []string { return c.AlertRecipients }

// =============================================================================
// Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
