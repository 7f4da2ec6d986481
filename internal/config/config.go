// Package config loads the relay configuration from environment variables.
//
// Values are read once by Load and checked by Validate before the
// application starts. Optional integrations (partner secrets, Redis,
// RabbitMQ, audit forwarding, TLS) are disabled when their variables are
// empty.
//
// Environment Variables:
//
// Application Settings:
//   - PORT: Server port (default: 3000)
//   - LOG_LEVEL: Logging level (default: INFO)
//   - LOG_FILE: Log file path, stdout when empty
//
// Getir:
//   - GETIR_BASE_URL: Partner API base URL
//   - GETIR_APP_SECRET, GETIR_RESTAURANT_SECRET: Partner secrets for the cached credential
//   - GETIR_TOKEN_VALIDITY: How long an acquired credential is trusted (default: 55m)
//   - GETIR_REFRESH_SCHEDULE: Background refresh cron spec (default: @every 55m)
//   - UPSTREAM_TIMEOUT: Bound on every partner call (default: 15s)
//
// Yemeksepeti:
//   - YEMEKSEPETI_BASE_URL: Partner API base URL
//
// Storage:
//   - DATABASE_TYPE: memory, sqlite or postgres (default: memory)
//   - DATABASE_PATH: SQLite file (default: ./orders.db)
//   - DATABASE_URL: PostgreSQL connection string
//
// Notifications:
//   - REDIS_ADDRESS, REDIS_PASSWORD, REDIS_DB: Cross-instance fan-out
//   - NOTIFY_CHANNEL: Redis channel (default: orders:new)
//   - RABBITMQ_URL, ORDER_QUEUE: Durable order events (default queue: orders)
//
// HTTP:
//   - FORWARD_URL: Audit forward target for every inbound request
//   - CORS_ALLOWED_ORIGINS: Comma separated origins (default: *)
//   - RATE_LIMIT_ENABLED, RATE_LIMIT_RPS, RATE_LIMIT_BURST: Per-IP limiter (default: false, 20, 40)
//   - TLS_CERT_FILE, TLS_KEY_FILE: Serve TLS when both are set
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

const (
	DefaultGetirBaseURL       = "https://food-external-api-gateway.development.getirapi.com"
	DefaultYemeksepetiBaseURL = "https://integration-middleware-tr.me.restaurant-partners.com/v2"
)

// Config holds all configuration values for the relay.
type Config struct {
	// Application settings
	Port     int `validate:"min=1,max=65535"`
	LogLevel string
	LogFile  string

	// Getir partner API
	GetirBaseURL          string        `validate:"required,url"`
	GetirAppSecret        string        `validate:"required_with=GetirRestaurantSecret"`
	GetirRestaurantSecret string        `validate:"required_with=GetirAppSecret"`
	TokenValidity         time.Duration `validate:"min=1s"`
	RefreshSchedule       string        `validate:"required"`
	UpstreamTimeout       time.Duration `validate:"min=1s"`

	// Yemeksepeti partner API
	YemeksepetiBaseURL string `validate:"required,url"`

	// Storage
	DatabaseType string `validate:"oneof=memory sqlite postgres"`
	DatabasePath string `validate:"required_if=DatabaseType sqlite"`
	DatabaseURL  string `validate:"required_if=DatabaseType postgres"`

	// Notification fan-out
	RedisAddress  string
	RedisPassword string
	RedisDB       int    `validate:"min=0,max=15"`
	NotifyChannel string `validate:"required"`
	RabbitMQURL   string
	OrderQueue    string `validate:"required"`

	// HTTP plumbing
	ForwardURL         string `validate:"omitempty,url"`
	CORSAllowedOrigins []string
	RateLimitEnabled   bool
	RateLimitRPS       float64 `validate:"gt=0"`
	RateLimitBurst     int     `validate:"min=1"`
	TLSCertFile        string  `validate:"required_with=TLSKeyFile"`
	TLSKeyFile         string  `validate:"required_with=TLSCertFile"`
}

// Load creates a Config from the environment. Unparsable numbers,
// booleans and durations fall back to their defaults.
//
// This function does not validate the configuration; call Validate on the
// result.
func Load() *Config {
	return &Config{
		Port:     getIntEnv("PORT", 3000),
		LogLevel: getEnv("LOG_LEVEL", "INFO"),
		LogFile:  getEnv("LOG_FILE", ""),

		GetirBaseURL:          strings.TrimRight(getEnv("GETIR_BASE_URL", DefaultGetirBaseURL), "/"),
		GetirAppSecret:        getEnv("GETIR_APP_SECRET", ""),
		GetirRestaurantSecret: getEnv("GETIR_RESTAURANT_SECRET", ""),
		TokenValidity:         getDurationEnv("GETIR_TOKEN_VALIDITY", 55*time.Minute),
		RefreshSchedule:       getEnv("GETIR_REFRESH_SCHEDULE", "@every 55m"),
		UpstreamTimeout:       getDurationEnv("UPSTREAM_TIMEOUT", 15*time.Second),

		YemeksepetiBaseURL: strings.TrimRight(getEnv("YEMEKSEPETI_BASE_URL", DefaultYemeksepetiBaseURL), "/"),

		DatabaseType: strings.ToLower(getEnv("DATABASE_TYPE", "memory")),
		DatabasePath: getEnv("DATABASE_PATH", "./orders.db"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		NotifyChannel: getEnv("NOTIFY_CHANNEL", "orders:new"),
		RabbitMQURL:   getEnv("RABBITMQ_URL", ""),
		OrderQueue:    getEnv("ORDER_QUEUE", "orders"),

		ForwardURL:         getEnv("FORWARD_URL", ""),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitEnabled:   getBoolEnv("RATE_LIMIT_ENABLED", false),
		RateLimitRPS:       getFloatEnv("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getIntEnv("RATE_LIMIT_BURST", 40),
		TLSCertFile:        getEnv("TLS_CERT_FILE", ""),
		TLSKeyFile:         getEnv("TLS_KEY_FILE", ""),
	}
}

// Validate checks field constraints and the refresh schedule. The first
// violation is reported with its environment variable name.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return fmt.Errorf("invalid configuration: %s failed %q", envName(fe.Field()), fe.Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
		return fmt.Errorf("invalid configuration: GETIR_REFRESH_SCHEDULE: %w", err)
	}

	return nil
}

// CachedCredentialEnabled reports whether partner secrets are configured
func (c *Config) CachedCredentialEnabled() bool {
	return c.GetirAppSecret != "" && c.GetirRestaurantSecret != ""
}

// TLSEnabled reports whether both TLS files are configured
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Addr is the listen address
func (c *Config) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

var envNames = map[string]string{
	"Port":                  "PORT",
	"GetirBaseURL":          "GETIR_BASE_URL",
	"GetirAppSecret":        "GETIR_APP_SECRET",
	"GetirRestaurantSecret": "GETIR_RESTAURANT_SECRET",
	"TokenValidity":         "GETIR_TOKEN_VALIDITY",
	"RefreshSchedule":       "GETIR_REFRESH_SCHEDULE",
	"UpstreamTimeout":       "UPSTREAM_TIMEOUT",
	"YemeksepetiBaseURL":    "YEMEKSEPETI_BASE_URL",
	"DatabaseType":          "DATABASE_TYPE",
	"DatabasePath":          "DATABASE_PATH",
	"DatabaseURL":           "DATABASE_URL",
	"RedisDB":               "REDIS_DB",
	"NotifyChannel":         "NOTIFY_CHANNEL",
	"OrderQueue":            "ORDER_QUEUE",
	"ForwardURL":            "FORWARD_URL",
	"RateLimitRPS":          "RATE_LIMIT_RPS",
	"RateLimitBurst":        "RATE_LIMIT_BURST",
	"TLSCertFile":           "TLS_CERT_FILE",
	"TLSKeyFile":            "TLS_KEY_FILE",
}

func envName(field string) string {
	if name, ok := envNames[field]; ok {
		return name
	}
	return field
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getListEnv splits a comma separated value, dropping empty items
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
