// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string (optional, uses in-memory if not set)

	// Default (global) provider
	DefaultProviderName      string
	DefaultProviderBaseURL   string
	DefaultProviderAccountID string
	DefaultProviderToken     string

	// Region-specialized provider (optional)
	RegionalProviderName    string
	RegionalProviderBaseURL string
	RegionalProviderAPIKey  string

	// Pricing
	MarginPct   decimal.Decimal
	RateSMS     string // per-segment cost, empty = no card entry
	RateEmail   string
	RateData    string
	RateAirtime string

	// Delivery
	BreakerThreshold   int
	BreakerOpenSeconds int

	// Dispatch
	DispatchQueueSize int
	DispatchWorkers   int
	WebhookSecret     string

	// Admin API (tenant provisioning, credits)
	AdminSecret string

	// CORS
	AllowedOrigins []string

	// Observability
	OTLPEndpoint string
}

const (
	DefaultPort             = "8080"
	DefaultEnv              = "development"
	DefaultLogLevel         = "info"
	DefaultProviderName     = "meridian"
	DefaultRegionalName     = "savanna"
	DefaultMarginPct        = "15"
	DefaultBreakerThreshold = 5
	DefaultBreakerOpenSecs  = 30
	DefaultQueueSize        = 1024
	DefaultWorkers          = 4
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	marginRaw := getEnv("MARGIN_PCT", DefaultMarginPct)
	margin, err := decimal.NewFromString(marginRaw)
	if err != nil {
		return nil, fmt.Errorf("MARGIN_PCT %q is not a valid decimal", marginRaw)
	}

	cfg := &Config{
		Port:        getEnv("PORT", DefaultPort),
		Env:         getEnv("ENV", DefaultEnv),
		LogLevel:    getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL: os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:    os.Getenv("REDIS_URL"),    // Optional, uses in-memory if not set

		DefaultProviderName:      getEnv("DEFAULT_PROVIDER_NAME", DefaultProviderName),
		DefaultProviderBaseURL:   os.Getenv("DEFAULT_PROVIDER_BASE_URL"),
		DefaultProviderAccountID: os.Getenv("DEFAULT_PROVIDER_ACCOUNT_ID"),
		DefaultProviderToken:     os.Getenv("DEFAULT_PROVIDER_TOKEN"),

		RegionalProviderName:    getEnv("REGIONAL_PROVIDER_NAME", DefaultRegionalName),
		RegionalProviderBaseURL: os.Getenv("REGIONAL_PROVIDER_BASE_URL"),
		RegionalProviderAPIKey:  os.Getenv("REGIONAL_PROVIDER_API_KEY"),

		MarginPct:   margin,
		RateSMS:     os.Getenv("RATE_SMS"),
		RateEmail:   os.Getenv("RATE_EMAIL"),
		RateData:    os.Getenv("RATE_DATA"),
		RateAirtime: os.Getenv("RATE_AIRTIME"),

		BreakerThreshold:   getEnvInt("BREAKER_THRESHOLD", DefaultBreakerThreshold),
		BreakerOpenSeconds: getEnvInt("BREAKER_OPEN_SECONDS", DefaultBreakerOpenSecs),

		DispatchQueueSize: getEnvInt("DISPATCH_QUEUE_SIZE", DefaultQueueSize),
		DispatchWorkers:   getEnvInt("DISPATCH_WORKERS", DefaultWorkers),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),

		AdminSecret: os.Getenv("ADMIN_SECRET"),

		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and sane
func (c *Config) Validate() error {
	if c.MarginPct.IsNegative() {
		return fmt.Errorf("MARGIN_PCT must be >= 0, got %s", c.MarginPct)
	}
	if c.DefaultProviderBaseURL == "" {
		return fmt.Errorf("DEFAULT_PROVIDER_BASE_URL is required")
	}
	if c.DefaultProviderAccountID == "" || c.DefaultProviderToken == "" {
		return fmt.Errorf("DEFAULT_PROVIDER_ACCOUNT_ID and DEFAULT_PROVIDER_TOKEN are required")
	}
	// The regional provider is optional, but half-configuring it is a
	// deployment mistake worth failing fast on.
	if (c.RegionalProviderBaseURL == "") != (c.RegionalProviderAPIKey == "") {
		return fmt.Errorf("REGIONAL_PROVIDER_BASE_URL and REGIONAL_PROVIDER_API_KEY must be set together")
	}
	if c.BreakerThreshold < 1 {
		return fmt.Errorf("BREAKER_THRESHOLD must be >= 1, got %d", c.BreakerThreshold)
	}
	for _, rate := range []struct{ name, value string }{
		{"RATE_SMS", c.RateSMS},
		{"RATE_EMAIL", c.RateEmail},
		{"RATE_DATA", c.RateData},
		{"RATE_AIRTIME", c.RateAirtime},
	} {
		if rate.value == "" {
			continue
		}
		d, err := decimal.NewFromString(rate.value)
		if err != nil || d.IsNegative() {
			return fmt.Errorf("%s %q is not a valid non-negative decimal", rate.name, rate.value)
		}
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

// RateCard builds the per-unit cost table from the configured rates.
// Services without a configured rate are absent from the card and are
// priced from provider-reported cost instead.
func (c *Config) RateCard() map[string]decimal.Decimal {
	card := make(map[string]decimal.Decimal)
	for _, rate := range []struct{ service, value string }{
		{"sms", c.RateSMS},
		{"email", c.RateEmail},
		{"data", c.RateData},
		{"airtime", c.RateAirtime},
	} {
		if rate.value == "" {
			continue
		}
		if d, err := decimal.NewFromString(rate.value); err == nil {
			card[rate.service] = d
		}
	}
	return card
}

// RegionalConfigured reports whether a region-specialized provider is set up.
func (c *Config) RegionalConfigured() bool {
	return c.RegionalProviderBaseURL != ""
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}
