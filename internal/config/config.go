package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config holds the application configuration. Business constants default to
// the regulatory values used in production; deployments override them per
// jurisdiction.
type Config struct {
	Environment string
	DatabaseURL string
	RedisAddr   string

	APIAddr      string
	MaxBodyBytes int64

	GatewayURL     string
	GatewayAPIKey  string
	GatewayTimeout time.Duration

	RegulatoryWindowDays    int
	FraudWindowDays         int
	InvestigationWindowDays int
	HighValueThreshold      decimal.Decimal
	DocumentationThreshold  decimal.Decimal
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:             os.Getenv("APP_ENV"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		APIAddr:                 getenv("API_ADDR", ":8080"),
		MaxBodyBytes:            int64(getenvInt("API_MAX_BODY_BYTES", 1<<20)),
		GatewayURL:              os.Getenv("CHARGEBACK_GATEWAY_URL"),
		GatewayAPIKey:           os.Getenv("CHARGEBACK_GATEWAY_API_KEY"),
		GatewayTimeout:          time.Duration(getenvInt("CHARGEBACK_GATEWAY_TIMEOUT_SECONDS", 10)) * time.Second,
		RegulatoryWindowDays:    getenvInt("REGULATORY_WINDOW_DAYS", 60),
		FraudWindowDays:         getenvInt("FRAUD_WINDOW_DAYS", 120),
		InvestigationWindowDays: getenvInt("INVESTIGATION_WINDOW_DAYS", 30),
	}

	var err error
	if cfg.HighValueThreshold, err = getenvDecimal("HIGH_VALUE_THRESHOLD", "2500"); err != nil {
		return nil, err
	}
	if cfg.DocumentationThreshold, err = getenvDecimal("DOCUMENTATION_THRESHOLD", "500"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.GatewayURL == "" {
		missing = append(missing, "CHARGEBACK_GATEWAY_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.RegulatoryWindowDays <= 0 || c.InvestigationWindowDays <= 0 {
		return errors.New("deadline windows must be positive day counts")
	}

	// Production traffic must authenticate to the network adapter.
	if (c.Environment == "production" || c.Environment == "staging") && c.GatewayAPIKey == "" {
		return errors.New("CHARGEBACK_GATEWAY_API_KEY is required in " + c.Environment)
	}

	return nil
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvDecimal(key, def string) (decimal.Decimal, error) {
	v := os.Getenv(key)
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s must be a decimal amount: %w", key, err)
	}
	return d, nil
}
