package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("APP_ENV", "development")
	t.Setenv("DATABASE_URL", "postgres://localhost/disputes")
	t.Setenv("CHARGEBACK_GATEWAY_URL", "https://gateway.example.com")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.APIAddr)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 60, cfg.RegulatoryWindowDays)
	assert.Equal(t, 120, cfg.FraudWindowDays)
	assert.Equal(t, 30, cfg.InvestigationWindowDays)
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout)
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.NewFromInt(2500)))
	assert.True(t, cfg.DocumentationThreshold.Equal(decimal.NewFromInt(500)))
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("API_ADDR", ":9090")
	t.Setenv("REGULATORY_WINDOW_DAYS", "45")
	t.Setenv("FRAUD_WINDOW_DAYS", "90")
	t.Setenv("HIGH_VALUE_THRESHOLD", "10000.50")
	t.Setenv("CHARGEBACK_GATEWAY_TIMEOUT_SECONDS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.APIAddr)
	assert.Equal(t, 45, cfg.RegulatoryWindowDays)
	assert.Equal(t, 90, cfg.FraudWindowDays)
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout)
	assert.True(t, cfg.HighValueThreshold.Equal(decimal.RequireFromString("10000.50")))
}

func TestLoadRejectsMalformedDecimal(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HIGH_VALUE_THRESHOLD", "lots")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HIGH_VALUE_THRESHOLD")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Environment:             "development",
			DatabaseURL:             "postgres://localhost/disputes",
			GatewayURL:              "https://gateway.example.com",
			RegulatoryWindowDays:    60,
			InvestigationWindowDays: 30,
		}
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, base().Validate())
	})

	t.Run("missing required vars are named", func(t *testing.T) {
		cfg := base()
		cfg.DatabaseURL = ""
		cfg.GatewayURL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
		assert.Contains(t, err.Error(), "CHARGEBACK_GATEWAY_URL")
	})

	t.Run("windows must be positive", func(t *testing.T) {
		cfg := base()
		cfg.RegulatoryWindowDays = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("production requires a gateway key", func(t *testing.T) {
		cfg := base()
		cfg.Environment = "production"
		assert.Error(t, cfg.Validate())

		cfg.GatewayAPIKey = "key-123"
		assert.NoError(t, cfg.Validate())
	})
}
