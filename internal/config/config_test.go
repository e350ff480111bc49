package config

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Port:                     "8080",
		MarginPct:                decimal.RequireFromString("15"),
		DefaultProviderName:      "meridian",
		DefaultProviderBaseURL:   "https://api.meridian.example",
		DefaultProviderAccountID: "AC123",
		DefaultProviderToken:     "tok_abc",
		BreakerThreshold:         5,
	}
}

func TestValidate_OK(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_NegativeMargin(t *testing.T) {
	cfg := validConfig()
	cfg.MarginPct = decimal.RequireFromString("-5")
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARGIN_PCT")
}

func TestValidate_MissingDefaultProvider(t *testing.T) {
	cfg := validConfig()
	cfg.DefaultProviderBaseURL = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.DefaultProviderToken = ""
	assert.Error(t, cfg.Validate())
}

func TestValidate_HalfConfiguredRegional(t *testing.T) {
	cfg := validConfig()
	cfg.RegionalProviderBaseURL = "https://api.savanna.example"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REGIONAL_PROVIDER")

	cfg.RegionalProviderAPIKey = "key_123"
	assert.NoError(t, cfg.Validate())
	assert.True(t, cfg.RegionalConfigured())
}

func TestValidate_BadRateCardEntry(t *testing.T) {
	cfg := validConfig()
	cfg.RateSMS = "not-a-number"
	assert.Error(t, cfg.Validate())

	cfg.RateSMS = "-0.01"
	assert.Error(t, cfg.Validate())

	cfg.RateSMS = "0.008"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_BreakerThreshold(t *testing.T) {
	cfg := validConfig()
	cfg.BreakerThreshold = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_AppliesDefaults(t *testing.T) {
	t.Setenv("DEFAULT_PROVIDER_BASE_URL", "https://api.meridian.example")
	t.Setenv("DEFAULT_PROVIDER_ACCOUNT_ID", "AC123")
	t.Setenv("DEFAULT_PROVIDER_TOKEN", "tok_abc")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, "meridian", cfg.DefaultProviderName)
	assert.Equal(t, "savanna", cfg.RegionalProviderName)
	assert.True(t, cfg.MarginPct.Equal(decimal.RequireFromString("15")))
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.RegionalConfigured())
}

func TestLoad_RejectsUnparseableMargin(t *testing.T) {
	t.Setenv("DEFAULT_PROVIDER_BASE_URL", "https://api.meridian.example")
	t.Setenv("DEFAULT_PROVIDER_ACCOUNT_ID", "AC123")
	t.Setenv("DEFAULT_PROVIDER_TOKEN", "tok_abc")
	t.Setenv("MARGIN_PCT", "fifteen")

	_, err := Load()
	require.Error(t, err)
}

func TestRateCard(t *testing.T) {
	cfg := validConfig()
	cfg.RateSMS = "0.008"
	cfg.RateEmail = "0.002"
	cfg.RateData = ""
	cfg.RateAirtime = ""

	card := cfg.RateCard()
	require.Len(t, card, 2)
	assert.True(t, card["sms"].Equal(decimal.RequireFromString("0.008")))
	assert.True(t, card["email"].Equal(decimal.RequireFromString("0.002")))
	_, ok := card["data"]
	assert.False(t, ok)
}

func TestValidate_AdminSecretRequiredInProduction(t *testing.T) {
	cfg := validConfig()
	cfg.Env = "production"
	cfg.AdminSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.AdminSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_ParsesAllowedOrigins(t *testing.T) {
	t.Setenv("DEFAULT_PROVIDER_BASE_URL", "https://api.meridian.example")
	t.Setenv("DEFAULT_PROVIDER_ACCOUNT_ID", "AC123")
	t.Setenv("DEFAULT_PROVIDER_TOKEN", "tok_abc")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://staging.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://app.example.com", "https://staging.example.com"}, cfg.AllowedOrigins)
}
