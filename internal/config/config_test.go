package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevelopmentDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultAppName, cfg.AppName)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, 15*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, 5, cfg.LoginRateLimit)
	assert.Equal(t, "0 2 1 * *", cfg.MonthlyCycleSchedule)
	assert.Equal(t, devAccessSecret, cfg.JWTSecret)
	assert.Equal(t, "-100.00", cfg.Terms.OverdraftLimit.StringFixed(2))
	assert.Equal(t, "12.00", cfg.Terms.MonthlyFee.StringFixed(2))
	assert.Equal(t, "100.00", cfg.Terms.MinimumBalance.StringFixed(2))
	assert.Equal(t, "0.025", cfg.Terms.InterestRate.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "local")
	t.Setenv("PORT", ":9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("CHECKING_OVERDRAFT_LIMIT", "-250")
	t.Setenv("SAVINGS_INTEREST_RATE", "0.01")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Address())
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3*time.Second, cfg.ShutdownPeriod)
	assert.Equal(t, "-250.00", cfg.Terms.OverdraftLimit.StringFixed(2))
	assert.Equal(t, "0.01", cfg.Terms.InterestRate.String())
}

func TestLoadRejectsBadTerms(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("CHECKING_OVERDRAFT_LIMIT", "50")
	_, err := Load()
	assert.ErrorContains(t, err, "CHECKING_OVERDRAFT_LIMIT")

	t.Setenv("CHECKING_OVERDRAFT_LIMIT", "abc")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadProductionRequiresBackends(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	_, err := Load()
	assert.ErrorContains(t, err, "DATABASE_URL")

	t.Setenv("DATABASE_URL", "postgres://bank@localhost/bank")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "access")
	t.Setenv("REFRESH_SECRET", "refresh")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.IsDev())
}

func TestLoadRejectsTermsFinerThanStored(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	t.Setenv("SAVINGS_INTEREST_RATE", "0.0250001")
	_, err := Load()
	assert.ErrorContains(t, err, "SAVINGS_INTEREST_RATE")

	t.Setenv("SAVINGS_INTEREST_RATE", "0.025125")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.025125", cfg.Terms.InterestRate.String())

	t.Setenv("CHECKING_MONTHLY_FEE", "12.005")
	_, err = Load()
	assert.ErrorContains(t, err, "CHECKING_MONTHLY_FEE")
}
