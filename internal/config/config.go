package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/teller-bank/teller_bank/internal/account"
)

const (
	defaultAppName   = "TellerBank"
	defaultAppEnv    = "development"
	devAccessSecret  = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"

	interestRatePlaces = 6
)

// Config captures application runtime configuration loaded from the
// environment and an optional .env file.
type Config struct {
	AppName              string        `mapstructure:"APP_NAME"`
	AppEnv               string        `mapstructure:"APP_ENV"`
	Port                 string        `mapstructure:"PORT"`
	LogLevel             string        `mapstructure:"LOG_LEVEL"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	MigrateOnStart       bool          `mapstructure:"MIGRATE_ON_START"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	AMQPURL              string        `mapstructure:"AMQP_URL"`
	AMQPExchange         string        `mapstructure:"AMQP_EXCHANGE"`
	ShutdownPeriod       time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL       time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	RefreshSecret        string        `mapstructure:"REFRESH_SECRET"`
	AccessTokenTTL       time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL      time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	LoginRateLimit       int           `mapstructure:"LOGIN_RATE_LIMIT"`
	MonthlyCycleSchedule string        `mapstructure:"MONTHLY_CYCLE_SCHEDULE"`
	AdminUsername        string        `mapstructure:"ADMIN_USERNAME"`
	AdminPassword        string        `mapstructure:"ADMIN_PASSWORD"`

	CheckingOverdraftLimit string `mapstructure:"CHECKING_OVERDRAFT_LIMIT"`
	CheckingMonthlyFee     string `mapstructure:"CHECKING_MONTHLY_FEE"`
	SavingsMinimumBalance  string `mapstructure:"SAVINGS_MINIMUM_BALANCE"`
	SavingsInterestRate    string `mapstructure:"SAVINGS_INTEREST_RATE"`

	// Terms is parsed from the four term settings above.
	Terms account.Terms `mapstructure:"-"`
}

var keys = []string{
	"APP_NAME", "APP_ENV", "PORT", "LOG_LEVEL", "DATABASE_URL", "MIGRATE_ON_START", "REDIS_URL",
	"AMQP_URL", "AMQP_EXCHANGE", "SHUTDOWN_TIMEOUT", "IDEMPOTENCY_TTL", "JWT_SECRET", "REFRESH_SECRET",
	"ACCESS_TOKEN_TTL", "REFRESH_TOKEN_TTL", "LOGIN_RATE_LIMIT", "MONTHLY_CYCLE_SCHEDULE",
	"ADMIN_USERNAME", "ADMIN_PASSWORD", "CHECKING_OVERDRAFT_LIMIT", "CHECKING_MONTHLY_FEE",
	"SAVINGS_MINIMUM_BALANCE", "SAVINGS_INTEREST_RATE",
}

// Load reads configuration values and validates them for the current environment.
func Load() (Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	v := viper.New()
	defaults := account.DefaultTerms()
	v.SetDefault("APP_NAME", defaultAppName)
	v.SetDefault("APP_ENV", defaultAppEnv)
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MIGRATE_ON_START", true)
	v.SetDefault("AMQP_EXCHANGE", "banking_events")
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "720h")
	v.SetDefault("LOGIN_RATE_LIMIT", 5)
	v.SetDefault("MONTHLY_CYCLE_SCHEDULE", "0 2 1 * *")
	v.SetDefault("CHECKING_OVERDRAFT_LIMIT", defaults.OverdraftLimit.String())
	v.SetDefault("CHECKING_MONTHLY_FEE", defaults.MonthlyFee.String())
	v.SetDefault("SAVINGS_MINIMUM_BALANCE", defaults.MinimumBalance.String())
	v.SetDefault("SAVINGS_INTEREST_RATE", defaults.InterestRate.String())
	v.AutomaticEnv()
	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	terms, err := cfg.parseTerms()
	if err != nil {
		return Config{}, err
	}
	cfg.Terms = terms

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) parseTerms() (account.Terms, error) {
	fields := []struct {
		key   string
		raw   string
		into  *decimal.Decimal
		check func(decimal.Decimal) bool
	}{
		{"CHECKING_OVERDRAFT_LIMIT", c.CheckingOverdraftLimit, nil, func(d decimal.Decimal) bool { return !d.IsPositive() && places(d, 2) }},
		{"CHECKING_MONTHLY_FEE", c.CheckingMonthlyFee, nil, func(d decimal.Decimal) bool { return !d.IsNegative() && places(d, 2) }},
		{"SAVINGS_MINIMUM_BALANCE", c.SavingsMinimumBalance, nil, func(d decimal.Decimal) bool { return !d.IsNegative() && places(d, 2) }},
		{"SAVINGS_INTEREST_RATE", c.SavingsInterestRate, nil, func(d decimal.Decimal) bool {
			return !d.IsNegative() && places(d, interestRatePlaces) && d.LessThan(decimal.NewFromInt(10000))
		}},
	}
	var terms account.Terms
	fields[0].into = &terms.OverdraftLimit
	fields[1].into = &terms.MonthlyFee
	fields[2].into = &terms.MinimumBalance
	fields[3].into = &terms.InterestRate

	for _, f := range fields {
		d, err := decimal.NewFromString(strings.TrimSpace(f.raw))
		if err != nil {
			return account.Terms{}, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		if !f.check(d) {
			return account.Terms{}, fmt.Errorf("invalid %s: %s out of range", f.key, f.raw)
		}
		*f.into = d
	}
	return terms, nil
}

// places reports whether d fits in n decimal places. Money terms are stored as
// NUMERIC(20,2) and the interest rate as NUMERIC(10,6).
func places(d decimal.Decimal, n int32) bool {
	return d.Equal(d.Truncate(n))
}

func (c *Config) validate() error {
	if c.IsDev() {
		if c.JWTSecret == "" {
			c.JWTSecret = devAccessSecret
		}
		if c.RefreshSecret == "" {
			c.RefreshSecret = devRefreshSecret
		}
		return nil
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.JWTSecret == "" || c.RefreshSecret == "" {
		return fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set when APP_ENV=%s", c.AppEnv)
	}
	if c.JWTSecret == c.RefreshSecret {
		return fmt.Errorf("JWT_SECRET and REFRESH_SECRET must differ")
	}
	return nil
}

// IsDev reports whether in-memory backends are acceptable.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
