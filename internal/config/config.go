package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LedgerConfig struct {
	DefaultPrice      decimal.Decimal
	RepriceHistory    bool
	Timezone          string
	LockTTL           time.Duration
	ReconcileCron     string
	DashboardCacheTTL time.Duration
}

// Location falls back to UTC when the configured zone is unknown.
func (c LedgerConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type ReminderConfig struct {
	Cron             string
	MinBalance       decimal.Decimal
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string
}

func (c ReminderConfig) Enabled() bool {
	return c.Cron != "" && c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFromNumber != ""
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Redis       RedisConfig
	Ledger      LedgerConfig
	Reminders   ReminderConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("LEDGER_REPRICE_HISTORY", true)
	v.SetDefault("LEDGER_TIMEZONE", "America/Caracas")
	v.SetDefault("LEDGER_RECONCILE_CRON", "0 3 * * *")

	_ = v.ReadInConfig()

	defaultPrice, err := parseDecimal(v.GetString("LEDGER_DEFAULT_PRICE"), "2.50")
	if err != nil {
		return nil, fmt.Errorf("LEDGER_DEFAULT_PRICE: %w", err)
	}
	minBalance, err := parseDecimal(v.GetString("REMINDER_MIN_BALANCE"), "10.00")
	if err != nil {
		return nil, fmt.Errorf("REMINDER_MIN_BALANCE: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		Ledger: LedgerConfig{
			DefaultPrice:      defaultPrice,
			RepriceHistory:    v.GetBool("LEDGER_REPRICE_HISTORY"),
			Timezone:          v.GetString("LEDGER_TIMEZONE"),
			LockTTL:           v.GetDuration("LEDGER_LOCK_TTL"),
			ReconcileCron:     strings.TrimSpace(v.GetString("LEDGER_RECONCILE_CRON")),
			DashboardCacheTTL: v.GetDuration("DASHBOARD_CACHE_TTL"),
		},
		Reminders: ReminderConfig{
			Cron:             strings.TrimSpace(v.GetString("REMINDER_CRON")),
			MinBalance:       minBalance,
			TwilioAccountSID: v.GetString("TWILIO_ACCOUNT_SID"),
			TwilioAuthToken:  v.GetString("TWILIO_AUTH_TOKEN"),
			TwilioFromNumber: v.GetString("TWILIO_FROM_NUMBER"),
		},
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 7090
	}
	if len(cfg.HTTP.AllowedOrigins) == 0 {
		cfg.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if cfg.Ledger.LockTTL <= 0 {
		cfg.Ledger.LockTTL = 10 * time.Second
	}
	if cfg.Ledger.DashboardCacheTTL <= 0 {
		cfg.Ledger.DashboardCacheTTL = 30 * time.Second
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.DB.DSN == "" {
		return fmt.Errorf("DB_DSN is required")
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.Ledger.Timezone); err != nil {
		return fmt.Errorf("LEDGER_TIMEZONE: %w", err)
	}
	if cfg.Ledger.DefaultPrice.IsNegative() {
		return fmt.Errorf("LEDGER_DEFAULT_PRICE must not be negative")
	}
	if cfg.Ledger.ReconcileCron != "" {
		if _, err := cron.ParseStandard(cfg.Ledger.ReconcileCron); err != nil {
			return fmt.Errorf("LEDGER_RECONCILE_CRON: %w", err)
		}
	}
	if cfg.Reminders.Cron != "" {
		if _, err := cron.ParseStandard(cfg.Reminders.Cron); err != nil {
			return fmt.Errorf("REMINDER_CRON: %w", err)
		}
	}
	return nil
}

func parseDecimal(raw, fallback string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	return decimal.NewFromString(raw)
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
