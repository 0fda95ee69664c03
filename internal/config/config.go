package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tinkoff-merchant/internal/logger"
)

// Gateway defaults, overridable through TINKOFF_* variables.
const (
	DefaultInitURL     = "https://securepay.tinkoff.ru/v2/Init"
	DefaultGetStateURL = "https://securepay.tinkoff.ru/v2/GetState"
	DefaultCancelURL   = "https://securepay.tinkoff.ru/v2/Cancel"
	DefaultTaxation    = "usn_income"
	DefaultItemTax     = "none"
)

type Config struct {
	AppEnv  string
	AppPort string

	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBPort     string

	JWTSecret   string
	InternalKey string

	RedisAddr string
	RedisPass string
	RedisDB   int

	StatusSyncSchedule string

	Merchant Merchant
}

// URLs holds the gateway endpoints.
type URLs struct {
	Init     string
	GetState string
	Cancel   string
}

// Merchant is the gateway-facing part of the configuration.
type Merchant struct {
	TerminalKey string
	SecretKey   string
	Taxation    string
	ItemTax     string
	URLs        URLs
	Timeout     time.Duration
}

// HasKeys reports whether both credentials are present.
func (m Merchant) HasKeys() bool {
	return m.TerminalKey != "" && m.SecretKey != ""
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	app := viper.New()
	app.AutomaticEnv()
	app.SetDefault("APP_ENV", "development")
	app.SetDefault("APP_PORT", "8080")
	app.SetDefault("DB_PORT", "5432")
	app.SetDefault("REDIS_DB", 0)
	app.SetDefault("STATUS_SYNC_SCHEDULE", "@every 5m")
	app.SetDefault("HTTP_TIMEOUT", "15s")

	cfg := &Config{
		AppEnv:             app.GetString("APP_ENV"),
		AppPort:            app.GetString("APP_PORT"),
		DBHost:             app.GetString("DB_HOST"),
		DBUser:             app.GetString("DB_USER"),
		DBPassword:         app.GetString("DB_PASSWORD"),
		DBName:             app.GetString("DB_NAME"),
		DBPort:             app.GetString("DB_PORT"),
		JWTSecret:          app.GetString("JWT_SECRET"),
		InternalKey:        app.GetString("INTERNAL_SECRET_KEY"),
		RedisAddr:          app.GetString("REDIS_ADDR"),
		RedisPass:          app.GetString("REDIS_PASS"),
		RedisDB:            app.GetInt("REDIS_DB"),
		StatusSyncSchedule: app.GetString("STATUS_SYNC_SCHEDULE"),
		Merchant:           loadMerchant(app.GetDuration("HTTP_TIMEOUT")),
	}

	if cfg.DBHost == "" {
		logger.L().Warn("DB_HOST is not set")
	}
	if !cfg.Merchant.HasKeys() {
		logger.L().Warn("merchant keys are not configured, signed calls need explicit keys",
			zap.Bool("terminal_key_set", cfg.Merchant.TerminalKey != ""),
			zap.Bool("secret_key_set", cfg.Merchant.SecretKey != ""),
		)
	}

	return cfg
}

// loadMerchant reads the gateway options (URLS.INIT, TAXATION, ...) from
// TINKOFF_-prefixed variables, e.g. TINKOFF_URLS_GET_STATE.
func loadMerchant(timeout time.Duration) Merchant {
	v := viper.New()
	v.SetEnvPrefix("TINKOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("URLS.INIT", DefaultInitURL)
	v.SetDefault("URLS.GET_STATE", DefaultGetStateURL)
	v.SetDefault("URLS.CANCEL", DefaultCancelURL)
	v.SetDefault("TAXATION", DefaultTaxation)
	v.SetDefault("ITEM_TAX", DefaultItemTax)
	v.SetDefault("TERMINAL_KEY", "")
	v.SetDefault("SECRET_KEY", "")

	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return Merchant{
		TerminalKey: v.GetString("TERMINAL_KEY"),
		SecretKey:   v.GetString("SECRET_KEY"),
		Taxation:    v.GetString("TAXATION"),
		ItemTax:     v.GetString("ITEM_TAX"),
		URLs: URLs{
			Init:     v.GetString("URLS.INIT"),
			GetState: v.GetString("URLS.GET_STATE"),
			Cancel:   v.GetString("URLS.CANCEL"),
		},
		Timeout: timeout,
	}
}
