package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	Storage     string `mapstructure:"STORAGE"`
	DBDSN       string `mapstructure:"DB_DSN"`

	RedisAddr     string `mapstructure:"REDIS_ADDR"`
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic   string   `mapstructure:"KAFKA_TOPIC"`

	TelegramToken string `mapstructure:"TELEGRAM_TOKEN"`

	StripeSecretKey    string `mapstructure:"STRIPE_SECRET_KEY"`
	PayPalAPIBaseURL   string `mapstructure:"PAYPAL_API_BASE_URL"`
	PayPalClientID     string `mapstructure:"PAYPAL_CLIENT_ID"`
	PayPalClientSecret string `mapstructure:"PAYPAL_CLIENT_SECRET"`

	WalletCurrency string          `mapstructure:"WALLET_CURRENCY"`
	NGNPerUSDRaw   string          `mapstructure:"NGN_PER_USD"`
	NGNPerUSD      decimal.Decimal `mapstructure:"-"`

	CancellationLeadTime   time.Duration `mapstructure:"CANCELLATION_LEAD_TIME"`
	GatewayTimeout         time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	RequestTimeout         time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	IdempotencyTTL         time.Duration `mapstructure:"IDEMPOTENCY_TTL"`
	ModificationExpirySpec string        `mapstructure:"MODIFICATION_EXPIRY_SPEC"`
	RateLimitPerMinute     int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`

	// OperatorToken открывает /api/v1/operator. Пустой токен отключает эти маршруты
	OperatorToken string `mapstructure:"OPERATOR_TOKEN"`
}

var defaults = map[string]any{
	"ENV":                      "development",
	"HTTP_ADDR":                ":8080",
	"STORAGE":                  StoragePostgres,
	"DB_DSN":                   "",
	"REDIS_ADDR":               "",
	"REDIS_PASSWORD":           "",
	"REDIS_DB":                 0,
	"KAFKA_BROKERS":            []string{},
	"KAFKA_TOPIC":              "booking-events",
	"TELEGRAM_TOKEN":           "",
	"STRIPE_SECRET_KEY":        "",
	"PAYPAL_API_BASE_URL":      "https://api-m.sandbox.paypal.com",
	"PAYPAL_CLIENT_ID":         "",
	"PAYPAL_CLIENT_SECRET":     "",
	"WALLET_CURRENCY":          "NGN",
	"NGN_PER_USD":              "1500",
	"CANCELLATION_LEAD_TIME":   "12h",
	"GATEWAY_TIMEOUT":          "30s",
	"REQUEST_TIMEOUT":          "90s",
	"IDEMPOTENCY_TTL":          "24h",
	"MODIFICATION_EXPIRY_SPEC": "@every 1h",
	"RATE_LIMIT_PER_MINUTE":    60,
	"OPERATOR_TOKEN":           "",
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Printf("Config loaded (env=%s, storage=%s)\n", cfg.Environment, cfg.Storage)

	return &cfg, nil
}

func (c *Config) validate() error {
	c.Storage = strings.ToLower(c.Storage)
	switch c.Storage {
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE %q", c.Storage)
	}

	c.WalletCurrency = strings.ToUpper(c.WalletCurrency)
	if c.WalletCurrency != "NGN" && c.WalletCurrency != "USD" {
		return fmt.Errorf("unsupported WALLET_CURRENCY %q", c.WalletCurrency)
	}

	rate, err := decimal.NewFromString(c.NGNPerUSDRaw)
	if err != nil || !rate.IsPositive() {
		return fmt.Errorf("NGN_PER_USD must be a positive number, got %q", c.NGNPerUSDRaw)
	}
	c.NGNPerUSD = rate

	if c.CancellationLeadTime < 0 {
		return fmt.Errorf("CANCELLATION_LEAD_TIME must not be negative")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	return nil
}

func (c *Config) GetDBDSN() string {
	return c.DBDSN
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
