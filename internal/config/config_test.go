package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE", "memory")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, "NGN", cfg.WalletCurrency)
	assert.True(t, decimal.NewFromInt(1500).Equal(cfg.NGNPerUSD))
	assert.Equal(t, 12*time.Hour, cfg.CancellationLeadTime)
	assert.Equal(t, 30*time.Second, cfg.GatewayTimeout)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)
	assert.Equal(t, "@every 1h", cfg.ModificationExpirySpec)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.OperatorToken)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	t.Setenv("DB_DSN", "postgres://localhost/tutor")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("CANCELLATION_LEAD_TIME", "6h")
	t.Setenv("WALLET_CURRENCY", "usd")
	t.Setenv("OPERATOR_TOKEN", "ops-secret")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/tutor", cfg.GetDBDSN())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 6*time.Hour, cfg.CancellationLeadTime)
	assert.Equal(t, "USD", cfg.WalletCurrency)
	assert.Equal(t, "ops-secret", cfg.OperatorToken)
}

func TestLoadRequiresDSNForPostgres(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	t.Setenv("DB_DSN", "")

	_, err := load(viper.New())
	assert.ErrorContains(t, err, "DB_DSN")
}

func TestLoadRejectsBadRate(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("NGN_PER_USD", "zero")

	_, err := load(viper.New())
	assert.ErrorContains(t, err, "NGN_PER_USD")
}
