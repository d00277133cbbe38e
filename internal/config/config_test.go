package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, []string{"order_id"}, cfg.Verification.PublicStrategies)
	assert.Equal(t, 10*time.Minute, cfg.Verification.RateLimitWindow)
	assert.Equal(t, 5, cfg.Verification.RateLimitMax)
	assert.Equal(t, 24*time.Hour, cfg.Verification.PendingLookback)
	assert.Equal(t, 48*time.Hour, cfg.Verification.PendingListWindow)
	assert.Equal(t, 10*time.Minute, cfg.Verification.TxMatchWindow)
	assert.Equal(t, 5*time.Minute, cfg.Verification.TimestampWindow)
	assert.Equal(t, 10*time.Second, cfg.Midtrans.Timeout)
	assert.Equal(t, int32(6), cfg.Chain.TokenDecimals)
	assert.True(t, cfg.Billing.PriceUsdc.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Billing.FeeTolerance.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 365*24*time.Hour, cfg.Billing.Period)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("VERIFY_PUBLIC_STRATEGIES", " order_id, tx_hash ,,timestamp ")
	t.Setenv("VERIFY_RATE_LIMIT_MAX", "3")
	t.Setenv("SUBSCRIPTION_PRICE_USDC", "12.75")
	t.Setenv("VERIFY_TX_MATCH_WINDOW", "90s")
	t.Setenv("MIDTRANS_IS_PRODUCTION", "true")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")

	cfg := Load()

	assert.Equal(t, []string{"order_id", "tx_hash", "timestamp"}, cfg.Verification.PublicStrategies)
	assert.Equal(t, 3, cfg.Verification.RateLimitMax)
	assert.True(t, cfg.Billing.PriceUsdc.Equal(decimal.RequireFromString("12.75")))
	assert.Equal(t, 90*time.Second, cfg.Verification.TxMatchWindow)
	assert.True(t, cfg.Midtrans.IsProduction)
	assert.InDelta(t, 0.25, cfg.Tracing.SampleRatio, 1e-9)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("VERIFY_RATE_LIMIT_MAX", "lots")
	t.Setenv("SUBSCRIPTION_PRICE_USDC", "ten")
	t.Setenv("VERIFY_LOCK_TTL", "soon")
	t.Setenv("VERIFY_PUBLIC_STRATEGIES", " , ")

	cfg := Load()

	assert.Equal(t, 5, cfg.Verification.RateLimitMax)
	assert.True(t, cfg.Billing.PriceUsdc.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, 30*time.Second, cfg.Verification.LockTTL)
	assert.Equal(t, []string{"order_id"}, cfg.Verification.PublicStrategies)
}
