package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"basket-trading/internal/markethours"
	"basket-trading/internal/rebalance"
	"basket-trading/internal/sizing"
)

func mapEnv(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(mapEnv(nil))
	require.NoError(t, err)
	assert.Equal(t, "zerodha", cfg.Broker)
	assert.Equal(t, "data/basket.db", cfg.SQLitePath)
	assert.Equal(t, 5.0, cfg.SlippageBps)
	assert.Empty(t, cfg.RedisAddr)
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(mapEnv(map[string]string{
		"BROKER":           "AngelOne",
		"REDIS_ADDR":       "localhost:6379",
		"REDIS_DB":         "2",
		"CREDENTIALS_FILE": "creds.enc",
		"CREDENTIALS_KEY":  "k",
	}))
	require.NoError(t, err)
	assert.Equal(t, "angelone", cfg.Broker)
	assert.Equal(t, 2, cfg.RedisDB)
	assert.Equal(t, "creds.enc", cfg.CredentialsFile)
}

func TestFromEnv_Errors(t *testing.T) {
	_, err := FromEnv(mapEnv(map[string]string{"REDIS_DB": "x"}))
	assert.ErrorContains(t, err, "REDIS_DB")

	_, err = FromEnv(mapEnv(map[string]string{"CREDENTIALS_FILE": "creds.enc"}))
	assert.ErrorContains(t, err, "must be set together")

	_, err = FromEnv(mapEnv(map[string]string{"TELEGRAM_BOT_TOKEN": "t"}))
	assert.ErrorContains(t, err, "TELEGRAM_CHAT_ID")

	_, err = FromEnv(mapEnv(map[string]string{"PAPER_SLIPPAGE_BPS": "-1"}))
	assert.Error(t, err)
}

func TestLoadPolicy(t *testing.T) {
	pf, err := LoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, rebalance.DefaultThreshold, pf.Threshold)
	assert.Equal(t, sizing.DefaultLimits, pf.Limits)

	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rebalance_threshold: 3
orders_per_second: 5
orders:
  product: CNC
risk:
  max_order_value: 200000
  check_funds: true
holidays: ["2026-10-12"]
baskets:
  it:
    - {symbol: TCS, exchange: NSE, weight: 60}
    - {symbol: INFY, exchange: NSE, weight: 40}
`), 0o600))

	pf, err = LoadPolicy(path)
	require.NoError(t, err)
	assert.Equal(t, 3.0, pf.Threshold)
	assert.Equal(t, 5, pf.OrdersPerSecond)
	assert.Equal(t, "CNC", pf.Orders.Product)
	assert.Equal(t, 200000.0, pf.Risk.MaxOrderValue)
	assert.True(t, pf.Risk.CheckFunds)
	assert.Equal(t, sizing.DefaultLimits, pf.Limits)

	it, err := pf.Basket("it")
	require.NoError(t, err)
	require.Len(t, it, 2)
	assert.Equal(t, "TCS", it[0].Symbol)
	assert.Equal(t, 40.0, it[1].Weight)
	_, err = pf.Basket("missing")
	assert.Error(t, err)

	mon := time.Date(2026, time.October, 12, 10, 0, 0, 0, markethours.IST)
	require.True(t, markethours.IsMarketOpen(mon))
	require.NoError(t, pf.ApplyHolidays())
	assert.False(t, markethours.IsMarketOpen(mon))
}

func TestLoadPolicy_BadHoliday(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("holidays: [\"12/10/2026\"]\n"), 0o600))
	_, err := LoadPolicy(path)
	assert.ErrorContains(t, err, "policy holiday")
}
