// Package config loads process settings from the environment (optionally
// seeded from a .env file) and the trading policy from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"basket-trading/internal/markethours"
	"basket-trading/internal/model"
	"basket-trading/internal/portfolio"
)

// Config holds process configuration loaded from environment variables.
type Config struct {
	Broker   string // zerodha | angelone
	LogLevel string

	// Storage
	SQLitePath    string
	RedisAddr     string // empty disables the Redis snapshot and publisher
	RedisPassword string
	RedisDB       int
	MetricsAddr   string // empty disables the metrics server

	// Credentials: an encrypted file when both are set, env vars otherwise.
	CredentialsFile string
	CredentialsKey  string

	PolicyPath  string
	SlippageBps float64 // paper fills for --dry-run

	// Alerts
	WebhookURL     string
	TelegramToken  string
	TelegramChatID string
}

// Load reads a .env file if present, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := env(getenv)
	redisDB, err := e.int("REDIS_DB", 0)
	if err != nil {
		return nil, err
	}
	slip, err := e.float("PAPER_SLIPPAGE_BPS", 5)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Broker:          strings.ToLower(e.get("BROKER", "zerodha")),
		LogLevel:        e.get("LOG_LEVEL", "info"),
		SQLitePath:      e.get("SQLITE_PATH", "data/basket.db"),
		RedisAddr:       e.get("REDIS_ADDR", ""),
		RedisPassword:   e.get("REDIS_PASSWORD", ""),
		RedisDB:         redisDB,
		MetricsAddr:     e.get("METRICS_ADDR", ""),
		CredentialsFile: e.get("CREDENTIALS_FILE", ""),
		CredentialsKey:  e.get("CREDENTIALS_KEY", ""),
		PolicyPath:      e.get("POLICY_PATH", ""),
		SlippageBps:     slip,
		WebhookURL:      e.get("ALERT_WEBHOOK_URL", ""),
		TelegramToken:   e.get("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:  e.get("TELEGRAM_CHAT_ID", ""),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("SQLITE_PATH is required")
	}
	if (c.CredentialsFile == "") != (c.CredentialsKey == "") {
		return fmt.Errorf("CREDENTIALS_FILE and CREDENTIALS_KEY must be set together")
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == "") {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	if c.SlippageBps < 0 {
		return fmt.Errorf("PAPER_SLIPPAGE_BPS must be >= 0")
	}
	return nil
}

type env func(string) string

func (e env) get(key, fallback string) string {
	v := strings.TrimSpace(e(key))
	if v == "" {
		return fallback
	}
	return v
}

func (e env) int(key string, fallback int) (int, error) {
	v := e.get(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func (e env) float(key string, fallback float64) (float64, error) {
	v := e.get(key, "")
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// PolicyFile is the YAML document at POLICY_PATH:
//
//	rebalance_threshold: 5
//	orders_per_second: 10
//	basket_limits: {min_stocks: 1, max_stocks: 50}
//	orders: {product: CNC}
//	risk: {max_order_value: 200000, check_funds: true}
//	holidays: ["2026-11-09"]
//	baskets:
//	  it:
//	    - {symbol: TCS, exchange: NSE, weight: 50}
//	    - {symbol: INFY, exchange: NSE, weight: 50}
type PolicyFile struct {
	portfolio.Policy `yaml:",inline"`
	Holidays         []string                       `yaml:"holidays"`
	Baskets          map[string][]model.BasketStock `yaml:"baskets"`
}

// LoadPolicy reads path, filling unset policy fields from DefaultPolicy. An
// empty path returns the defaults.
func LoadPolicy(path string) (*PolicyFile, error) {
	pf := &PolicyFile{Policy: portfolio.DefaultPolicy()}
	if path == "" {
		return pf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, pf); err != nil {
		return nil, fmt.Errorf("parse policy %s: %w", path, err)
	}
	if pf.Threshold < 0 {
		return nil, fmt.Errorf("policy: rebalance_threshold must be >= 0")
	}
	if _, err := pf.HolidayDates(); err != nil {
		return nil, err
	}
	return pf, nil
}

// HolidayDates parses Holidays as IST dates.
func (p *PolicyFile) HolidayDates() ([]time.Time, error) {
	out := make([]time.Time, 0, len(p.Holidays))
	for _, h := range p.Holidays {
		d, err := markethours.ParseIST("2006-01-02", h)
		if err != nil {
			return nil, fmt.Errorf("policy holiday %q: %w", h, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// ApplyHolidays registers the extra holidays with markethours.
func (p *PolicyFile) ApplyHolidays() error {
	days, err := p.HolidayDates()
	if err != nil {
		return err
	}
	markethours.AddHolidays(days...)
	return nil
}

// Basket returns the named basket.
func (p *PolicyFile) Basket(name string) ([]model.BasketStock, error) {
	b, ok := p.Baskets[name]
	if !ok {
		return nil, fmt.Errorf("no basket %q in policy", name)
	}
	return b, nil
}
