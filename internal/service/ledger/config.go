package ledger

import (
	"time"

	"github.com/echohealth/echo_backend/config"
)

type Config struct {
	MinWithdrawal int64
	PayoutTimeout time.Duration
	DefaultLimit  int
	MaxLimit      int
	Currency      string
}

func DefaultConfig() Config {
	return Config{
		MinWithdrawal: 200,
		PayoutTimeout: 30 * time.Second,
		DefaultLimit:  20,
		MaxLimit:      100,
		Currency:      "KES",
	}
}

// FromCentralConfig converts config.WalletConfig, keeping defaults for unset values.
func FromCentralConfig(c config.WalletConfig) Config {
	cfg := DefaultConfig()
	if c.MinWithdrawal > 0 {
		cfg.MinWithdrawal = c.MinWithdrawal
	}
	if c.PayoutTimeoutSeconds > 0 {
		cfg.PayoutTimeout = c.PayoutTimeout()
	}
	if c.DefaultLedgerLimit > 0 {
		cfg.DefaultLimit = c.DefaultLedgerLimit
	}
	if c.MaxLedgerLimit > 0 {
		cfg.MaxLimit = c.MaxLedgerLimit
	}
	if c.Currency != "" {
		cfg.Currency = c.Currency
	}
	return cfg
}

func (c Config) limit(n int) int {
	if n <= 0 {
		return c.DefaultLimit
	}
	if n > c.MaxLimit {
		return c.MaxLimit
	}
	return n
}
