package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// LedgerConfig tunes the settlement engine.
type LedgerConfig struct {
	// CommissionRate is the platform share of every order, e.g. 0.05.
	CommissionRate decimal.Decimal
	// PlatformAccountID receives the commission leg when set. When empty
	// commission is retained as unaccounted platform margin.
	PlatformAccountID string
	MaxTxAttempts     int
	RetryBaseDelay    time.Duration
}

// NotifierConfig selects where order and escrow events are published.
type NotifierConfig struct {
	Driver       string // "redis", "kafka", "log" or "none"
	RedisList    string
	KafkaBrokers []string
	KafkaTopic   string
	Timeout      time.Duration
}

func setLedgerDefaults(v *viper.Viper) {
	v.SetDefault("ledger.commission_rate", "0.05")
	v.SetDefault("ledger.platform_account_id", "")
	v.SetDefault("ledger.max_tx_attempts", 5)
	v.SetDefault("ledger.retry_base_delay", 10*time.Millisecond)
}

func setNotifierDefaults(v *viper.Viper) {
	v.SetDefault("notifier.driver", "log")
	v.SetDefault("notifier.redis_list", "marketplace_events")
	v.SetDefault("notifier.kafka_brokers", []string{"localhost:9092"})
	v.SetDefault("notifier.kafka_topic", "marketplace.events")
	v.SetDefault("notifier.timeout", 2*time.Second)
}

func loadLedgerConfig(v *viper.Viper) (LedgerConfig, error) {
	raw := v.GetString("ledger.commission_rate")
	rate, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return LedgerConfig{}, fmt.Errorf("ledger.commission_rate %q is not a decimal: %w", raw, err)
	}
	return LedgerConfig{
		CommissionRate:    rate,
		PlatformAccountID: v.GetString("ledger.platform_account_id"),
		MaxTxAttempts:     v.GetInt("ledger.max_tx_attempts"),
		RetryBaseDelay:    v.GetDuration("ledger.retry_base_delay"),
	}, nil
}

func loadNotifierConfig(v *viper.Viper) NotifierConfig {
	return NotifierConfig{
		Driver:       v.GetString("notifier.driver"),
		RedisList:    v.GetString("notifier.redis_list"),
		KafkaBrokers: v.GetStringSlice("notifier.kafka_brokers"),
		KafkaTopic:   v.GetString("notifier.kafka_topic"),
		Timeout:      v.GetDuration("notifier.timeout"),
	}
}

// Validate checks ledger invariants that must hold before serving.
func (c LedgerConfig) Validate() error {
	if c.CommissionRate.IsNegative() || c.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("commission rate must be in [0, 1), got %s", c.CommissionRate)
	}
	if c.MaxTxAttempts < 1 {
		return fmt.Errorf("max tx attempts must be at least 1, got %d", c.MaxTxAttempts)
	}
	return nil
}
