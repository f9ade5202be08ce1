package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Risk      RiskConfig
	Order     OrderConfig
	Feed      FeedConfig
	Fx        FxConfig
	Database  DatabaseConfig
	Exchanges map[string]ExchangeConfig
}

// ArbitrageConfig defines thresholds and sizing for the trading loop.
type ArbitrageConfig struct {
	Symbol            string  `mapstructure:"symbol"`
	CommonCurrency    string  `mapstructure:"common_currency"`
	EntryThresholdBps float64 `mapstructure:"entry_threshold_bps"`
	TakeProfitBps     float64 `mapstructure:"take_profit_bps"`
	MaxHoldSeconds    int     `mapstructure:"max_hold_seconds"`
	TradeNotional     float64 `mapstructure:"trade_notional"`
	LoopIntervalMS    int     `mapstructure:"loop_interval_ms"`
	CooldownSeconds   int     `mapstructure:"cooldown_seconds"`
}

// MaxHold returns the maximum hold duration for an open round trip.
func (c ArbitrageConfig) MaxHold() time.Duration {
	return time.Duration(c.MaxHoldSeconds) * time.Second
}

// Cooldown returns the pause between round trips.
func (c ArbitrageConfig) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// LoopInterval returns the engine loop tick interval.
func (c ArbitrageConfig) LoopInterval() time.Duration {
	return time.Duration(c.LoopIntervalMS) * time.Millisecond
}

// RiskConfig defines the pre-trade safety gates.
type RiskConfig struct {
	Mode                   string  `mapstructure:"mode"`
	ExposureCap            float64 `mapstructure:"exposure_cap"`
	BalanceMarginPercent   float64 `mapstructure:"balance_margin_percent"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
}

// OrderConfig defines order lifecycle timing.
type OrderConfig struct {
	FillTimeoutSeconds  int `mapstructure:"fill_timeout_seconds"`
	SimulatedLatencyMS  int `mapstructure:"simulated_latency_ms"`
	SnapshotRetries     int `mapstructure:"snapshot_retries"`
	PlacementTimeoutSec int `mapstructure:"placement_timeout_seconds"`
}

// FillTimeout returns how long a leg may stay unfilled before cancel.
func (c OrderConfig) FillTimeout() time.Duration {
	return time.Duration(c.FillTimeoutSeconds) * time.Second
}

// SimulatedLatency returns the artificial fill delay for paper trading.
func (c OrderConfig) SimulatedLatency() time.Duration {
	return time.Duration(c.SimulatedLatencyMS) * time.Millisecond
}

// PlacementTimeout bounds a single place/cancel/query call.
func (c OrderConfig) PlacementTimeout() time.Duration {
	return time.Duration(c.PlacementTimeoutSec) * time.Second
}

// FeedConfig defines reconnect and parse-failure behaviour for feed handlers.
type FeedConfig struct {
	BackoffBaseMS       int `mapstructure:"backoff_base_ms"`
	BackoffCapMS        int `mapstructure:"backoff_cap_ms"`
	MalformedLimit      int `mapstructure:"malformed_limit"`
	HealthyResetSeconds int `mapstructure:"healthy_reset_seconds"`
}

// BackoffBase returns the first reconnect delay.
func (c FeedConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

// BackoffCap returns the maximum reconnect delay.
func (c FeedConfig) BackoffCap() time.Duration {
	return time.Duration(c.BackoffCapMS) * time.Millisecond
}

// HealthyReset returns how long a connection must stay up before the
// reconnect attempt counter resets.
func (c FeedConfig) HealthyReset() time.Duration {
	return time.Duration(c.HealthyResetSeconds) * time.Second
}

// FxConfig defines the reference currency pair and its staleness bound.
type FxConfig struct {
	Pair          string `mapstructure:"pair"`
	MaxAgeSeconds int    `mapstructure:"max_age_seconds"`
}

// MaxAge returns the maximum accepted fx rate age.
func (c FxConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeSeconds) * time.Second
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string `mapstructure:"dbname"`
}

// URL builds the postgres connection string.
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", c.User, c.Password, c.Host, c.Port, c.DBName)
}

// ExchangeConfig defines settings for a specific exchange.
type ExchangeConfig struct {
	QuoteCurrency string  `mapstructure:"quote_currency"`
	TakerFeeBps   float64 `mapstructure:"taker_fee_bps"`
	SlippageBps   float64 `mapstructure:"slippage_bps"`
	APIKey        string  `mapstructure:"api_key"`
	APISecret     string  `mapstructure:"api_secret"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	err = config.Validate()
	return
}

// Validate rejects configurations that would make the safety gates
// meaningless.
func (c Config) Validate() error {
	if c.Arbitrage.EntryThresholdBps <= 0 {
		return fmt.Errorf("arbitrage.entry_threshold_bps must be positive, got %v", c.Arbitrage.EntryThresholdBps)
	}
	if c.Arbitrage.TradeNotional <= 0 {
		return fmt.Errorf("arbitrage.trade_notional must be positive, got %v", c.Arbitrage.TradeNotional)
	}
	if c.Arbitrage.MaxHoldSeconds <= 0 {
		return fmt.Errorf("arbitrage.max_hold_seconds must be positive, got %d", c.Arbitrage.MaxHoldSeconds)
	}
	if c.Fx.MaxAgeSeconds <= 0 {
		return fmt.Errorf("fx.max_age_seconds must be positive, got %d", c.Fx.MaxAgeSeconds)
	}
	if c.Risk.ExposureCap <= 0 {
		return fmt.Errorf("risk.exposure_cap must be positive, got %v", c.Risk.ExposureCap)
	}
	if c.Risk.MaxConsecutiveFailures <= 0 {
		return fmt.Errorf("risk.max_consecutive_failures must be positive, got %d", c.Risk.MaxConsecutiveFailures)
	}
	if len(c.Exchanges) < 2 {
		return fmt.Errorf("at least two exchanges required, got %d", len(c.Exchanges))
	}
	for name, ex := range c.Exchanges {
		if ex.QuoteCurrency == "" {
			return fmt.Errorf("exchange %s: quote_currency is required", name)
		}
	}
	return nil
}
