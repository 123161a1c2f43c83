// Package config handles configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
	"synthbot/internal/broker/dhan"
	"synthbot/internal/contracts"
	"synthbot/internal/engine"
	"synthbot/internal/execution"
	"synthbot/internal/metrics"
	"synthbot/internal/risk"
	"synthbot/internal/server"
	"synthbot/internal/types"
)

// Config represents the full application configuration.
type Config struct {
	Market      MarketConfig      `yaml:"market"`
	Broker      BrokerConfig      `yaml:"broker"`
	Persistence PersistenceConfig `yaml:"persistence"`
	Liquidity   LiquidityConfig   `yaml:"liquidity"`
	Margin      MarginConfig      `yaml:"margin"`
	Execution   ExecutionConfig   `yaml:"execution"`
	Rollover    RolloverConfig    `yaml:"rollover"`
	Server      ServerConfig      `yaml:"server"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Alerting    AlertingConfig    `yaml:"alerting"`
	Contracts   []ContractConfig  `yaml:"contracts"`
}

// MarketConfig holds instrument settings.
type MarketConfig struct {
	Underlying string `yaml:"underlying"`
	LotSize    int    `yaml:"lot_size"`
}

// BrokerConfig holds broker connection settings.
type BrokerConfig struct {
	Type                 string `yaml:"type"` // dhan | paper
	BaseURL              string `yaml:"base_url"`
	ClientID             string `yaml:"client_id"`
	AccessToken          string `yaml:"access_token"`
	RequestTimeoutSec    int    `yaml:"request_timeout_sec"`
	QuoteTimeoutSec      int    `yaml:"quote_timeout_sec"`
	MaxRequestsPerSecond int    `yaml:"max_requests_per_second"`
}

// PersistenceConfig holds position store settings.
type PersistenceConfig struct {
	Backend string `yaml:"backend"` // file | sqlite
	Path    string `yaml:"path"`
}

// LiquidityConfig holds liquidity gate thresholds.
type LiquidityConfig struct {
	MinQtyMultiplier int     `yaml:"min_qty_multiplier"`
	MaxSpreadPoints  float64 `yaml:"max_spread_points"`
}

// MarginConfig holds margin gate settings.
type MarginConfig struct {
	Enabled bool `yaml:"enabled"`
}

// ExecutionConfig holds executor timing settings.
type ExecutionConfig struct {
	LiquidityRetryBackoffSec int `yaml:"liquidity_retry_backoff_sec"`
	PollIntervalSec          int `yaml:"poll_interval_sec"`
	MaxFillWaitSec           int `yaml:"max_fill_wait_sec"`
	QuoteCacheTTLSec         int `yaml:"quote_cache_ttl_sec"`
}

// RolloverConfig holds rollover scheduling settings.
type RolloverConfig struct {
	Cutoff        string `yaml:"cutoff"` // HH:MM in IST
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// ServerConfig holds signal server settings.
type ServerConfig struct {
	Addr       string `yaml:"addr"`
	Workers    int    `yaml:"workers"`
	QueueDepth int    `yaml:"queue_depth"`
}

// MetricsConfig holds metrics server settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// AlertingConfig holds alerting settings.
type AlertingConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig holds a single alert channel configuration.
type ChannelConfig struct {
	Type     string `yaml:"type"` // console | telegram
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// ContractConfig declares one tradable synthetic pair for the resolver.
type ContractConfig struct {
	Underlying     string  `yaml:"underlying"`
	Expiry         string  `yaml:"expiry"` // YYYY-MM-DD
	Strike         float64 `yaml:"strike"`
	CallSecurityID string  `yaml:"call_security_id"`
	PutSecurityID  string  `yaml:"put_security_id"`
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes loads configuration from YAML bytes. Environment variables
// in the file are expanded before parsing.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Market.Underlying == "" {
		c.Market.Underlying = "NIFTY"
	}
	if c.Market.LotSize == 0 {
		c.Market.LotSize = types.DefaultLotSize
	}
	if c.Broker.Type == "" {
		c.Broker.Type = "paper"
	}
	if c.Persistence.Backend == "" {
		c.Persistence.Backend = "file"
	}
	if c.Persistence.Path == "" {
		c.Persistence.Path = "positions.json"
	}
	if c.Liquidity.MinQtyMultiplier == 0 {
		c.Liquidity.MinQtyMultiplier = 1
	}
	if c.Liquidity.MaxSpreadPoints == 0 {
		c.Liquidity.MaxSpreadPoints = 5
	}
	if c.Execution.LiquidityRetryBackoffSec == 0 {
		c.Execution.LiquidityRetryBackoffSec = 5
	}
	if c.Execution.PollIntervalSec == 0 {
		c.Execution.PollIntervalSec = 1
	}
	if c.Execution.MaxFillWaitSec == 0 {
		c.Execution.MaxFillWaitSec = 20
	}
	if c.Execution.QuoteCacheTTLSec == 0 {
		c.Execution.QuoteCacheTTLSec = 3
	}
	if c.Rollover.Cutoff == "" {
		c.Rollover.Cutoff = "15:00"
	}
	if c.Rollover.MaxConcurrent == 0 {
		c.Rollover.MaxConcurrent = 4
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.Workers == 0 {
		c.Server.Workers = 4
	}
	if c.Server.QueueDepth == 0 {
		c.Server.QueueDepth = 16
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = 9090
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	switch c.Broker.Type {
	case "dhan":
		if c.Broker.ClientID == "" {
			errs = append(errs, "broker.client_id is required for dhan")
		}
		if c.Broker.AccessToken == "" {
			errs = append(errs, "broker.access_token is required for dhan")
		}
	case "paper":
	default:
		errs = append(errs, fmt.Sprintf("broker.type '%s' must be 'dhan' or 'paper'", c.Broker.Type))
	}

	switch c.Persistence.Backend {
	case "file", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("persistence.backend '%s' must be 'file' or 'sqlite'", c.Persistence.Backend))
	}

	if c.Market.LotSize <= 0 {
		errs = append(errs, "market.lot_size must be positive")
	}
	if c.Liquidity.MinQtyMultiplier <= 0 {
		errs = append(errs, "liquidity.min_qty_multiplier must be positive")
	}
	if c.Liquidity.MaxSpreadPoints <= 0 {
		errs = append(errs, "liquidity.max_spread_points must be positive")
	}
	if _, _, err := parseCutoff(c.Rollover.Cutoff); err != nil {
		errs = append(errs, fmt.Sprintf("rollover.cutoff '%s' must be HH:MM", c.Rollover.Cutoff))
	}

	if c.Alerting.Enabled {
		for i, ch := range c.Alerting.Channels {
			switch ch.Type {
			case "console":
			case "telegram":
				if ch.BotToken == "" || ch.ChatID == "" {
					errs = append(errs, fmt.Sprintf("alerting.channels[%d]: telegram requires bot_token and chat_id", i))
				}
			default:
				errs = append(errs, fmt.Sprintf("alerting.channels[%d]: type '%s' must be 'console' or 'telegram'", i, ch.Type))
			}
		}
	}

	for i, cc := range c.Contracts {
		if cc.Underlying == "" || cc.CallSecurityID == "" || cc.PutSecurityID == "" {
			errs = append(errs, fmt.Sprintf("contracts[%d]: underlying, call_security_id and put_security_id are required", i))
		}
		if _, err := time.Parse("2006-01-02", cc.Expiry); err != nil {
			errs = append(errs, fmt.Sprintf("contracts[%d]: expiry '%s' must be YYYY-MM-DD", i, cc.Expiry))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, strings.Join(errs, "; "))
	}

	return nil
}

func parseCutoff(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, err
	}
	return t.Hour(), t.Minute(), nil
}

// ToLiquidityConfig converts to risk.LiquidityConfig.
func (c *Config) ToLiquidityConfig() risk.LiquidityConfig {
	return risk.LiquidityConfig{
		MinQtyMultiplier: c.Liquidity.MinQtyMultiplier,
		MaxSpreadPoints:  decimal.NewFromFloat(c.Liquidity.MaxSpreadPoints),
	}
}

// ToMarginConfig converts to risk.MarginConfig.
func (c *Config) ToMarginConfig() risk.MarginConfig {
	return risk.MarginConfig{Enabled: c.Margin.Enabled}
}

// ToExecutionConfig converts to execution.Config.
func (c *Config) ToExecutionConfig() execution.Config {
	return execution.Config{
		LiquidityRetryBackoff: time.Duration(c.Execution.LiquidityRetryBackoffSec) * time.Second,
		PollInterval:          time.Duration(c.Execution.PollIntervalSec) * time.Second,
		MaxFillWait:           time.Duration(c.Execution.MaxFillWaitSec) * time.Second,
	}
}

// ToRolloverConfig converts to engine.RolloverConfig.
func (c *Config) ToRolloverConfig() engine.RolloverConfig {
	hour, minute, _ := parseCutoff(c.Rollover.Cutoff)
	return engine.RolloverConfig{
		CutoffHour:    hour,
		CutoffMinute:  minute,
		MaxConcurrent: c.Rollover.MaxConcurrent,
	}
}

// ToDhanConfig converts to dhan.Config.
func (c *Config) ToDhanConfig() dhan.Config {
	cfg := dhan.DefaultConfig()
	if c.Broker.BaseURL != "" {
		cfg.BaseURL = c.Broker.BaseURL
	}
	cfg.ClientID = c.Broker.ClientID
	cfg.AccessToken = c.Broker.AccessToken
	if c.Broker.RequestTimeoutSec > 0 {
		cfg.RequestTimeout = time.Duration(c.Broker.RequestTimeoutSec) * time.Second
	}
	if c.Broker.QuoteTimeoutSec > 0 {
		cfg.QuoteTimeout = time.Duration(c.Broker.QuoteTimeoutSec) * time.Second
	}
	if c.Broker.MaxRequestsPerSecond > 0 {
		cfg.MaxRequestsPerSecond = c.Broker.MaxRequestsPerSecond
	}
	return cfg
}

// ToServerConfig converts to server.Config.
func (c *Config) ToServerConfig() server.Config {
	cfg := server.DefaultConfig()
	cfg.Addr = c.Server.Addr
	cfg.LotSize = c.Market.LotSize
	return cfg
}

// ToMetricsServerConfig converts to metrics.ServerConfig.
func (c *Config) ToMetricsServerConfig() metrics.ServerConfig {
	cfg := metrics.DefaultServerConfig()
	cfg.Port = c.Metrics.Port
	cfg.MetricsPath = c.Metrics.Path
	return cfg
}

// ToResolver builds a static contract resolver from the declared contracts.
func (c *Config) ToResolver() *contracts.StaticResolver {
	r := contracts.NewStaticResolver()
	for _, cc := range c.Contracts {
		expiry, err := time.Parse("2006-01-02", cc.Expiry)
		if err != nil {
			continue
		}
		r.Add(types.Contract{
			Underlying:     cc.Underlying,
			Expiry:         expiry,
			Strike:         decimal.NewFromFloat(cc.Strike),
			CallSecurityID: cc.CallSecurityID,
			PutSecurityID:  cc.PutSecurityID,
		})
	}
	return r
}

// QuoteCacheTTL returns the quote cache time-to-live.
func (c *Config) QuoteCacheTTL() time.Duration {
	return time.Duration(c.Execution.QuoteCacheTTLSec) * time.Second
}
