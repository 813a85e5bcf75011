package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	gatewayv1 "github.com/ismaiel54/unified-trading-gateway/api/gateway/v1"
	"gopkg.in/yaml.v3"
)

// Exchange drivers
const (
	DriverPaper = "paper"
	DriverKafka = "kafka"
)

// ExchangeConfig describes one exchange served by the gateway
type ExchangeConfig struct {
	Name     string   `yaml:"name"`
	Driver   string   `yaml:"driver"`
	Symbols  []string `yaml:"symbols"`
	Channels []string `yaml:"channels"`

	// Fixed-point scale of PriceVolume levels. Required: there is no
	// sensible global default.
	PriceScale  int64 `yaml:"price_scale"`
	VolumeScale int64 `yaml:"volume_scale"`

	// paper driver
	Seed         int64              `yaml:"seed"`
	BasePrices   map[string]float64 `yaml:"base_prices"`
	TickInterval time.Duration      `yaml:"tick_interval"`
	FeeRate      float64            `yaml:"fee_rate"`
	Balances     map[string]float64 `yaml:"balances"`

	// request pacing, requests per second
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`

	// kafka driver
	Topic string `yaml:"topic"`
	Group string `yaml:"group"`
}

type exchangesFile struct {
	Exchanges []ExchangeConfig `yaml:"exchanges"`
}

var ErrNoExchanges = errors.New("no exchanges configured")

// LoadExchanges reads the exchanges YAML file, expanding ${VAR} references.
// A missing file yields DefaultExchanges.
func LoadExchanges(path string) ([]ExchangeConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultExchanges(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read exchanges file: %w", err)
	}
	return ParseExchanges(data)
}

// ParseExchanges decodes, defaults and validates exchange definitions
func ParseExchanges(data []byte) ([]ExchangeConfig, error) {
	expanded := os.ExpandEnv(string(data))

	var file exchangesFile
	if err := yaml.Unmarshal([]byte(expanded), &file); err != nil {
		return nil, fmt.Errorf("parse exchanges yaml: %w", err)
	}
	if len(file.Exchanges) == 0 {
		return nil, ErrNoExchanges
	}

	seen := make(map[string]bool, len(file.Exchanges))
	for i := range file.Exchanges {
		ex := &file.Exchanges[i]
		ex.applyDefaults()
		if err := ex.Validate(); err != nil {
			return nil, fmt.Errorf("exchange %d: %w", i, err)
		}
		if seen[ex.Name] {
			return nil, fmt.Errorf("exchange %q defined twice", ex.Name)
		}
		seen[ex.Name] = true
	}
	return file.Exchanges, nil
}

// DefaultExchanges is a single simulated exchange for local development
func DefaultExchanges() []ExchangeConfig {
	ex := ExchangeConfig{
		Name:        "paper",
		Driver:      DriverPaper,
		Symbols:     []string{"BTCUSDT", "ETHUSDT"},
		PriceScale:  100,
		VolumeScale: 10000,
		Seed:        42,
		BasePrices:  map[string]float64{"BTCUSDT": 65000, "ETHUSDT": 3200},
		FeeRate:     0.001,
		Balances:    map[string]float64{"USDT": 1000000, "BTC": 10, "ETH": 100},
	}
	ex.applyDefaults()
	return []ExchangeConfig{ex}
}

func (c *ExchangeConfig) applyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverPaper
	}
	if len(c.Channels) == 0 {
		c.Channels = []string{"BOOK", "TRADE", "TICKER"}
	}
	if c.TickInterval == 0 {
		c.TickInterval = 500 * time.Millisecond
	}
	if c.RateLimit == 0 {
		c.RateLimit = 20
	}
	if c.RateBurst == 0 {
		c.RateBurst = int(c.RateLimit)
	}
	if c.Driver == DriverKafka && c.Group == "" {
		c.Group = "gateway-" + c.Name
	}
}

// Validate checks required fields
func (c *ExchangeConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Driver != DriverPaper && c.Driver != DriverKafka {
		return fmt.Errorf("%s: unknown driver %q", c.Name, c.Driver)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("%s: at least one symbol is required", c.Name)
	}
	if c.PriceScale <= 0 || c.VolumeScale <= 0 {
		return fmt.Errorf("%s: price_scale and volume_scale must be positive", c.Name)
	}
	if c.RateLimit < 0 || c.FeeRate < 0 {
		return fmt.Errorf("%s: rate_limit and fee_rate must not be negative", c.Name)
	}
	if _, err := c.ParsedChannels(); err != nil {
		return fmt.Errorf("%s: %w", c.Name, err)
	}
	return nil
}

// ParsedChannels returns the configured channels as schema values
func (c *ExchangeConfig) ParsedChannels() ([]gatewayv1.Channel, error) {
	out := make([]gatewayv1.Channel, 0, len(c.Channels))
	for _, name := range c.Channels {
		ch, err := gatewayv1.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, nil
}
