// Package config loads service configuration from the environment. Values
// like the shipping rate table and low-stock threshold are explicit here and
// passed into constructors, never read from ambient state deeper in the code.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port         string   `envconfig:"PORT" default:"8081"`
	PostgresURL  string   `envconfig:"POSTGRES_URL" required:"true"`
	KafkaBrokers []string `envconfig:"KAFKA_BROKERS"`

	// Checkout fails with a retryable error instead of queueing unboundedly
	// behind contended stock rows.
	LockTimeout time.Duration `envconfig:"LOCK_TIMEOUT" default:"3s"`

	LowStockThreshold int    `envconfig:"LOW_STOCK_THRESHOLD" default:"10"`
	TaxRate           string `envconfig:"TAX_RATE" default:"0"`

	// Rate table keyed by shipping method. Values are amounts in the store
	// currency; the default set mirrors the historical rate tables.
	ShippingRates         map[string]string `envconfig:"SHIPPING_RATES" default:"standard:500,express:1500,free:0,pickup:0,nairobi:0,near-nairobi:400,outside-nairobi:600"`
	DefaultShippingMethod string            `envconfig:"DEFAULT_SHIPPING_METHOD" default:"standard"`

	RelayInterval  time.Duration `envconfig:"RELAY_INTERVAL" default:"1s"`
	RelayBatchSize int           `envconfig:"RELAY_BATCH_SIZE" default:"100"`
	ConsumerGroup  string        `envconfig:"CONSUMER_GROUP" default:"inventory-service"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) ShippingRateTable() (map[string]decimal.Decimal, error) {
	rates := make(map[string]decimal.Decimal, len(c.ShippingRates))
	for method, raw := range c.ShippingRates {
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid shipping rate for %q: %w", method, err)
		}
		if rate.IsNegative() {
			return nil, fmt.Errorf("negative shipping rate for %q", method)
		}
		rates[method] = rate
	}
	if _, ok := rates[c.DefaultShippingMethod]; !ok {
		return nil, fmt.Errorf("default shipping method %q has no rate", c.DefaultShippingMethod)
	}
	return rates, nil
}

func (c *Config) TaxRateDecimal() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.TaxRate)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid tax rate: %w", err)
	}
	return rate, nil
}
