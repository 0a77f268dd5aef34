// Package config loads hub configuration from the environment. A .env file
// is honored for development; real environment variables win. Every knob has
// a default so the hub starts with no configuration at all.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all hub settings.
type Config struct {
	// Server
	Addr            string        `env:"HUB_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"HUB_SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"HUB_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"HUB_LOG_FORMAT" envDefault:"text"`

	// Sessions and transport
	OutboundQueueSize int           `env:"HUB_OUTBOUND_QUEUE_SIZE" envDefault:"256"`
	WriteTimeout      time.Duration `env:"HUB_WRITE_TIMEOUT" envDefault:"10s"`
	ReadLimit         int64         `env:"HUB_READ_LIMIT" envDefault:"1048576"` // bytes per inbound frame
	ClientGracePeriod time.Duration `env:"HUB_CLIENT_GRACE_PERIOD" envDefault:"60s"`

	// Subscriptions
	MaxSubscriptionsPerClient int           `env:"HUB_MAX_SUBSCRIPTIONS_PER_CLIENT" envDefault:"50"`
	MaxEventsPerDeliveryCap   int           `env:"HUB_MAX_EVENTS_PER_DELIVERY_CAP" envDefault:"1000"`
	ReaperInterval            time.Duration `env:"HUB_REAPER_INTERVAL" envDefault:"1s"`

	// Publish ingress rate limit
	PublishRate  float64 `env:"HUB_PUBLISH_RATE" envDefault:"500"` // events per second
	PublishBurst int     `env:"HUB_PUBLISH_BURST" envDefault:"100"`
}

// Load reads configuration from the environment, applying .env first if one
// exists. Priority: environment variables > .env file > defaults.
func Load() (*Config, error) {
	// Missing .env is fine; containers set real environment variables.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges and enums.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("HUB_ADDR is required")
	}
	if c.OutboundQueueSize < 1 {
		return fmt.Errorf("HUB_OUTBOUND_QUEUE_SIZE must be > 0, got %d", c.OutboundQueueSize)
	}
	if c.WriteTimeout <= 0 {
		return fmt.Errorf("HUB_WRITE_TIMEOUT must be > 0, got %s", c.WriteTimeout)
	}
	if c.ReadLimit < 1024 {
		return fmt.Errorf("HUB_READ_LIMIT must be >= 1024, got %d", c.ReadLimit)
	}
	if c.ClientGracePeriod < 0 {
		return fmt.Errorf("HUB_CLIENT_GRACE_PERIOD must be >= 0, got %s", c.ClientGracePeriod)
	}
	if c.MaxSubscriptionsPerClient < 1 {
		return fmt.Errorf("HUB_MAX_SUBSCRIPTIONS_PER_CLIENT must be > 0, got %d", c.MaxSubscriptionsPerClient)
	}
	if c.MaxEventsPerDeliveryCap < 1 {
		return fmt.Errorf("HUB_MAX_EVENTS_PER_DELIVERY_CAP must be > 0, got %d", c.MaxEventsPerDeliveryCap)
	}
	if c.ReaperInterval <= 0 {
		return fmt.Errorf("HUB_REAPER_INTERVAL must be > 0, got %s", c.ReaperInterval)
	}
	if c.PublishRate <= 0 {
		return fmt.Errorf("HUB_PUBLISH_RATE must be > 0, got %.1f", c.PublishRate)
	}
	if c.PublishBurst < 1 {
		return fmt.Errorf("HUB_PUBLISH_BURST must be > 0, got %d", c.PublishBurst)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("HUB_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"text": true, "json": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("HUB_LOG_FORMAT must be one of: text, json (got: %s)", c.LogFormat)
	}
	return nil
}

// Default returns a config with every knob at its default, for tests and
// embedded use.
func Default() *Config {
	return &Config{
		Addr:                      ":8080",
		ShutdownTimeout:           10 * time.Second,
		LogLevel:                  "info",
		LogFormat:                 "text",
		OutboundQueueSize:         256,
		WriteTimeout:              10 * time.Second,
		ReadLimit:                 1 << 20,
		ClientGracePeriod:         60 * time.Second,
		MaxSubscriptionsPerClient: 50,
		MaxEventsPerDeliveryCap:   1000,
		ReaperInterval:            time.Second,
		PublishRate:               500,
		PublishBurst:              100,
	}
}
