// Package config содержит логику чтения конфигурации магазина.
package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config содержит параметры конфигурации магазина.
type Config struct {
	RunAddress         string `env:"RUN_ADDRESS"`
	DatabaseURI        string `env:"DATABASE_URI"`
	MarketplaceAddress string `env:"MARKETPLACE_ADDRESS"`
	RedisAddress       string `env:"REDIS_ADDRESS"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"store-notifications"`

	AuthSecret string   `env:"AUTH_SECRET"`
	AdminIDs   []string `env:"ADMIN_IDS" envSeparator:","`

	PaymentTTL time.Duration `env:"PAYMENT_TTL" envDefault:"1800s"`

	DiscountMin       int           `env:"DISCOUNT_MIN" envDefault:"1"`
	DiscountMax       int           `env:"DISCOUNT_MAX" envDefault:"90"`
	PromotionCacheTTL time.Duration `env:"PROMOTION_CACHE_TTL" envDefault:"60s"`
	ProductCacheTTL   time.Duration `env:"PRODUCT_CACHE_TTL" envDefault:"5m"`

	LoyaltyExpirationDays int     `env:"LOYALTY_EXPIRATION_DAYS" envDefault:"365"`
	LoyaltyConversionRate float64 `env:"LOYALTY_CONVERSION_RATE" envDefault:"0.01"`

	AuditRetentionInfo     time.Duration `env:"AUDIT_RETENTION_INFO" envDefault:"720h"`
	AuditRetentionWarning  time.Duration `env:"AUDIT_RETENTION_WARNING" envDefault:"2160h"`
	AuditRetentionError    time.Duration `env:"AUDIT_RETENTION_ERROR" envDefault:"4320h"`
	AuditRetentionCritical time.Duration `env:"AUDIT_RETENTION_CRITICAL" envDefault:"8760h"`

	PixKey          string `env:"PIX_KEY"`
	PixMerchantName string `env:"PIX_MERCHANT_NAME" envDefault:"GAME STORE"`
	PixMerchantCity string `env:"PIX_MERCHANT_CITY" envDefault:"SAO PAULO"`

	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	SyncInterval  time.Duration `env:"SYNC_INTERVAL" envDefault:"10m"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envMarketplaceAddress := cfg.MarketplaceAddress
	envRedisAddress := cfg.RedisAddress

	flag.StringVar(&cfg.RunAddress, "a", "localhost:8080", "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.MarketplaceAddress, "r", "", "marketplace address")
	flag.StringVar(&cfg.RedisAddress, "c", "", "redis address for cache")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envMarketplaceAddress != "" {
		cfg.MarketplaceAddress = envMarketplaceAddress
	}
	if envRedisAddress != "" {
		cfg.RedisAddress = envRedisAddress
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = "localhost:8080"
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DiscountMin < 0 || c.DiscountMax > 100 || c.DiscountMin > c.DiscountMax {
		return fmt.Errorf("invalid discount bounds [%d, %d]", c.DiscountMin, c.DiscountMax)
	}
	if c.PaymentTTL <= 0 {
		return fmt.Errorf("payment ttl must be positive, got %s", c.PaymentTTL)
	}
	if c.LoyaltyExpirationDays <= 0 {
		return fmt.Errorf("loyalty expiration days must be positive, got %d", c.LoyaltyExpirationDays)
	}
	if c.LoyaltyConversionRate < 0 {
		return fmt.Errorf("loyalty conversion rate must not be negative, got %v", c.LoyaltyConversionRate)
	}
	return nil
}
