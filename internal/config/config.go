package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the sync service
type Config struct {
	// Server
	Port        string `env:"PORT" envDefault:"8085"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// Shopify
	ShopifyShopDomain  string `env:"SHOPIFY_SHOP_DOMAIN,required"`
	ShopifyAccessToken string `env:"SHOPIFY_ACCESS_TOKEN,required"`

	// Xero
	XeroConnectionName string `env:"XERO_CONNECTION_NAME,required"`
	// XeroConfigPath overrides the default ~/.xoauth/xoauth.json
	XeroConfigPath string `env:"XERO_CONFIG_PATH"`

	// Invoicing
	ShippingAccountCode string `env:"SHIPPING_ACCOUNT_CODE,required"`

	// GCP (secret store)
	GCPProjectID string `env:"GCP_PROJECT_ID,required"`
}

// Load loads configuration from a local .env file (if present) and the
// environment
func Load() (*Config, error) {
	// Missing .env is fine; real deployments configure the environment
	// directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
