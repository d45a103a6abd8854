package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	// Chain access
	RPCURL            string
	SponsorPrivateKey string // base58, sponsor pays source-chain costs
	Commitment        string

	// Price oracle
	OracleFeedAccount string
	OracleTTL         time.Duration
	OracleMaxAge      time.Duration

	// Fee policy
	USDCMint          string
	VolatilityBuffer  float64 // e.g. 0.15 for 15%
	PlatformFeeBps    int64
	MaxDriftPercent   float64
	MaxSponsorCostUSD float64

	// Orchestrator
	PendingTTL         time.Duration
	MonitorInterval    time.Duration
	MonitorMaxAttempts int
	StoragePath        string

	// Providers
	OneClickJWT      string
	OneClickBaseURL  string
	AllbridgeBaseURL string
}

var globalConfig *Config

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	viper.SetConfigName(".swapd")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	// Set default values
	viper.SetDefault("rpc_url", "https://api.mainnet-beta.solana.com")
	viper.SetDefault("commitment", "confirmed")
	viper.SetDefault("oracle_ttl", "60s")
	viper.SetDefault("oracle_max_age", "60s")
	viper.SetDefault("usdc_mint", "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	viper.SetDefault("volatility_buffer", 0.15)
	viper.SetDefault("platform_fee_bps", 0)
	viper.SetDefault("max_drift_percent", 2.0)
	viper.SetDefault("max_sponsor_cost_usd", 50.0)
	viper.SetDefault("pending_ttl", "5m")
	viper.SetDefault("monitor_interval", "10s")
	viper.SetDefault("monitor_max_attempts", 60)
	viper.SetDefault("oneclick_base_url", "https://1click.chaindefuser.com")
	viper.SetDefault("allbridge_base_url", "https://core.api.allbridgecoreapi.net")

	// Read from environment variables
	viper.SetEnvPrefix("SWAPD")
	viper.AutomaticEnv()

	// Read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		RPCURL:             viper.GetString("rpc_url"),
		SponsorPrivateKey:  viper.GetString("sponsor_private_key"),
		Commitment:         viper.GetString("commitment"),
		OracleFeedAccount:  viper.GetString("oracle_feed_account"),
		OracleTTL:          viper.GetDuration("oracle_ttl"),
		OracleMaxAge:       viper.GetDuration("oracle_max_age"),
		USDCMint:           viper.GetString("usdc_mint"),
		VolatilityBuffer:   viper.GetFloat64("volatility_buffer"),
		PlatformFeeBps:     viper.GetInt64("platform_fee_bps"),
		MaxDriftPercent:    viper.GetFloat64("max_drift_percent"),
		MaxSponsorCostUSD:  viper.GetFloat64("max_sponsor_cost_usd"),
		PendingTTL:         viper.GetDuration("pending_ttl"),
		MonitorInterval:    viper.GetDuration("monitor_interval"),
		MonitorMaxAttempts: viper.GetInt("monitor_max_attempts"),
		StoragePath:        viper.GetString("storage_path"),
		OneClickJWT:        viper.GetString("oneclick_jwt"),
		OneClickBaseURL:    viper.GetString("oneclick_base_url"),
		AllbridgeBaseURL:   viper.GetString("allbridge_base_url"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.SponsorPrivateKey == "" {
		return fmt.Errorf("sponsor private key not found. Please set SWAPD_SPONSOR_PRIVATE_KEY or create a .swapd.yaml config file")
	}
	if c.OracleFeedAccount == "" {
		return fmt.Errorf("oracle feed account not configured. Please set SWAPD_ORACLE_FEED_ACCOUNT")
	}
	if c.VolatilityBuffer < 0 || c.VolatilityBuffer > 1 {
		return fmt.Errorf("volatility buffer must be between 0 and 1, got %f", c.VolatilityBuffer)
	}
	if c.PlatformFeeBps < 0 || c.PlatformFeeBps > 10000 {
		return fmt.Errorf("platform fee bps must be between 0 and 10000, got %d", c.PlatformFeeBps)
	}
	if c.MaxDriftPercent <= 0 {
		return fmt.Errorf("max drift percent must be positive, got %f", c.MaxDriftPercent)
	}
	return nil
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set updates the global configuration
func Set(cfg *Config) {
	globalConfig = cfg
}
