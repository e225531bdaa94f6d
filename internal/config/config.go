// Package config loads runtime settings from the environment. Every field has
// a working default except the database DSN and the payout addresses, which
// must be set explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr        string
	DatabaseDSN     string
	ShutdownTimeout time.Duration

	Chain   ChainConfig
	Limiter LimiterConfig

	NonceTTL time.Duration
}

// ChainConfig parameterizes on-chain verification.
type ChainConfig struct {
	RPCEndpoint        string
	Mint               string
	PlatformAccount    string
	VerifyDestinations bool
	RequestTimeout     time.Duration
}

// LimiterConfig bounds nonce issuance per wallet.
type LimiterConfig struct {
	Window time.Duration
	Max    int
}

func Load() (*Config, error) {
	shutdownTimeout, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	nonceTTL, err := getEnvDuration("NONCE_TTL", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	rpcTimeout, err := getEnvDuration("CHAIN_RPC_TIMEOUT", 15*time.Second)
	if err != nil {
		return nil, err
	}
	limiterWindow, err := getEnvDuration("NONCE_LIMIT_WINDOW", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        getEnvString("HTTP_ADDR", ":8080"),
		DatabaseDSN:     os.Getenv("DATABASE_DSN"),
		ShutdownTimeout: shutdownTimeout,
		NonceTTL:        nonceTTL,
		Chain: ChainConfig{
			RPCEndpoint:        getEnvString("CHAIN_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"),
			Mint:               os.Getenv("SETTLEMENT_MINT"),
			PlatformAccount:    os.Getenv("PLATFORM_ACCOUNT"),
			VerifyDestinations: getEnvBool("VERIFY_DESTINATIONS", true),
			RequestTimeout:     rpcTimeout,
		},
		Limiter: LimiterConfig{
			Window: limiterWindow,
			Max:    getEnvInt("NONCE_LIMIT_MAX", 10),
		},
	}

	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("DATABASE_DSN must be set")
	}
	if cfg.Chain.Mint == "" {
		return nil, fmt.Errorf("SETTLEMENT_MINT must be set")
	}
	if cfg.Chain.PlatformAccount == "" {
		return nil, fmt.Errorf("PLATFORM_ACCOUNT must be set")
	}
	return cfg, nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
