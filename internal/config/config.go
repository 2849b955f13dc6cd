package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the indexer.
type Config struct {

	// Chain
	RPCURLs         []string
	ChainID         uint64
	MiningContract  string
	StakingContract string
	TokenContract   string
	OracleAddress   string

	// RPC rate limiting
	RPCRPS   int
	RPCBurst int

	// PostgreSQL
	PostgresURL string

	// Redis
	RedisURL      string
	SyncTopic     string
	ConsumerGroup string

	// Reconciliation policies
	SyncInterval   time.Duration // 0 disables the in-process tick publisher
	ScanWindow     uint64
	ScanOverlap    uint64
	StaleStakeTTL  time.Duration
	StaleStakeBat  int
	RoundLookback  uint64
	RevealLookback uint64

	// HTTP API
	HTTPAddr   string
	SyncSecret string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		// Defaults
		RPCRPS:         50,
		RPCBurst:       100,
		SyncTopic:      "sync-ticks",
		ConsumerGroup:  "reconciler-workers",
		ScanWindow:     600,
		ScanOverlap:    120,
		StaleStakeTTL:  30 * time.Minute,
		StaleStakeBat:  25,
		RoundLookback:  12,
		RevealLookback: 500,
		HTTPAddr:       ":8080",
		LogLevel:       "info",
	}

	// Required
	cfg.PostgresURL = os.Getenv("POSTGRES_URL")
	if cfg.PostgresURL == "" {
		return nil, fmt.Errorf("POSTGRES_URL is required")
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is required")
	}

	if v := os.Getenv("RPC_URLS"); v != "" {
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.RPCURLs = append(cfg.RPCURLs, u)
			}
		}
	}
	if len(cfg.RPCURLs) == 0 {
		return nil, fmt.Errorf("RPC_URLS is required")
	}

	if v := os.Getenv("CHAIN_ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("CHAIN_ID: %w", err)
		}
		cfg.ChainID = n
	}
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("CHAIN_ID is required")
	}

	cfg.MiningContract = os.Getenv("MINING_CONTRACT")
	if cfg.MiningContract == "" {
		return nil, fmt.Errorf("MINING_CONTRACT is required")
	}

	cfg.StakingContract = os.Getenv("STAKING_CONTRACT")
	if cfg.StakingContract == "" {
		return nil, fmt.Errorf("STAKING_CONTRACT is required")
	}

	cfg.TokenContract = os.Getenv("TOKEN_CONTRACT")
	if cfg.TokenContract == "" {
		return nil, fmt.Errorf("TOKEN_CONTRACT is required")
	}

	cfg.OracleAddress = os.Getenv("ORACLE_ADDRESS")
	if cfg.OracleAddress == "" {
		return nil, fmt.Errorf("ORACLE_ADDRESS is required")
	}

	// Optional overrides
	if v := os.Getenv("RPC_RPS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCRPS = n
		}
	}

	if v := os.Getenv("RPC_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RPCBurst = n
		}
	}

	if v := os.Getenv("SYNC_TOPIC"); v != "" {
		cfg.SyncTopic = v
	}

	if v := os.Getenv("CONSUMER_GROUP"); v != "" {
		cfg.ConsumerGroup = v
	}

	if v := os.Getenv("SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.SyncInterval = d
		}
	}

	if v := os.Getenv("SCAN_WINDOW"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ScanWindow = n
		}
	}

	if v := os.Getenv("SCAN_OVERLAP"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.ScanOverlap = n
		}
	}

	if v := os.Getenv("STALE_STAKE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.StaleStakeTTL = d
		}
	}

	if v := os.Getenv("STALE_STAKE_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.StaleStakeBat = n
		}
	}

	if v := os.Getenv("ROUND_LOOKBACK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.RoundLookback = n
		}
	}

	if v := os.Getenv("REVEAL_LOOKBACK"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.RevealLookback = n
		}
	}

	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}

	cfg.SyncSecret = os.Getenv("SYNC_SECRET")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	return cfg, nil
}
