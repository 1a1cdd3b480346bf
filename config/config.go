// Package config loads node configuration and builds the genesis block.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// TokenServiceConfig points the node at the external fungible-token service.
// An empty Endpoint runs an in-process ledger instead, funded with DevSupply
// whole tokens.
type TokenServiceConfig struct {
	Endpoint  string `json:"endpoint"`
	Contract  string `json:"contract"` // token contract identity recorded at genesis
	Treasury  string `json:"treasury"` // account whose balance funds gift payouts
	Secret    string `json:"secret"`   // HMAC key for request signing
	Timeout   string `json:"timeout"`  // per-call timeout, e.g. "10s"
	DevSupply uint64 `json:"dev_supply"`
}

// DispatcherConfig tunes the settlement dispatcher.
type DispatcherConfig struct {
	SweepSchedule string `json:"sweep_schedule"` // cron spec
	MaxAttempts   int    `json:"max_attempts"`   // transfer deliveries before giving up
}

// Config holds all node configuration.
type Config struct {
	NodeID        string             `json:"node_id"`
	ChainID       string             `json:"chain_id"`
	DataDir       string             `json:"data_dir"`
	RPCPort       int                `json:"rpc_port"`
	RPCAuthToken  string             `json:"rpc_auth_token"` // empty → no auth
	BlockInterval string             `json:"block_interval"` // e.g. "2s"
	MaxBlockTxs   int                `json:"max_block_txs"`  // max calls per block; 0 → 500
	MempoolSize   int                `json:"mempool_size"`
	HostKeyFile   string             `json:"host_key_file"`
	EconomyFile   string             `json:"economy_file"` // YAML economy tuning; empty → defaults
	TokenService  TokenServiceConfig `json:"token_service"`
	Dispatcher    DispatcherConfig   `json:"dispatcher"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:        "node0",
		ChainID:       "chestchain-dev",
		DataDir:       "./data",
		RPCPort:       8545,
		BlockInterval: "2s",
		MaxBlockTxs:   500,
		MempoolSize:   10_000,
		HostKeyFile:   "host.key",
		TokenService: TokenServiceConfig{
			Contract:  "gift-token.dev",
			Treasury:  "treasury.dev",
			Timeout:   "10s",
			DevSupply: 1_000_000,
		},
		Dispatcher: DispatcherConfig{
			SweepSchedule: "@every 30s",
			MaxAttempts:   5,
		},
	}
}

// Load reads a JSON config file from path over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks the fields the node cannot start without.
func (c *Config) Validate() error {
	if c.ChainID == "" {
		return errors.New("chain_id is required")
	}
	if c.TokenService.Treasury == "" {
		return errors.New("token_service.treasury is required")
	}
	if _, err := c.Interval(); err != nil {
		return err
	}
	if _, err := c.TokenService.CallTimeout(); err != nil {
		return err
	}
	return nil
}

// Interval returns the parsed block interval.
func (c *Config) Interval() (time.Duration, error) {
	return parseDuration("block_interval", c.BlockInterval, 2*time.Second)
}

// CallTimeout returns the parsed per-call timeout.
func (t TokenServiceConfig) CallTimeout() (time.Duration, error) {
	return parseDuration("token_service.timeout", t.Timeout, 10*time.Second)
}

func parseDuration(field, s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", field)
	}
	return d, nil
}
