// Package game holds the chest/key economy: tuning, reward tables, and the
// pure state transitions applied to a player record.
package game

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Balances is a starting bundle granted on first sign-in.
type Balances struct {
	Keys   uint32 `yaml:"keys"`
	Chests uint32 `yaml:"chests"`
	Wood   uint32 `yaml:"wood"`
	Stone  uint32 `yaml:"stone"`
	Iron   uint32 `yaml:"iron"`
	Gift   uint32 `yaml:"gift"`
}

// Config is one versioned tuning of the economy.
type Config struct {
	Version string `yaml:"version"`

	Cooldown          time.Duration `yaml:"cooldown"`            // base wait between key claims
	InitialClaimDelay time.Duration `yaml:"initial_claim_delay"` // gate offset for a fresh player
	StartingBalances  Balances      `yaml:"starting_balances"`

	TierIncrement   time.Duration `yaml:"tier_increment"`   // cooldown cut per upgrade
	TierStep        time.Duration `yaml:"tier_step"`        // accumulated cut per tier-up
	DecreaseCeiling time.Duration `yaml:"decrease_ceiling"` // max accumulated cut
	MaxTier         uint32        `yaml:"max_tier"`

	ExchangeCost uint32 `yaml:"exchange_cost"` // wood, iron and stone each, per chest

	GiftTokenMin  uint64 `yaml:"gift_token_min"` // whole tokens, inclusive
	GiftTokenMax  uint64 `yaml:"gift_token_max"` // whole tokens, inclusive
	TokenDecimals uint8  `yaml:"token_decimals"`
}

// DefaultConfig is the current tuning: a 6h cooldown, tiers every hour of
// accumulated cut up to four, and 10..300 token gift payouts.
func DefaultConfig() Config {
	return Config{
		Version:         "v2",
		Cooldown:        6 * time.Hour,
		TierIncrement:   15 * time.Minute,
		TierStep:        time.Hour,
		DecreaseCeiling: 4 * time.Hour,
		MaxTier:         4,
		ExchangeCost:    50,
		GiftTokenMin:    10,
		GiftTokenMax:    300,
		TokenDecimals:   6,
	}
}

// LegacyConfig is the first release: an 8h cooldown that also gates the very
// first claim.
func LegacyConfig() Config {
	cfg := DefaultConfig()
	cfg.Version = "v1"
	cfg.Cooldown = 8 * time.Hour
	cfg.InitialClaimDelay = 8 * time.Hour
	return cfg
}

// Preset returns a named built-in tuning.
func Preset(version string) (Config, error) {
	switch version {
	case "", "v2":
		return DefaultConfig(), nil
	case "v1":
		return LegacyConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown economy version %q", version)
	}
}

// Validate checks the invariants the engine relies on.
func (c Config) Validate() error {
	switch {
	case c.Cooldown <= 0:
		return errors.New("cooldown must be positive")
	case c.InitialClaimDelay < 0:
		return errors.New("initial_claim_delay must not be negative")
	case c.TierIncrement <= 0:
		return errors.New("tier_increment must be positive")
	case c.TierStep <= 0 || c.TierStep%c.TierIncrement != 0:
		return errors.New("tier_step must be a positive multiple of tier_increment")
	case c.DecreaseCeiling < c.TierIncrement || c.DecreaseCeiling%c.TierIncrement != 0:
		return errors.New("decrease_ceiling must be a positive multiple of tier_increment")
	case c.Cooldown <= c.DecreaseCeiling:
		// the claim gate must always move forward
		return fmt.Errorf("cooldown %s must exceed decrease_ceiling %s", c.Cooldown, c.DecreaseCeiling)
	case c.MaxTier < 1:
		return errors.New("max_tier must be at least 1")
	case c.ExchangeCost == 0:
		return errors.New("exchange_cost must be positive")
	case c.GiftTokenMin == 0 || c.GiftTokenMin > c.GiftTokenMax:
		return errors.New("gift token range must satisfy 0 < min <= max")
	}
	return nil
}

// LoadConfig reads a YAML tuning file. Fields left out keep the values of the
// preset named by its version.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var head struct {
		Version string `yaml:"version"`
	}
	if err := yaml.Unmarshal(raw, &head); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg, err := Preset(head.Version)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}
