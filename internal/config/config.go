package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Rewards  RewardsConfig  `toml:"rewards"`
	Levels   LevelsConfig   `toml:"levels"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type AuthConfig struct {
	JWTSecret      string `toml:"jwt_secret"`
	TokenExpiryMin int    `toml:"token_expiry_min"`
}

// RewardsConfig fixes the token and reputation policy. Amounts are in the
// internal token unit.
type RewardsConfig struct {
	// StartingBalance is granted to every new user as a signup_grant posting.
	StartingBalance float64 `toml:"starting_balance"`
	// ValidatorFeePercent of the problem reward is credited to the validator
	// on approval.
	ValidatorFeePercent float64 `toml:"validator_fee_percent"`
	// RejectReviewFee is credited to the validator for a rejection.
	// Zero means no posting is made.
	RejectReviewFee float64 `toml:"reject_review_fee"`
	// SolverReputation and ValidatorReputation are the reputation increments
	// applied on approval.
	SolverReputation    int `toml:"solver_reputation"`
	ValidatorReputation int `toml:"validator_reputation"`
}

type LevelsConfig struct {
	Bands []LevelBand `toml:"bands"`
}

// LevelBand is one reputation band. Max = -1 marks the open-ended top band.
type LevelBand struct {
	Name string `toml:"name"`
	Min  int    `toml:"min"`
	Max  int    `toml:"max"`
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":8080",
		},
		Database: DatabaseConfig{
			Path: "data/poinet.db",
		},
		Auth: AuthConfig{
			JWTSecret:      "change-me-in-production",
			TokenExpiryMin: 1440, // 24h
		},
		Rewards: RewardsConfig{
			StartingBalance:     100,
			ValidatorFeePercent: 5,
			RejectReviewFee:     0,
			SolverReputation:    10,
			ValidatorReputation: 5,
		},
		Levels: LevelsConfig{
			Bands: []LevelBand{
				{Name: "Novice", Min: 0, Max: 99},
				{Name: "Expert", Min: 100, Max: 499},
				{Name: "Master", Min: 500, Max: -1},
			},
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the reward and level policy for values the engine cannot
// operate with.
func (c *Config) Validate() error {
	if c.Rewards.StartingBalance < 0 {
		return fmt.Errorf("rewards.starting_balance must not be negative")
	}
	if c.Rewards.ValidatorFeePercent < 0 || c.Rewards.ValidatorFeePercent > 100 {
		return fmt.Errorf("rewards.validator_fee_percent must be in [0, 100]")
	}
	if c.Rewards.RejectReviewFee < 0 {
		return fmt.Errorf("rewards.reject_review_fee must not be negative")
	}
	bands := c.Levels.Bands
	if len(bands) == 0 {
		return fmt.Errorf("levels.bands must not be empty")
	}
	if bands[0].Min != 0 {
		return fmt.Errorf("first level band must start at 0, got %d", bands[0].Min)
	}
	for i, b := range bands {
		if b.Name == "" {
			return fmt.Errorf("level band %d has no name", i)
		}
		if i == len(bands)-1 {
			if b.Max != -1 {
				return fmt.Errorf("top level band %q must have max = -1", b.Name)
			}
			continue
		}
		if b.Max < b.Min {
			return fmt.Errorf("level band %q has max %d < min %d", b.Name, b.Max, b.Min)
		}
		if bands[i+1].Min != b.Max+1 {
			return fmt.Errorf("level bands %q and %q are not contiguous", b.Name, bands[i+1].Name)
		}
	}
	return nil
}
