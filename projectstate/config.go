package projectstate

import (
	"fmt"
	"math/big"
	"time"
)

// Config holds the projectstate settings. Zero values take the defaults of
// the original deployment.
type Config struct {
	DBPath                string          `yaml:"db_path"`
	GenesisBlock          uint64          `yaml:"genesis_block"`
	BlocksPerDiscount     uint64          `yaml:"blocks_per_discount"`
	NearDiscountThreshold uint64          `yaml:"near_discount_threshold"`
	FreeThresholdWei      string          `yaml:"free_threshold_wei"`
	RefreshLogRetention   time.Duration   `yaml:"refresh_log_retention"`
	Scheduler             SchedulerConfig `yaml:"scheduler"`
}

// SchedulerConfig controls the background refresh triggers.
type SchedulerConfig struct {
	Disabled bool `yaml:"disabled"`

	// FastInterval drives the near-discount trigger. Default: 1 minute.
	FastInterval time.Duration `yaml:"fast_interval"`

	// SlowInterval drives the unconditional refresh. Default: 3 minutes.
	SlowInterval  time.Duration `yaml:"slow_interval"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "famousjsons.db"
	}
	if c.GenesisBlock == 0 {
		c.GenesisBlock = 10314376
	}
	if c.BlocksPerDiscount == 0 {
		c.BlocksPerDiscount = 300
	}
	if c.NearDiscountThreshold == 0 {
		c.NearDiscountThreshold = 20
	}
	if c.FreeThresholdWei == "" {
		c.FreeThresholdWei = "1000000000000000" // 0.001 ether
	}
	if c.RefreshLogRetention <= 0 {
		c.RefreshLogRetention = 7 * 24 * time.Hour
	}
	if c.Scheduler.FastInterval <= 0 {
		c.Scheduler.FastInterval = time.Minute
	}
	if c.Scheduler.SlowInterval <= 0 {
		c.Scheduler.SlowInterval = 3 * time.Minute
	}
	if c.Scheduler.PruneInterval <= 0 {
		c.Scheduler.PruneInterval = time.Hour
	}
}

// freeThreshold parses FreeThresholdWei. It must be a positive integer.
func (c *Config) freeThreshold() (*big.Int, error) {
	v, ok := new(big.Int).SetString(c.FreeThresholdWei, 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: free_threshold_wei %q must be a positive integer", ErrInvalidConfig, c.FreeThresholdWei)
	}
	return v, nil
}
