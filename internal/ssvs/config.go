package ssvs

import (
	"firecarbon/internal/errors"
)

// Config controls one chain. Retained samples = Iterations / Thin.
type Config struct {
	BurnIn     int    `json:"burn_in" yaml:"burn_in"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	Thin       int    `json:"thin" yaml:"thin"`
	Seed       uint64 `json:"seed" yaml:"seed"`

	// ProgressEvery logs progress every N iterations; 0 disables.
	ProgressEvery int `json:"progress_every" yaml:"progress_every"`

	// NuStep is the initial random-walk scale for log(nu-1). It is tuned
	// during burn-in only.
	NuStep float64 `json:"nu_step" yaml:"nu_step"`
}

// Prior bounds.
const (
	ScaleUpper = 10.0      // sigma, sigma_ind and sd_digest ~ Uniform(0, 10)
	NuRate     = 1.0 / 29  // nu = 1 + Exponential(1/29)
	scaleFloor = 1e-6
)

// DefaultConfig returns the production run plan: 50,000 burn-in, 100,000
// further iterations, every 10th retained.
func DefaultConfig() Config {
	return Config{
		BurnIn:        50000,
		Iterations:    100000,
		Thin:          10,
		Seed:          20140501,
		ProgressEvery: 10000,
		NuStep:        0.5,
	}
}

// Retained is the number of rows the chain will produce.
func (c Config) Retained() int {
	if c.Thin <= 0 {
		return 0
	}
	return c.Iterations / c.Thin
}

// Validate checks the run plan.
func (c Config) Validate() error {
	if c.BurnIn < 0 {
		return errors.InvalidInput("burn-in must be non-negative")
	}
	if c.Thin < 1 {
		return errors.InvalidInput("thinning interval must be at least 1")
	}
	if c.Iterations < c.Thin {
		return errors.InvalidInput("iterations must be at least the thinning interval")
	}
	if c.NuStep < 0 {
		return errors.InvalidInput("nu step must be non-negative")
	}
	return nil
}
