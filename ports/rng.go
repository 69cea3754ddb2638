package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// Stream creates a deterministic generator for a named operation. The
	// same (name, seed) pair always yields the same sequence, and different
	// names yield independent sequences.
	Stream(ctx context.Context, name string, seed uint64) (*rand.Rand, error)
}
