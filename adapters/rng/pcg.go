// Package rng provides the seeded random streams used by the sampler and
// the predictive generator.
package rng

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
)

// PCGAdapter implements ports.RNGPort with PCG generators. The stream
// name selects the PCG increment so named streams never overlap.
type PCGAdapter struct{}

// NewPCGAdapter creates a new adapter
func NewPCGAdapter() *PCGAdapter {
	return &PCGAdapter{}
}

// Stream creates a deterministic generator for a named operation
func (a *PCGAdapter) Stream(ctx context.Context, name string, seed uint64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(seed, hashString(name))), nil
}

func hashString(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
