package ssvs

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/floats"
)

// truncatedMean integrates f against Gamma(shape, rate) on (lower, inf) with
// a midpoint rule in log space.
func truncatedMean(shape, rate, lower float64, f func(float64) float64) float64 {
	const steps = 20000
	lo := math.Log(lower)
	h := 40.0 / steps
	logw := make([]float64, steps)
	vals := make([]float64, steps)
	for i := range logw {
		x := math.Exp(lo + (float64(i)+0.5)*h)
		logw[i] = shape*math.Log(x) - rate*x
		vals[i] = f(x)
	}
	norm := floats.LogSumExp(logw)
	mean := 0.0
	for i, lw := range logw {
		mean += math.Exp(lw-norm) * vals[i]
	}
	return mean
}

func TestTruncatedGamma_MatchesDensity(t *testing.T) {
	sd := func(x float64) float64 { return 1 / math.Sqrt(x) }
	cases := []struct{ shape, rate float64 }{
		{0, 1e-6}, // single-term sigma_ind with beta near zero
		{0, 0.05},
		{0, 3},
		{0.5, 0.2},
		{0.5, 500},
		{1, 0.1},
		{1, 400},
		{2.5, 0.01},
		{2.5, 1000},
		{20, 1},
		{20, 2500},
		{50, 4950},
	}
	rng := rand.New(rand.NewPCG(17, 3))
	for _, tc := range cases {
		t.Run(fmt.Sprintf("shape=%g/rate=%g", tc.shape, tc.rate), func(t *testing.T) {
			const draws = 100000
			sum := 0.0
			for i := 0; i < draws; i++ {
				x := truncatedGamma(rng, tc.shape, tc.rate, minPrecision)
				if !assert.Greater(t, x, minPrecision) {
					return
				}
				sum += sd(x)
			}
			want := truncatedMean(tc.shape, tc.rate, minPrecision, sd)
			assert.InEpsilon(t, want, sum/draws, 0.03)
		})
	}
}

func TestDrawScale_ZeroShapeStillSamples(t *testing.T) {
	s := &Sampler{rng: rand.New(rand.NewPCG(4, 4))}
	seen := make(map[float64]bool)
	for i := 0; i < 50; i++ {
		v := s.drawScale(0, 0.02)
		assert.Greater(t, v, 0.0)
		assert.Less(t, v, ScaleUpper)
		seen[v] = true
	}
	assert.Greater(t, len(seen), 40)
}
