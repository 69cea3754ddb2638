package ssvs

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"firecarbon/domain/posterior"
	"firecarbon/internal/design"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// exactInclusion returns P(delta_t = 1 | y) for unconstrained terms by
// summing over every inclusion pattern. beta is integrated analytically and
// (sigma, sigma_ind) numerically on a log grid over (0.001, ScaleUpper).
// With p ~ Beta(1,1) a pattern with k of T terms has prior k!(T-k)!/(T+1)!.
func exactInclusion(cols [][]float64, y []float64, grid int) []float64 {
	terms, n := len(cols), len(y)
	lo, hi := math.Log(1e-3), math.Log(ScaleUpper)
	h := (hi - lo) / float64(grid)
	nodes := make([]float64, grid)
	logw := make([]float64, grid)
	for i := range nodes {
		nodes[i] = math.Exp(lo + (float64(i)+0.5)*h)
		logw[i] = math.Log(nodes[i]*h) - math.Log(ScaleUpper)
	}
	yv := mat.NewVecDense(n, y)

	logNormal := func(sigma, sigmaInd float64, active []int) float64 {
		cov := mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				v := 0.0
				for _, t := range active {
					v += cols[t][i] * cols[t][j]
				}
				v *= sigmaInd * sigmaInd
				if i == j {
					v += sigma * sigma
				}
				cov.SetSym(i, j, v)
			}
		}
		var chol mat.Cholesky
		if !chol.Factorize(cov) {
			return math.Inf(-1)
		}
		var z mat.VecDense
		if err := chol.SolveVecTo(&z, yv); err != nil {
			return math.Inf(-1)
		}
		return -0.5 * (float64(n)*math.Log(2*math.Pi) + chol.LogDet() + mat.Dot(yv, &z))
	}

	patterns := 1 << terms
	logPost := make([]float64, patterns)
	for mask := 0; mask < patterns; mask++ {
		var active []int
		for t := 0; t < terms; t++ {
			if mask>>t&1 == 1 {
				active = append(active, t)
			}
		}
		k := len(active)
		prior, _ := math.Lgamma(float64(k + 1))
		rest, _ := math.Lgamma(float64(terms - k + 1))
		norm, _ := math.Lgamma(float64(terms + 2))

		var acc []float64
		for i, sigma := range nodes {
			if k == 0 {
				// sigma_ind integrates to one
				acc = append(acc, logw[i]+logNormal(sigma, 0, nil))
				continue
			}
			for j, sigmaInd := range nodes {
				acc = append(acc, logw[i]+logw[j]+logNormal(sigma, sigmaInd, active))
			}
		}
		logPost[mask] = prior + rest - norm + floats.LogSumExp(acc)
	}

	total := floats.LogSumExp(logPost)
	out := make([]float64, terms)
	for mask, lp := range logPost {
		w := math.Exp(lp - total)
		for t := 0; t < terms; t++ {
			if mask>>t&1 == 1 {
				out[t] += w
			}
		}
	}
	return out
}

func TestSampler_InclusionMatchesEnumeration(t *testing.T) {
	cases := []struct {
		name      string
		terms     []string
		cols      [][]float64
		y         []float64
		exact     []float64
		tolerance float64
	}{
		{
			name:      "single constant column",
			terms:     []string{"x"},
			cols:      [][]float64{{1, 1, 1, 1, 1}},
			y:         []float64{0.3, -0.1, 0.5, 0.2, 0.1},
			exact:     []float64{0.1712},
			tolerance: 0.03,
		},
		{
			name:      "single varying column",
			terms:     []string{"x"},
			cols:      [][]float64{{0.5, -0.2, 0.9, 0.1, 0.3}},
			y:         []float64{0.3, -0.1, 0.5, 0.2, 0.1},
			exact:     []float64{0.8672},
			tolerance: 0.03,
		},
		{
			name:  "two terms",
			terms: []string{"a", "b"},
			cols: [][]float64{
				{0.5, -1, 1.5, 0.2, -0.7, 1},
				{1, 0.3, -0.4, 0.8, -1.2, 0.1},
			},
			y:         []float64{0.3, -0.2, 0.4, 0.3, -0.4, 0.2},
			exact:     []float64{0.7219, 0.6018},
			tolerance: 0.05,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			want := exactInclusion(tc.cols, tc.y, 60)
			require.InDeltaSlice(t, tc.exact, want, 0.002)

			n := len(tc.y)
			x := mat.NewDense(n, len(tc.cols), nil)
			for j, col := range tc.cols {
				x.SetCol(j, col)
			}
			c, err := design.BuildConstraints(tc.terms)
			require.NoError(t, err)

			cfg := Config{BurnIn: 2000, Iterations: 400000, Thin: 10, Seed: 5, NuStep: 0.5}
			s, err := NewSampler(cfg, Data{X: x, Terms: tc.terms, Constraints: c, Response: tc.y}, rand.New(rand.NewPCG(5, 9)), quiet)
			require.NoError(t, err)
			res, err := s.Run(context.Background())
			require.NoError(t, err)

			for j, term := range tc.terms {
				ind, ok := res.Samples.Column(posterior.IndicatorColumn(term))
				require.True(t, ok)
				got, _ := stats.Mean(ind)
				assert.InDelta(t, want[j], got, tc.tolerance, term)
			}

			// sigma_ind must move even when its conditional shape is zero
			sigmaInd, ok := res.Samples.Column(posterior.ColumnSigmaInd)
			require.True(t, ok)
			distinct := make(map[float64]bool)
			for _, v := range sigmaInd[:100] {
				distinct[v] = true
			}
			assert.Greater(t, len(distinct), 90)
		})
	}
}
