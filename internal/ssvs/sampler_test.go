package ssvs

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
	"firecarbon/internal"
	"firecarbon/internal/design"

	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func TestEffectiveInclusion_OwnDrawAlwaysIncludes(t *testing.T) {
	c, err := design.BuildConstraints([]string{"a", "b", "a:b"})
	require.NoError(t, err)

	for mask := 0; mask < 8; mask++ {
		delta := []float64{float64(mask & 1), float64(mask >> 1 & 1), float64(mask >> 2 & 1)}
		g := EffectiveInclusion(c, delta)
		for i := range delta {
			if delta[i] == 1 {
				assert.Equal(t, 1.0, g[i], "delta=%v term %d", delta, i)
			}
		}
	}
}

func TestEffectiveInclusion_RowRule(t *testing.T) {
	c, err := design.BuildConstraints([]string{"a", "b", "a:b"})
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 0, 1}, EffectiveInclusion(c, []float64{0, 0, 1}))
	// a:b's row includes a, so drawing a switches the interaction on
	assert.Equal(t, []float64{1, 0, 1}, EffectiveInclusion(c, []float64{1, 0, 0}))
	assert.Equal(t, []float64{0, 0, 0}, EffectiveInclusion(c, []float64{0, 0, 0}))
}

// linearData returns y = 1 + 2*x1 + 0*x2 + noise with an intercept column.
func linearData(n int, seed uint64) Data {
	rng := rand.New(rand.NewPCG(seed, 7))
	x := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x1 := rng.Float64()*2 - 1
		x2 := rng.Float64()*2 - 1
		x.SetRow(i, []float64{1, x1, x2})
		y[i] = 1 + 2*x1 + 0.2*rng.NormFloat64()
	}
	terms := []string{"(Intercept)", "x1", "x2"}
	c, _ := design.BuildConstraints(terms)
	return Data{X: x, Terms: terms, Constraints: c, Response: y}
}

func testConfig(burnIn, iterations, thin int) Config {
	return Config{BurnIn: burnIn, Iterations: iterations, Thin: thin, Seed: 11, NuStep: 0.5}
}

func TestSampler_RecoversStrongEffect(t *testing.T) {
	s, err := NewSampler(testConfig(500, 2000, 1), linearData(80, 3), rand.New(rand.NewPCG(11, 1)), quiet)
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2000, res.Samples.Rows())

	ind, ok := res.Samples.Column(posterior.IndicatorColumn("x1"))
	require.True(t, ok)
	inclusion, _ := stats.Mean(ind)
	assert.Greater(t, inclusion, 0.99)

	beta, _ := res.Samples.Column(posterior.BetaColumn("x1"))
	var included []float64
	for i, b := range beta {
		if ind[i] == 1 {
			included = append(included, b)
		}
	}
	mean, _ := stats.Mean(included)
	assert.InDelta(t, 2.0, mean, 0.2)

	sigma, _ := res.Samples.Column(posterior.ColumnSigma)
	sigmaMean, _ := stats.Mean(sigma)
	assert.InDelta(t, 0.2, sigmaMean, 0.1)

	p, _ := res.Samples.Column(posterior.ColumnP)
	for _, v := range p {
		assert.True(t, v > 0 && v < 1)
	}
}

func TestSampler_Deterministic(t *testing.T) {
	run := func() *posterior.Matrix {
		s, err := NewSampler(testConfig(50, 200, 2), linearData(30, 5), rand.New(rand.NewPCG(99, 1)), quiet)
		require.NoError(t, err)
		res, err := s.Run(context.Background())
		require.NoError(t, err)
		return res.Samples
	}
	a, b := run(), run()
	assert.Equal(t, 100, a.Rows())
	assert.True(t, mat.Equal(a.Data, b.Data))
}

func TestSampler_ColumnsLayout(t *testing.T) {
	s, err := NewSampler(testConfig(0, 10, 5), linearData(10, 1), nil, quiet)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"beta[(Intercept)]", "beta[x1]", "beta[x2]",
		"ind[(Intercept)]", "ind[x1]", "ind[x2]",
		"delta[(Intercept)]", "delta[x1]", "delta[x2]",
		"p", "sigma", "sigma_ind",
	}, s.Columns())

	res, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Samples.Rows())

	// effective beta is zero whenever the term is excluded
	for i := 0; i < res.Samples.Rows(); i++ {
		for _, term := range []string{"(Intercept)", "x1", "x2"} {
			g, _ := res.Samples.At(i, posterior.IndicatorColumn(term))
			b, _ := res.Samples.At(i, posterior.BetaColumn(term))
			if g == 0 {
				assert.Equal(t, 0.0, b)
			}
		}
	}
}

func TestSampler_CancelledReturnsPartial(t *testing.T) {
	s, err := NewSampler(testConfig(10, 100, 1), linearData(20, 2), nil, quiet)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := s.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Samples.Rows())
	assert.True(t, res.Samples.Partial)
}

func TestSampler_LatentTruthRaggedReplicates(t *testing.T) {
	rng := rand.New(rand.NewPCG(21, 3))
	n := 12
	x := mat.NewDense(n, 2, nil)
	reps := make([][]float64, n)
	ids := make([]string, n)
	truth := make([]float64, n)
	for i := 0; i < n; i++ {
		group := float64(i % 2)
		x.SetRow(i, []float64{1, group})
		truth[i] = 0.5 + 1.5*group + 0.1*rng.NormFloat64()
		count := 1
		if i%3 == 0 {
			count = 3
		}
		for k := 0; k < count; k++ {
			reps[i] = append(reps[i], truth[i]+0.05*rng.NormFloat64())
		}
		ids[i] = string(rune('A' + i))
	}
	terms := []string{"(Intercept)", "group"}
	c, err := design.BuildConstraints(terms)
	require.NoError(t, err)

	data := Data{X: x, Terms: terms, Constraints: c, Replicates: reps, SampleIDs: ids}
	s, err := NewSampler(testConfig(300, 1500, 1), data, rand.New(rand.NewPCG(4, 4)), quiet)
	require.NoError(t, err)

	res, err := s.Run(context.Background())
	require.NoError(t, err)

	for i, id := range ids {
		col, ok := res.Samples.Column(posterior.Indexed(posterior.PrefixYTrue, id))
		require.True(t, ok, id)
		for _, v := range col {
			require.False(t, math.IsNaN(v) || math.IsInf(v, 0), id)
		}
		mean, _ := stats.Mean(col)
		repMean, _ := stats.Mean(reps[i])
		assert.InDelta(t, repMean, mean, 0.3, "sample %s with %d replicates", id, len(reps[i]))
	}

	nu, _ := res.Samples.Column(posterior.ColumnNu)
	sd, _ := res.Samples.Column(posterior.ColumnSDDigest)
	for i := range nu {
		assert.GreaterOrEqual(t, nu[i], 1.0)
		assert.True(t, sd[i] > 0 && sd[i] < ScaleUpper)
	}
	assert.True(t, res.Diagnostics.NuAcceptance > 0)
}

func TestNewSampler_Validation(t *testing.T) {
	good := linearData(10, 1)

	bad := good
	bad.Terms = []string{"(Intercept)", "x1", "x1"}
	_, err := NewSampler(testConfig(0, 10, 1), bad, nil, quiet)
	assert.True(t, errors.Is(err, core.ErrDuplicateTerm))

	bad = good
	bad.Response = good.Response[:5]
	_, err = NewSampler(testConfig(0, 10, 1), bad, nil, quiet)
	assert.True(t, core.IsConfigurationError(err))

	bad = good
	bad.Replicates = make([][]float64, 10)
	_, err = NewSampler(testConfig(0, 10, 1), bad, nil, quiet)
	assert.True(t, core.IsConfigurationError(err))

	_, err = NewSampler(testConfig(0, 10, 0), good, nil, quiet)
	assert.Error(t, err)
	_, err = NewSampler(testConfig(-1, 10, 1), good, nil, quiet)
	assert.Error(t, err)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 50000, cfg.BurnIn)
	assert.Equal(t, 100000, cfg.Iterations)
	assert.Equal(t, 10, cfg.Thin)
	assert.Equal(t, 10000, cfg.Retained())
	assert.NoError(t, cfg.Validate())
}
