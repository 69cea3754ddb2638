// Package ssvs implements stochastic-search variable selection with
// hierarchical inclusion constraints as a single-chain Gibbs sampler.
//
// Model:
//
//	y_i      ~ Normal(sum_t X[i,t] * beta'_t * g_t, sigma)
//	beta'_t  ~ Normal(0, sigma_ind)
//	delta_t  ~ Bernoulli(p)
//	g_t      = 1 if sum_j C[t,j] * delta_j > 0
//	p        ~ Beta(1, 1)
//	sigma, sigma_ind ~ Uniform(0, 10)
//
// With replicates, y is the latent true value of each sample and each
// replicate is Student-t around it (see latent.go).
package ssvs

import (
	"context"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"firecarbon/domain/posterior"
	"firecarbon/internal"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

const maxScaleTries = 1000

// Sampler holds one chain. It is not safe for concurrent use.
type Sampler struct {
	cfg    Config
	data   Data
	rng    *rand.Rand
	logger *internal.Logger

	n, p       int
	cols       [][]float64
	xtx        *mat.SymDense
	dependents [][]int // dependents[t] = terms whose constraint row includes t

	beta, delta, g, counts []float64
	mu, y                  []float64
	prob, sigma, sigmaInd  float64

	// scratch buffers for indicator updates
	mu0, mu1 []float64

	latent *latentState
}

// Result is a finished (or interrupted) chain.
type Result struct {
	Samples     *posterior.Matrix
	Diagnostics Diagnostics
}

// NewSampler validates the inputs and initialises the chain state.
func NewSampler(cfg Config, data Data, rng *rand.Rand, logger *internal.Logger) (*Sampler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(cfg.Seed, 0))
	}

	n, p := data.X.Dims()
	s := &Sampler{
		cfg:    cfg,
		data:   data,
		rng:    rng,
		logger: logger.WithComponent("ssvs"),
		n:      n,
		p:      p,
	}
	s.precompute()
	s.init()
	return s, nil
}

func (s *Sampler) precompute() {
	s.cols = make([][]float64, s.p)
	for t := 0; t < s.p; t++ {
		s.cols[t] = mat.Col(nil, t, s.data.X)
	}
	s.xtx = mat.NewSymDense(s.p, nil)
	s.xtx.SymOuterK(1, s.data.X.T())

	s.dependents = make([][]int, s.p)
	for k := 0; k < s.p; k++ {
		for t := 0; t < s.p; t++ {
			if s.data.Constraints.At(k, t) != 0 {
				s.dependents[t] = append(s.dependents[t], k)
			}
		}
	}
}

func (s *Sampler) init() {
	s.beta = make([]float64, s.p)
	s.delta = make([]float64, s.p)
	for t := range s.delta {
		s.delta[t] = 1
	}
	s.refreshInclusion()
	s.prob = 0.5
	s.sigmaInd = 1
	s.mu = make([]float64, s.n)
	s.mu0 = make([]float64, s.n)
	s.mu1 = make([]float64, s.n)

	if s.data.Latent() {
		s.initLatent()
	} else {
		s.y = append([]float64(nil), s.data.Response...)
	}
	s.sigma = clampScale(sampleSD(s.y), 1)
}

func (s *Sampler) refreshInclusion() {
	var counts mat.VecDense
	counts.MulVec(s.data.Constraints, mat.NewVecDense(s.p, append([]float64(nil), s.delta...)))
	s.counts = mat.Col(nil, 0, &counts)
	s.g = EffectiveInclusion(s.data.Constraints, s.delta)
}

// Run executes burn-in and the retained iterations. If ctx is cancelled the
// samples retained so far are returned together with ctx.Err().
func (s *Sampler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	retained := s.cfg.Retained()
	out := posterior.NewMatrix(s.Columns(), retained)
	row := make([]float64, len(out.Columns))
	total := s.cfg.BurnIn + s.cfg.Iterations

	s.logger.Info("starting chain: %d terms, %d rows, burn-in %d, iterations %d, thin %d, seed %d",
		s.p, s.n, s.cfg.BurnIn, s.cfg.Iterations, s.cfg.Thin, s.cfg.Seed)

	kept := 0
	for it := 1; it <= total; it++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("interrupted at iteration %d/%d with %d samples retained", it-1, total, kept)
			return s.result(out.Head(kept), start), err
		}

		s.Sweep(it <= s.cfg.BurnIn)

		if it > s.cfg.BurnIn && (it-s.cfg.BurnIn)%s.cfg.Thin == 0 && kept < retained {
			s.fill(row)
			out.Data.SetRow(kept, row)
			kept++
		}
		if s.cfg.ProgressEvery > 0 && it%s.cfg.ProgressEvery == 0 {
			s.logger.Info("iteration %d/%d (%d retained, sigma=%.4f, p=%.3f)", it, total, kept, s.sigma, s.prob)
		}
	}

	res := s.result(out, start)
	for _, w := range res.Diagnostics.Warnings {
		s.logger.Warn("%s", w.String())
	}
	s.logger.Info("chain finished in %s with %d samples", res.Diagnostics.Elapsed.Round(time.Millisecond), kept)
	return res, nil
}

// Sweep performs one full Gibbs scan over all parameters.
func (s *Sampler) Sweep(burnIn bool) {
	s.updateBeta()
	s.updateDelta()
	s.updateProb()
	s.updateSigma()
	s.updateSigmaInd()
	if s.latent != nil {
		s.updateNu(burnIn)
		s.updateLambda()
		s.updateTruth()
		s.updateDigestScale()
	}
}

// updateBeta draws the raw coefficients of included terms as one
// multivariate normal block and the excluded ones from the prior.
func (s *Sampler) updateBeta() {
	var active []int
	for t := 0; t < s.p; t++ {
		if s.g[t] == 1 {
			active = append(active, t)
		}
	}
	tau := 1 / (s.sigma * s.sigma)
	tauInd := 1 / (s.sigmaInd * s.sigmaInd)

	if k := len(active); k > 0 {
		q := mat.NewSymDense(k, nil)
		b := mat.NewVecDense(k, nil)
		for a, i := range active {
			b.SetVec(a, tau*dot(s.cols[i], s.y))
			for c := a; c < k; c++ {
				v := tau * s.xtx.At(i, active[c])
				if c == a {
					v += tauInd
				}
				q.SetSym(a, c, v)
			}
		}

		var chol mat.Cholesky
		if chol.Factorize(q) {
			var mean mat.VecDense
			if err := chol.SolveVecTo(&mean, b); err == nil {
				u := chol.RawU()
				z := make([]float64, k)
				for i := range z {
					z[i] = s.rng.NormFloat64()
				}
				// U x = z gives x ~ N(0, Q^-1)
				x := make([]float64, k)
				for i := k - 1; i >= 0; i-- {
					sum := z[i]
					for j := i + 1; j < k; j++ {
						sum -= u.At(i, j) * x[j]
					}
					x[i] = sum / u.At(i, i)
				}
				for a, i := range active {
					s.beta[i] = mean.AtVec(a) + x[a]
				}
			} else {
				s.updateBetaSingleSite(active, tau, tauInd)
			}
		} else {
			s.updateBetaSingleSite(active, tau, tauInd)
		}
	}

	for t := 0; t < s.p; t++ {
		if s.g[t] == 0 {
			s.beta[t] = s.sigmaInd * s.rng.NormFloat64()
		}
	}
	s.recomputeMu()
}

// updateBetaSingleSite is the coordinate-wise fallback when the block
// precision cannot be factorised numerically.
func (s *Sampler) updateBetaSingleSite(active []int, tau, tauInd float64) {
	s.recomputeMu()
	for _, t := range active {
		col := s.cols[t]
		r := 0.0
		for i := 0; i < s.n; i++ {
			r += col[i] * (s.y[i] - s.mu[i] + col[i]*s.beta[t])
		}
		prec := tau*s.xtx.At(t, t) + tauInd
		mean := tau * r / prec
		next := mean + s.rng.NormFloat64()/math.Sqrt(prec)
		for i := 0; i < s.n; i++ {
			s.mu[i] += col[i] * (next - s.beta[t])
		}
		s.beta[t] = next
	}
}

// updateDelta draws each raw indicator given all others. Flipping delta_t
// can switch every term whose constraint row includes t, so both
// likelihoods are evaluated with the induced effective inclusion.
func (s *Sampler) updateDelta() {
	prob := math.Min(math.Max(s.prob, 1e-12), 1-1e-12)
	priorOdds := math.Log(prob) - math.Log1p(-prob)
	tau := 1 / (s.sigma * s.sigma)

	for t := 0; t < s.p; t++ {
		cur := s.delta[t]
		ssr0 := s.candidateSSR(t, cur, 0, s.mu0)
		ssr1 := s.candidateSSR(t, cur, 1, s.mu1)

		logOdds := priorOdds - 0.5*tau*(ssr1-ssr0)
		next := 0.0
		if s.rng.Float64() < 1/(1+math.Exp(-logOdds)) {
			next = 1
		}
		if next == cur {
			continue
		}

		s.delta[t] = next
		for _, k := range s.dependents[t] {
			s.counts[k] += s.data.Constraints.At(k, t) * (next - cur)
			if s.counts[k] > 0 {
				s.g[k] = 1
			} else {
				s.g[k] = 0
			}
		}
		if next == 1 {
			copy(s.mu, s.mu1)
		} else {
			copy(s.mu, s.mu0)
		}
	}
}

// candidateSSR fills buf with the fitted values under delta_t = v and
// returns the residual sum of squares.
func (s *Sampler) candidateSSR(t int, cur, v float64, buf []float64) float64 {
	copy(buf, s.mu)
	for _, k := range s.dependents[t] {
		cnt := s.counts[k] + s.data.Constraints.At(k, t)*(v-cur)
		gk := 0.0
		if cnt > 0 {
			gk = 1
		}
		if diff := gk - s.g[k]; diff != 0 {
			col := s.cols[k]
			for i := 0; i < s.n; i++ {
				buf[i] += col[i] * s.beta[k] * diff
			}
		}
	}
	ssr := 0.0
	for i := 0; i < s.n; i++ {
		r := s.y[i] - buf[i]
		ssr += r * r
	}
	return ssr
}

func (s *Sampler) updateProb() {
	included := 0.0
	for _, d := range s.delta {
		included += d
	}
	s.prob = distuv.Beta{Alpha: 1 + included, Beta: 1 + float64(s.p) - included, Src: s.rng}.Rand()
}

func (s *Sampler) updateSigma() {
	ssr := 0.0
	for i := 0; i < s.n; i++ {
		r := s.y[i] - s.mu[i]
		ssr += r * r
	}
	s.sigma = s.drawScale(float64(s.n-1)/2, ssr/2)
}

func (s *Sampler) updateSigmaInd() {
	ss := dot(s.beta, s.beta)
	s.sigmaInd = s.drawScale(float64(s.p-1)/2, ss/2)
}

// drawScale samples a standard deviation with a Uniform(0, ScaleUpper)
// prior: the precision is Gamma(shape, rate) truncated to sd < ScaleUpper.
func (s *Sampler) drawScale(shape, rate float64) float64 {
	if rate <= 0 {
		rate = scaleFloor * scaleFloor
	}
	prec := truncatedGamma(s.rng, shape, rate, minPrecision)
	return math.Max(1/math.Sqrt(prec), scaleFloor)
}

func (s *Sampler) recomputeMu() {
	for i := range s.mu {
		s.mu[i] = 0
	}
	for t := 0; t < s.p; t++ {
		if s.g[t] == 0 {
			continue
		}
		col, b := s.cols[t], s.beta[t]
		for i := 0; i < s.n; i++ {
			s.mu[i] += col[i] * b
		}
	}
}

// Columns lists the output columns in the order rows are filled.
func (s *Sampler) Columns() []string {
	cols := make([]string, 0, 3*s.p+3)
	for _, t := range s.data.Terms {
		cols = append(cols, posterior.BetaColumn(t))
	}
	for _, t := range s.data.Terms {
		cols = append(cols, posterior.IndicatorColumn(t))
	}
	for _, t := range s.data.Terms {
		cols = append(cols, posterior.Indexed(posterior.PrefixDelta, t))
	}
	cols = append(cols, posterior.ColumnP, posterior.ColumnSigma, posterior.ColumnSigmaInd)
	if s.latent != nil {
		for _, id := range s.sampleIDs() {
			cols = append(cols, posterior.Indexed(posterior.PrefixYTrue, id))
		}
		cols = append(cols, posterior.ColumnNu, posterior.ColumnSDDigest)
	}
	return cols
}

func (s *Sampler) sampleIDs() []string {
	if len(s.data.SampleIDs) == s.n {
		return s.data.SampleIDs
	}
	ids := make([]string, s.n)
	for i := range ids {
		ids[i] = strconv.Itoa(i + 1)
	}
	return ids
}

func (s *Sampler) fill(row []float64) {
	p := s.p
	for t := 0; t < p; t++ {
		row[t] = s.beta[t] * s.g[t]
		row[p+t] = s.g[t]
		row[2*p+t] = s.delta[t]
	}
	row[3*p] = s.prob
	row[3*p+1] = s.sigma
	row[3*p+2] = s.sigmaInd
	if s.latent != nil {
		off := 3*p + 3
		copy(row[off:off+s.n], s.y)
		row[off+s.n] = s.latent.nu
		row[off+s.n+1] = s.latent.sd
	}
}

func (s *Sampler) result(m *posterior.Matrix, start time.Time) *Result {
	d := Diagnostics{
		Retained: m.Rows(),
		Elapsed:  time.Since(start),
	}
	if s.latent != nil {
		d.NuAcceptance = s.latent.acceptanceRate()
	}
	d.Warnings = inspect(m, s.data.Terms, s.latent != nil, d.NuAcceptance)
	return &Result{Samples: m, Diagnostics: d}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func clampScale(v, fallback float64) float64 {
	if math.IsNaN(v) || v <= 0 {
		return fallback
	}
	return math.Min(math.Max(v, 0.01), ScaleUpper*0.99)
}
