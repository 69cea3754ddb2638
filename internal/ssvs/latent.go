package ssvs

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// latentState carries the replicate layer:
//
//	r_sk      ~ StudentT(ytrue_s, sd_digest, nu)
//	nu        = 1 + Exponential(1/29)
//	sd_digest ~ Uniform(0, 10)
//
// The t errors are written as a normal scale mixture with per-replicate
// precision weights lambda_sk ~ Gamma(nu/2, nu/2), which makes ytrue and
// sd_digest conjugate. nu and lambda are updated as one block: nu by a
// Metropolis step against the marginal t likelihood, then lambda fresh
// from its conditional.
type latentState struct {
	reps   [][]float64
	lambda [][]float64
	total  int

	nu, sd float64
	step   float64

	windowAccepted, windowProposed int
	accepted, proposed             int
}

const adaptWindow = 100

func (s *Sampler) initLatent() {
	l := &latentState{step: s.cfg.NuStep, nu: 1 + 1/NuRate}
	if l.step == 0 {
		l.step = 0.5
	}

	var all, within []float64
	for _, r := range s.data.Replicates {
		all = append(all, r...)
	}
	overall, _ := stats.Mean(all)

	s.y = make([]float64, s.n)
	l.reps = make([][]float64, s.n)
	l.lambda = make([][]float64, s.n)
	for i, r := range s.data.Replicates {
		l.reps[i] = r
		l.lambda[i] = make([]float64, len(r))
		for k := range r {
			l.lambda[i][k] = 1
		}
		l.total += len(r)

		if len(r) == 0 {
			s.y[i] = overall
			continue
		}
		m, _ := stats.Mean(r)
		s.y[i] = m
		for _, v := range r {
			within = append(within, v-m)
		}
	}
	sd, _ := stats.StandardDeviationSample(within)
	l.sd = clampScale(sd, 0.1)
	s.latent = l
}

func (s *Sampler) nuLogTarget(nu float64) float64 {
	l := s.latent
	lp := -NuRate * (nu - 1)
	for i, r := range l.reps {
		t := distuv.StudentsT{Mu: s.y[i], Sigma: l.sd, Nu: nu}
		for _, v := range r {
			lp += t.LogProb(v)
		}
	}
	return lp
}

// updateNu is a random walk on log(nu - 1). The step is tuned toward an
// acceptance rate of 0.3-0.5 during burn-in and frozen afterwards.
func (s *Sampler) updateNu(burnIn bool) {
	l := s.latent
	eta := math.Log(l.nu - 1)
	prop := eta + l.step*s.rng.NormFloat64()
	nuProp := 1 + math.Exp(prop)

	accept := false
	if !math.IsInf(nuProp, 0) && nuProp-1 > 1e-10 {
		logA := s.nuLogTarget(nuProp) + prop - s.nuLogTarget(l.nu) - eta
		accept = math.Log(s.rng.Float64()) < logA
	}
	if accept {
		l.nu = nuProp
	}

	if burnIn {
		l.windowProposed++
		if accept {
			l.windowAccepted++
		}
		if l.windowProposed == adaptWindow {
			rate := float64(l.windowAccepted) / adaptWindow
			switch {
			case rate > 0.5:
				l.step *= 1.2
			case rate < 0.3:
				l.step /= 1.2
			}
			l.windowAccepted, l.windowProposed = 0, 0
		}
		return
	}
	l.proposed++
	if accept {
		l.accepted++
	}
}

func (s *Sampler) updateLambda() {
	l := s.latent
	shape := (l.nu + 1) / 2
	for i, r := range l.reps {
		for k, v := range r {
			z := (v - s.y[i]) / l.sd
			l.lambda[i][k] = distuv.Gamma{Alpha: shape, Beta: (l.nu + z*z) / 2, Src: s.rng}.Rand()
		}
	}
}

// updateTruth draws each sample's true value from the product of its
// regression prior and the weighted replicates. Samples without replicates
// are drawn from the regression alone.
func (s *Sampler) updateTruth() {
	l := s.latent
	tauReg := 1 / (s.sigma * s.sigma)
	tauRep := 1 / (l.sd * l.sd)
	for i, r := range l.reps {
		prec := tauReg
		num := tauReg * s.mu[i]
		for k, v := range r {
			w := l.lambda[i][k] * tauRep
			prec += w
			num += w * v
		}
		s.y[i] = num/prec + s.rng.NormFloat64()/math.Sqrt(prec)
	}
}

func (s *Sampler) updateDigestScale() {
	l := s.latent
	ss := 0.0
	for i, r := range l.reps {
		for k, v := range r {
			d := v - s.y[i]
			ss += l.lambda[i][k] * d * d
		}
	}
	l.sd = s.drawScale(float64(l.total-1)/2, ss/2)
}

func (l *latentState) acceptanceRate() float64 {
	if l.proposed == 0 {
		return 0
	}
	return float64(l.accepted) / float64(l.proposed)
}

func sampleSD(v []float64) float64 {
	sd, err := stats.StandardDeviationSample(v)
	if err != nil {
		return math.NaN()
	}
	return sd
}
