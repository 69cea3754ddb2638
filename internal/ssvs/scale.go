package ssvs

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// minPrecision is the smallest precision a Uniform(0, ScaleUpper) standard
// deviation allows.
const minPrecision = 1 / (ScaleUpper * ScaleUpper)

// truncatedGamma draws x ~ Gamma(shape, rate) restricted to x > lower. The
// density stays proper for shape <= 0, which happens for sigma_ind with a
// single term. Draws are made on the unit-rate scale u = x*rate against the
// bound b = lower*rate:
//
//	shape >= 1, b <= shape  plain rejection from the gamma
//	shape >= 1, b > shape   exponential proposal from b (Dagpunar)
//	shape < 1,  b >= 1      b + Exp(1), accepted with (u/b)^(shape-1)
//	shape < 1,  b < 1       mixture of u^(shape-1) on (b,1) and e^-u above 1
func truncatedGamma(rng *rand.Rand, shape, rate, lower float64) float64 {
	b := lower * rate
	for i := 0; i < maxScaleTries; i++ {
		var u float64
		var ok bool
		switch {
		case shape >= 1 && b <= shape:
			u = distuv.Gamma{Alpha: shape, Beta: 1, Src: rng}.Rand()
			ok = u > b
		case shape >= 1:
			u, ok = exponentialTail(rng, shape, b)
		case b >= 1:
			u = b + rng.ExpFloat64()
			ok = rng.Float64() <= math.Pow(u/b, shape-1)
		default:
			u, ok = smallShapeTail(rng, shape, b)
		}
		if ok {
			return u / rate
		}
	}
	return lower
}

func exponentialTail(rng *rand.Rand, shape, b float64) (float64, bool) {
	d := b - shape
	lambda := (d + math.Sqrt(d*d+4*b)) / (2 * b)
	u := b + rng.ExpFloat64()/lambda
	peak := b
	if shape > 1 {
		peak = math.Max(b, (shape-1)/(1-lambda))
	}
	h := func(x float64) float64 { return (shape-1)*math.Log(x) - (1-lambda)*x }
	return u, -rng.ExpFloat64() <= h(u)-h(peak)
}

func smallShapeTail(rng *rand.Rand, shape, b float64) (float64, bool) {
	var head float64
	if shape == 0 {
		head = -math.Log(b)
	} else {
		head = (1 - math.Pow(b, shape)) / shape
	}
	if rng.Float64()*(head+math.Exp(-1)) < head {
		v := rng.Float64()
		var u float64
		if shape == 0 {
			u = math.Exp(math.Log(b) * (1 - v))
		} else {
			u = math.Pow(math.Pow(b, shape)+v*(1-math.Pow(b, shape)), 1/shape)
		}
		return u, rng.Float64() <= math.Exp(-u)
	}
	u := 1 + rng.ExpFloat64()
	return u, rng.Float64() <= math.Pow(u, shape-1)
}
