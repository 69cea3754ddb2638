package ssvs

import (
	"gonum.org/v1/gonum/mat"
)

// EffectiveInclusion maps raw indicators through the constraint matrix:
// term t is included when the dot product of delta with row t of c is
// non-zero. A term whose own raw draw is 1 is therefore always included.
func EffectiveInclusion(c mat.Matrix, delta []float64) []float64 {
	n, _ := c.Dims()
	var counts mat.VecDense
	counts.MulVec(c, mat.NewVecDense(len(delta), append([]float64(nil), delta...)))

	g := make([]float64, n)
	for i := 0; i < n; i++ {
		if counts.AtVec(i) > 0 {
			g[i] = 1
		}
	}
	return g
}
