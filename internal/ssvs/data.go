package ssvs

import (
	"fmt"

	"firecarbon/domain/core"
	"firecarbon/internal/design"

	"gonum.org/v1/gonum/mat"
)

// Data is the sampler input. Exactly one of Response and Replicates is set:
// Response for the direct model, Replicates (one ragged slice per design
// row) for the latent-truth model.
type Data struct {
	X           *mat.Dense
	Terms       []string
	Constraints *mat.Dense

	Response []float64

	Replicates [][]float64
	SampleIDs  []string
}

// FromDesign fills the design part of Data.
func FromDesign(d *design.Design) Data {
	return Data{X: d.X, Terms: d.Names(), Constraints: d.Constraints}
}

// Latent reports whether the replicate layer is active.
func (d Data) Latent() bool {
	return d.Replicates != nil
}

// Validate checks dimensions and term-name uniqueness. Uniqueness matters
// because the inclusion rule reads constraint rows by position and assumes
// each name maps to exactly one column.
func (d Data) Validate() error {
	if d.X == nil {
		return core.NewConfigurationError("design matrix is empty")
	}
	n, p := d.X.Dims()
	if len(d.Terms) != p {
		return core.NewConfigurationError("%d term names for %d design columns", len(d.Terms), p)
	}
	seen := make(map[string]bool, p)
	for _, t := range d.Terms {
		if seen[t] {
			return fmt.Errorf("%w: %q", core.ErrDuplicateTerm, t)
		}
		seen[t] = true
	}
	if d.Constraints == nil {
		return core.NewConfigurationError("constraint matrix is empty")
	}
	if r, c := d.Constraints.Dims(); r != p || c != p {
		return core.NewConfigurationError("constraint matrix is %dx%d, expected %dx%d", r, c, p, p)
	}
	for i := 0; i < p; i++ {
		if d.Constraints.At(i, i) == 0 {
			return core.NewConfigurationError("constraint matrix is not reflexive at %q", d.Terms[i])
		}
	}

	switch {
	case d.Latent() && d.Response != nil:
		return core.NewConfigurationError("both a response and replicates were supplied")
	case d.Latent():
		if len(d.Replicates) != n {
			return core.NewConfigurationError("%d replicate groups for %d design rows", len(d.Replicates), n)
		}
		if len(d.SampleIDs) != 0 && len(d.SampleIDs) != n {
			return core.NewConfigurationError("%d sample ids for %d design rows", len(d.SampleIDs), n)
		}
		total := 0
		for _, r := range d.Replicates {
			total += len(r)
		}
		if total < 2 {
			return fmt.Errorf("%w: need at least two replicate measurements", core.ErrInsufficientData)
		}
	default:
		if len(d.Response) != n {
			return core.NewConfigurationError("%d responses for %d design rows", len(d.Response), n)
		}
	}
	if n < 2 {
		return fmt.Errorf("%w: need at least two observations", core.ErrInsufficientData)
	}
	return nil
}
