package predict

import (
	"context"
	"math/rand/v2"
	"sort"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"
	"firecarbon/internal/design"
	"firecarbon/internal/summary"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// Generate draws one predictive value per case and retained iteration:
// Normal(X·beta_s, sigma_s) where beta_s and sigma_s come from the same row
// s of the posterior matrix. Rows of the result are cases, columns draws.
//
// Draws are taken column by column, case by case, so the same matrix, grid
// and rng state always reproduce the same values.
func Generate(ctx context.Context, m *posterior.Matrix, terms []string, x mat.Matrix, rng *rand.Rand) (*posterior.Predictions, error) {
	cases, p := x.Dims()
	if p != len(terms) {
		return nil, core.NewConfigurationError("prediction design has %d columns for %d terms", p, len(terms))
	}
	draws := m.Rows()
	if draws == 0 {
		return nil, core.ErrInsufficientData
	}

	cols := make([]int, p)
	for t, term := range terms {
		j, ok := m.ColumnIndex(posterior.BetaColumn(term))
		if !ok {
			return nil, core.NewConfigurationError("posterior matrix has no %q column", posterior.BetaColumn(term))
		}
		cols[t] = j
	}
	sigma, ok := m.Column(posterior.ColumnSigma)
	if !ok {
		return nil, core.NewConfigurationError("posterior matrix has no %q column", posterior.ColumnSigma)
	}

	// B is terms x draws; X·B gives every case mean for every draw.
	b := mat.NewDense(p, draws, nil)
	for t, j := range cols {
		b.SetRow(t, mat.Col(nil, j, m.Data))
	}
	out := mat.NewDense(cases, draws, nil)
	out.Mul(x, b)

	for s := 0; s < draws; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i < cases; i++ {
			out.Set(i, s, out.At(i, s)+sigma[s]*rng.NormFloat64())
		}
	}
	return &posterior.Predictions{Data: out}, nil
}

// Predict encodes the cases with the fitted design and generates their
// predictive draws.
func Predict(ctx context.Context, m *posterior.Matrix, d *design.Design, cases []Case, rng *rand.Rand) (*posterior.Predictions, error) {
	x, err := d.Encode(design.RowsOf(cases))
	if err != nil {
		return nil, err
	}
	pred, err := Generate(ctx, m, d.Names(), x, rng)
	if err != nil {
		return nil, err
	}
	pred.Cases = make([]string, len(cases))
	for i, c := range cases {
		pred.Cases[i] = c.Name
	}
	return pred, nil
}

// CaseSummary is the predictive mean and 95% interval of one case.
type CaseSummary struct {
	Case  string  `json:"case"`
	Mean  float64 `json:"mean"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Summarise reduces each case's draws to a mean and central interval.
func Summarise(p *posterior.Predictions) []CaseSummary {
	rows, _ := p.Data.Dims()
	out := make([]CaseSummary, rows)
	for i := 0; i < rows; i++ {
		draws := p.Draws(i)
		cs := CaseSummary{Case: caseName(p, i)}
		cs.Mean, _ = stats.Mean(draws)
		sort.Float64s(draws)
		cs.Lower = summary.Quantile(summary.LowerProb, draws)
		cs.Upper = summary.Quantile(summary.UpperProb, draws)
		out[i] = cs
	}
	return out
}

func caseName(p *posterior.Predictions, i int) string {
	if i < len(p.Cases) {
		return p.Cases[i]
	}
	return ""
}
