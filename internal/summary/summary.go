// Package summary reduces a posterior sample matrix to per-term variable
// importance: inclusion frequency and coefficient summaries.
package summary

import (
	"math"
	"sort"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"

	"github.com/montanaflynn/stats"
)

// Interval bounds of the included-draw credible interval.
const (
	LowerProb = 0.025
	UpperProb = 0.975
)

// VariableImportance is one row of the variable importance table.
type VariableImportance struct {
	Variable         string  `json:"variable"`
	PercentInclusion float64 `json:"percent_inclusion"`
	MeanIncluded     float64 `json:"mean_included"`
	MeanOverall      float64 `json:"mean_overall"`
	Lower            float64 `json:"lower"`
	Upper            float64 `json:"upper"`
	NonZero          bool    `json:"non_zero"`
}

// Extract summarises every ind[x] column against its beta[x] partner and
// returns the rows ordered by descending PercentInclusion. Ties keep the
// column order of the matrix.
//
// The beta columns hold effective coefficients (zero when excluded), so the
// overall mean is taken over all draws directly.
func Extract(m *posterior.Matrix) ([]VariableImportance, error) {
	var terms []string
	for _, c := range m.Columns {
		prefix, name, ok := posterior.ParseIndexed(c)
		if !ok || prefix != posterior.PrefixIndicator {
			continue
		}
		if _, ok := m.ColumnIndex(posterior.BetaColumn(name)); !ok {
			return nil, core.NewUnpairedColumnError(c, posterior.BetaColumn(name))
		}
		terms = append(terms, name)
	}
	if len(terms) == 0 {
		return nil, core.NewConfigurationError("no inclusion columns in posterior matrix")
	}
	if m.Rows() == 0 {
		return nil, core.ErrInsufficientData
	}

	out := make([]VariableImportance, 0, len(terms))
	for _, term := range terms {
		ind, _ := m.Column(posterior.IndicatorColumn(term))
		beta, _ := m.Column(posterior.BetaColumn(term))
		out = append(out, summarise(term, ind, beta))
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PercentInclusion > out[j].PercentInclusion
	})
	return out, nil
}

func summarise(term string, ind, beta []float64) VariableImportance {
	v := VariableImportance{Variable: term}

	included := make([]float64, 0, len(beta))
	for i, g := range ind {
		if g == 1 {
			included = append(included, beta[i])
		}
	}
	// 100*count/n: 3 of 10 must read 30, not 30.000000000000004
	v.PercentInclusion = float64(100*len(included)) / float64(len(ind))
	v.MeanOverall, _ = stats.Mean(beta)

	if len(included) == 0 {
		return v
	}
	v.MeanIncluded, _ = stats.Mean(included)

	sort.Float64s(included)
	v.Lower = Quantile(LowerProb, included)
	v.Upper = Quantile(UpperProb, included)
	v.NonZero = ExcludesZero(v.Lower, v.Upper)
	return v
}

// Quantile returns the p-quantile of sorted data, interpolating linearly
// between the order statistics around h = (n-1)p. This is R's default
// (type 7) estimator; gonum's stat.LinInterp is type 4 and runs low in the
// upper tail.
func Quantile(p float64, sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	h := float64(n-1) * p
	lo := math.Floor(h)
	i := int(lo)
	if i >= n-1 {
		return sorted[n-1]
	}
	if i < 0 {
		return sorted[0]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

// ExcludesZero reports whether [lower, upper] lies strictly on one side of
// zero.
func ExcludesZero(lower, upper float64) bool {
	return (lower > 0 && upper > 0) || (lower < 0 && upper < 0)
}

// Included returns the rows flagged NonZero, in table order.
func Included(rows []VariableImportance) []VariableImportance {
	var out []VariableImportance
	for _, r := range rows {
		if r.NonZero {
			out = append(out, r)
		}
	}
	return out
}
