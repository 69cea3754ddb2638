// Package predict builds the prediction case grid and draws the posterior
// predictive distribution for it.
package predict

import (
	"sort"
	"strings"

	"firecarbon/domain/core"
	"firecarbon/internal/design"

	"github.com/montanaflynn/stats"
)

// Case is one combination of factor levels. Numeric covariates carry the
// mean of the observations in the same cell.
type Case struct {
	Name   string             `json:"name"`
	Levels map[string]string  `json:"levels"`
	Values map[string]float64 `json:"values,omitempty"`
}

// Level implements design.Row.
func (c Case) Level(factor string) (string, bool) {
	l, ok := c.Levels[factor]
	return l, ok
}

// Value implements design.Row.
func (c Case) Value(covariate string) (float64, bool) {
	v, ok := c.Values[covariate]
	return v, ok
}

// Grid enumerates the cross product of the factors' levels, first factor
// varying slowest. Each numeric covariate is set to its mean over the rows
// in that cell, or over all rows when the cell was never observed.
func Grid(rows []design.Row, factors []design.Variable, numeric []string) ([]Case, error) {
	if len(rows) == 0 {
		return nil, core.ErrInsufficientData
	}
	for _, f := range factors {
		if !f.Categorical() {
			return nil, core.NewConfigurationError("grid factor %q has no levels", f.Name)
		}
	}

	overall := make(map[string]float64, len(numeric))
	cells := make(map[string]map[string][]float64)
	for _, name := range numeric {
		var all []float64
		for _, r := range rows {
			v, ok := r.Value(name)
			if !ok {
				return nil, core.NewConfigurationError("missing numeric covariate %q", name)
			}
			all = append(all, v)

			key, ok := cellKey(r, factors)
			if !ok {
				continue
			}
			if cells[key] == nil {
				cells[key] = make(map[string][]float64)
			}
			cells[key][name] = append(cells[key][name], v)
		}
		overall[name], _ = stats.Mean(all)
	}

	combos := [][]string{{}}
	for _, f := range factors {
		next := make([][]string, 0, len(combos)*len(f.Levels))
		for _, prefix := range combos {
			for _, l := range f.Levels {
				next = append(next, append(append([]string(nil), prefix...), l))
			}
		}
		combos = next
	}

	cases := make([]Case, 0, len(combos))
	for _, levels := range combos {
		c := Case{Levels: make(map[string]string, len(factors))}
		parts := make([]string, len(factors))
		for i, f := range factors {
			c.Levels[f.Name] = levels[i]
			parts[i] = f.Name + "=" + levels[i]
		}
		c.Name = strings.Join(parts, ",")

		if len(numeric) > 0 {
			c.Values = make(map[string]float64, len(numeric))
			for _, name := range numeric {
				if vals := cells[c.Name][name]; len(vals) > 0 {
					c.Values[name], _ = stats.Mean(vals)
				} else {
					c.Values[name] = overall[name]
				}
			}
		}
		cases = append(cases, c)
	}
	return cases, nil
}

func cellKey(r design.Row, factors []design.Variable) (string, bool) {
	parts := make([]string, len(factors))
	for i, f := range factors {
		l, ok := r.Level(f.Name)
		if !ok {
			return "", false
		}
		parts[i] = f.Name + "=" + l
	}
	return strings.Join(parts, ","), true
}

// Factors picks the categorical variables of a design, optionally limited
// to the named ones, in design order.
func Factors(d *design.Design, only ...string) []design.Variable {
	var out []design.Variable
	for _, v := range d.Variables {
		if !v.Categorical() {
			continue
		}
		if len(only) > 0 && !contains(only, v.Name) {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Covariates lists the numeric variables of a design, sorted by name.
func Covariates(d *design.Design) []string {
	var out []string
	for _, v := range d.Variables {
		if !v.Categorical() {
			out = append(out, v.Name)
		}
	}
	sort.Strings(out)
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
