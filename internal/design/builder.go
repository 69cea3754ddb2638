// Package design expands model formulas into a treatment-coded design
// matrix and the hierarchical constraint matrix used by the sampler.
package design

import (
	"fmt"
	"math"
	"strings"

	"firecarbon/domain/core"

	"gonum.org/v1/gonum/mat"
)

// InterceptName is the column name of the intercept term.
const InterceptName = "(Intercept)"

// Row is one record the builder can encode.
type Row interface {
	// Level returns the level of a categorical variable.
	Level(factor string) (string, bool)
	// Value returns a numeric covariate.
	Value(covariate string) (float64, bool)
}

// RowsOf adapts a typed slice to the builder's row interface.
func RowsOf[R Row](rows []R) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

// Variable is a formula variable. Categorical variables carry their levels;
// the first level is the reference and gets no column.
type Variable struct {
	Name   string   `json:"name" yaml:"name"`
	Levels []string `json:"levels,omitempty" yaml:"levels,omitempty"`
}

// Categorical reports whether the variable is a factor.
func (v Variable) Categorical() bool { return len(v.Levels) > 0 }

// Component is one factor level (or numeric covariate) inside a term.
type Component struct {
	Variable string
	Level    string
}

// Name is the column name of the component.
func (c Component) Name() string { return c.Variable + c.Level }

// Term is one design column.
type Term struct {
	Name       string
	Components []Component
}

// Order is the number of components; the intercept has order 1.
func (t Term) Order() int {
	if len(t.Components) == 0 {
		return 1
	}
	return len(t.Components)
}

// Spec configures a build: the formula and optional explicit level orders.
type Spec struct {
	Formula string              `json:"formula" yaml:"formula"`
	Levels  map[string][]string `json:"levels,omitempty" yaml:"levels,omitempty"`
}

// Design is an expanded design: matrix, terms and constraints.
type Design struct {
	Formula     Formula
	Variables   []Variable
	Terms       []Term
	X           *mat.Dense
	Constraints *mat.Dense
}

// Names returns the term names in column order.
func (d *Design) Names() []string {
	names := make([]string, len(d.Terms))
	for i, t := range d.Terms {
		names[i] = t.Name
	}
	return names
}

// Variable looks a formula variable up by name.
func (d *Design) Variable(name string) (Variable, bool) {
	for _, v := range d.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Build parses the formula, resolves variables against the rows and encodes
// the design matrix.
func Build(spec Spec, rows []Row) (*Design, error) {
	if len(rows) == 0 {
		return nil, core.ErrInsufficientData
	}
	f, err := ParseFormula(spec.Formula)
	if err != nil {
		return nil, err
	}

	vars := make([]Variable, 0, len(f.Variables))
	for _, name := range f.Variables {
		v, err := resolveVariable(name, spec.Levels[name], rows)
		if err != nil {
			return nil, err
		}
		vars = append(vars, v)
	}

	d := &Design{Formula: f, Variables: vars}
	d.Terms = expandTerms(f, vars)

	d.Constraints, err = BuildConstraints(d.Names())
	if err != nil {
		return nil, err
	}
	d.X, err = d.Encode(rows)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Encode builds a design matrix for new rows with this design's terms.
func (d *Design) Encode(rows []Row) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, core.ErrInsufficientData
	}
	byName := make(map[string]Variable, len(d.Variables))
	for _, v := range d.Variables {
		byName[v.Name] = v
	}

	x := mat.NewDense(len(rows), len(d.Terms), nil)
	for i, row := range rows {
		for j, term := range d.Terms {
			val := 1.0
			for _, c := range term.Components {
				v, err := componentValue(byName[c.Variable], c, row)
				if err != nil {
					return nil, err
				}
				val *= v
			}
			x.Set(i, j, val)
		}
	}
	return x, nil
}

func componentValue(v Variable, c Component, row Row) (float64, error) {
	if !v.Categorical() {
		val, ok := row.Value(v.Name)
		if !ok || math.IsNaN(val) {
			return 0, core.NewConfigurationError("missing numeric covariate %q", v.Name)
		}
		return val, nil
	}
	level, ok := row.Level(v.Name)
	if !ok {
		return 0, core.NewConfigurationError("missing level for factor %q", v.Name)
	}
	if !containsString(v.Levels, level) {
		return 0, fmt.Errorf("%w: %s=%q", core.ErrUnknownLevel, v.Name, level)
	}
	if level == c.Level {
		return 1, nil
	}
	return 0, nil
}

// resolveVariable decides whether a formula variable is categorical and
// which levels it has. Declared levels keep their order but unobserved
// levels are dropped; undeclared factors use order of first appearance.
func resolveVariable(name string, declared []string, rows []Row) (Variable, error) {
	if _, ok := rows[0].Level(name); !ok {
		if _, ok := rows[0].Value(name); ok {
			return Variable{Name: name}, nil
		}
		return Variable{}, core.NewConfigurationError("variable %q not present in data", name)
	}

	var observed []string
	for _, r := range rows {
		level, ok := r.Level(name)
		if !ok {
			return Variable{}, core.NewConfigurationError("missing level for factor %q", name)
		}
		if strings.Contains(level, InteractionSep) {
			return Variable{}, core.NewConfigurationError("level %q of %q contains %q", level, name, InteractionSep)
		}
		if !containsString(observed, level) {
			observed = append(observed, level)
		}
	}

	if len(declared) == 0 {
		return Variable{Name: name, Levels: observed}, nil
	}
	var levels []string
	for _, l := range declared {
		if containsString(observed, l) {
			levels = append(levels, l)
		}
	}
	for _, l := range observed {
		if !containsString(declared, l) {
			return Variable{}, fmt.Errorf("%w: %s=%q", core.ErrUnknownLevel, name, l)
		}
	}
	return Variable{Name: name, Levels: levels}, nil
}

// expandTerms turns variable tuples into columns: each categorical variable
// contributes its non-reference levels, interactions take the product.
func expandTerms(f Formula, vars []Variable) []Term {
	byName := make(map[string]Variable, len(vars))
	for _, v := range vars {
		byName[v.Name] = v
	}

	var terms []Term
	if f.Intercept {
		terms = append(terms, Term{Name: InterceptName})
	}
	for _, tuple := range f.Tuples {
		combos := [][]Component{{}}
		for _, name := range tuple {
			v := byName[name]
			var options []Component
			if v.Categorical() {
				for _, l := range v.Levels[1:] {
					options = append(options, Component{Variable: name, Level: l})
				}
			} else {
				options = []Component{{Variable: name}}
			}
			next := make([][]Component, 0, len(combos)*len(options))
			for _, opt := range options {
				for _, prefix := range combos {
					next = append(next, append(append([]Component(nil), prefix...), opt))
				}
			}
			combos = next
		}
		for _, comps := range combos {
			if len(comps) == 0 {
				continue
			}
			names := make([]string, len(comps))
			for i, c := range comps {
				names[i] = c.Name()
			}
			terms = append(terms, Term{Name: strings.Join(names, InteractionSep), Components: comps})
		}
	}
	return terms
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
