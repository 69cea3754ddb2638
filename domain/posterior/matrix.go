// Package posterior defines the sample and prediction matrices that flow
// from the sampler to the reporting layer.
package posterior

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Column prefixes for per-term and per-sample parameters.
const (
	PrefixBeta      = "beta"
	PrefixIndicator = "ind"
	PrefixDelta     = "delta"
	PrefixYTrue     = "ytrue"

	ColumnP        = "p"
	ColumnSigma    = "sigma"
	ColumnSigmaInd = "sigma_ind"
	ColumnNu       = "nu"
	ColumnSDDigest = "sd_digest"
)

// Indexed builds a column name such as beta[depthdeep].
func Indexed(prefix, name string) string {
	return prefix + "[" + name + "]"
}

// BetaColumn names the effective coefficient column of a term.
func BetaColumn(term string) string { return Indexed(PrefixBeta, term) }

// IndicatorColumn names the effective inclusion column of a term.
func IndicatorColumn(term string) string { return Indexed(PrefixIndicator, term) }

// ParseIndexed splits beta[x] into ("beta", "x").
func ParseIndexed(column string) (prefix, name string, ok bool) {
	open := strings.IndexByte(column, '[')
	if open <= 0 || !strings.HasSuffix(column, "]") {
		return "", "", false
	}
	return column[:open], column[open+1 : len(column)-1], true
}

// Matrix is a retained posterior sample: rows are iterations, columns are
// named parameters. It is not modified after the sampler returns it, so
// concurrent readers are safe. Build it with NewMatrix, FromRows or
// FromDense; Columns must not change afterwards.
type Matrix struct {
	Columns []string
	Data    *mat.Dense

	// Partial is set when the chain stopped before the planned iteration count.
	Partial bool

	index map[string]int
}

// NewMatrix allocates a zeroed matrix with the given columns.
func NewMatrix(columns []string, rows int) *Matrix {
	var data *mat.Dense
	if rows > 0 && len(columns) > 0 {
		data = mat.NewDense(rows, len(columns), nil)
	}
	return FromDense(append([]string(nil), columns...), data, false)
}

// FromDense wraps existing sample data without copying it.
func FromDense(columns []string, data *mat.Dense, partial bool) *Matrix {
	m := &Matrix{Columns: columns, Data: data, Partial: partial}
	m.index = make(map[string]int, len(columns))
	for i, c := range columns {
		m.index[c] = i
	}
	return m
}

// FromRows builds a matrix from row-major values; used by tests and
// external callers that already hold samples.
func FromRows(columns []string, rows [][]float64) (*Matrix, error) {
	m := NewMatrix(columns, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(columns))
		}
		m.Data.SetRow(i, row)
	}
	return m, nil
}

// Rows returns the number of retained iterations.
func (m *Matrix) Rows() int {
	if m.Data == nil {
		return 0
	}
	r, _ := m.Data.Dims()
	return r
}

// ColumnIndex returns the position of a named column. A literal Matrix
// without an index is searched linearly.
func (m *Matrix) ColumnIndex(name string) (int, bool) {
	if m.index != nil {
		i, ok := m.index[name]
		return i, ok
	}
	for i, c := range m.Columns {
		if c == name {
			return i, true
		}
	}
	return 0, false
}

// Column copies a named column out of the matrix.
func (m *Matrix) Column(name string) ([]float64, bool) {
	j, ok := m.ColumnIndex(name)
	if !ok {
		return nil, false
	}
	return mat.Col(nil, j, m.Data), true
}

// At returns one value by row and column name.
func (m *Matrix) At(row int, name string) (float64, bool) {
	j, ok := m.ColumnIndex(name)
	if !ok {
		return 0, false
	}
	return m.Data.At(row, j), true
}

// Head returns a matrix holding only the first n rows.
func (m *Matrix) Head(n int) *Matrix {
	if n >= m.Rows() {
		return m
	}
	var data *mat.Dense
	if n > 0 {
		_, c := m.Data.Dims()
		data = mat.DenseCopyOf(m.Data.Slice(0, n, 0, c))
	}
	return FromDense(m.Columns, data, true)
}

// Terms returns the term names carrying a beta column, in column order.
func (m *Matrix) Terms() []string {
	var terms []string
	for _, c := range m.Columns {
		if prefix, name, ok := ParseIndexed(c); ok && prefix == PrefixBeta {
			terms = append(terms, name)
		}
	}
	return terms
}

// Predictions is a posterior predictive matrix: rows are prediction cases,
// columns are retained posterior draws.
type Predictions struct {
	Cases []string
	Data  *mat.Dense
}

// Draws returns the predictive draws of one case.
func (p *Predictions) Draws(caseIndex int) []float64 {
	return mat.Row(nil, caseIndex, p.Data)
}
