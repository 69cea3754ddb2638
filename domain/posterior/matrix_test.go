package posterior

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestParseIndexed(t *testing.T) {
	prefix, name, ok := ParseIndexed("beta[depthdeep:severityHH]")
	require.True(t, ok)
	assert.Equal(t, "beta", prefix)
	assert.Equal(t, "depthdeep:severityHH", name)

	_, _, ok = ParseIndexed("sigma")
	assert.False(t, ok)
	_, _, ok = ParseIndexed("[x]")
	assert.False(t, ok)
}

func TestMatrixColumnsAndHead(t *testing.T) {
	m, err := FromRows([]string{"beta[a]", "ind[a]", "sigma"}, [][]float64{
		{1, 1, 0.5},
		{0, 0, 0.6},
		{2, 1, 0.7},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, m.Rows())
	assert.Equal(t, []string{"a"}, m.Terms())

	col, ok := m.Column("sigma")
	require.True(t, ok)
	assert.Equal(t, []float64{0.5, 0.6, 0.7}, col)

	v, ok := m.At(2, "beta[a]")
	require.True(t, ok)
	assert.Equal(t, 2.0, v)

	head := m.Head(2)
	assert.Equal(t, 2, head.Rows())
	assert.True(t, head.Partial)
	assert.False(t, m.Partial)
}

func TestFromRowsRejectsRaggedRows(t *testing.T) {
	_, err := FromRows([]string{"a", "b"}, [][]float64{{1}})
	assert.Error(t, err)
}

func TestMatrixConcurrentReaders(t *testing.T) {
	m := FromDense([]string{"beta[a]", "ind[a]", "sigma"}, mat.NewDense(2, 3, []float64{1, 1, 0.5, 0, 0, 0.6}), false)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for k := 0; k < 100; k++ {
				j, ok := m.ColumnIndex("sigma")
				assert.True(t, ok)
				assert.Equal(t, 2, j)
				col, _ := m.Column("ind[a]")
				assert.Equal(t, []float64{1, 0}, col)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, m.Head(1).Rows())
	j, ok := m.Head(1).ColumnIndex("sigma")
	assert.True(t, ok)
	assert.Equal(t, 2, j)
}

func TestMatrixLiteralLookup(t *testing.T) {
	m := &Matrix{Columns: []string{"p", "sigma"}, Data: mat.NewDense(1, 2, []float64{0.4, 0.3})}
	v, ok := m.At(0, "sigma")
	require.True(t, ok)
	assert.Equal(t, 0.3, v)
	_, ok = m.ColumnIndex("nu")
	assert.False(t, ok)
	assert.Nil(t, m.index)
}
