package design

import (
	"errors"
	"testing"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildConstraints_TwoWayClosure(t *testing.T) {
	c, err := BuildConstraints([]string{"a", "b", "a:b"})
	require.NoError(t, err)

	// a:b requires a, b and itself
	for j := 0; j < 3; j++ {
		assert.Equal(t, 1.0, c.At(2, j), "a:b row, column %d", j)
	}
	// main effects only require themselves
	assert.Equal(t, []float64{1, 0, 0}, []float64{c.At(0, 0), c.At(0, 1), c.At(0, 2)})
	assert.Equal(t, []float64{0, 1, 0}, []float64{c.At(1, 0), c.At(1, 1), c.At(1, 2)})
}

func TestBuildConstraints_ThreeWayTransitive(t *testing.T) {
	names := []string{"a", "b", "c", "a:b", "a:c", "b:c", "a:b:c"}
	c, err := BuildConstraints(names)
	require.NoError(t, err)

	for j := range names {
		assert.True(t, Requires(c, 6, j), "a:b:c must require %s", names[j])
	}
	assert.True(t, Requires(c, 3, 0))
	assert.True(t, Requires(c, 3, 1))
	assert.False(t, Requires(c, 3, 2), "a:b must not require c")
	assert.False(t, Requires(c, 3, 4), "a:b must not require a:c")
}

func TestBuildConstraints_Reflexive(t *testing.T) {
	names := []string{"(Intercept)", "x1", "y1", "y2", "x1:y1", "x1:y2"}
	c, err := BuildConstraints(names)
	require.NoError(t, err)
	for i := range names {
		assert.Equal(t, 1.0, c.At(i, i), "diagonal entry %s", names[i])
	}
}

func TestBuildConstraints_MissingComponent(t *testing.T) {
	_, err := BuildConstraints([]string{"a", "a:b"})
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
	assert.True(t, errors.Is(err, core.ErrMissingTerm))
	assert.Contains(t, err.Error(), `"b"`)
}

func TestBuildConstraints_DuplicateNames(t *testing.T) {
	_, err := BuildConstraints([]string{"a", "b", "a"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrDuplicateTerm))
	assert.True(t, core.IsConfigurationError(err))
}

func TestParseFormula(t *testing.T) {
	tests := []struct {
		src       string
		expected  string
		intercept bool
	}{
		{"~ depth*severity", "~ depth + severity + depth:severity", true},
		{"~ a:b", "~ a:b", true},
		{"y ~ a", "", false},
		{"~ (a + b + c)^2", "~ a + b + c + a:b + a:c + b:c", true},
		{"~ a*b*c", "~ a + b + c + a:b + a:c + b:c + a:b:c", true},
		{"~ a + b - 1", "~ -1 + a + b", false},
		{"~ (depth + severity)^2 + baseline_total_carbon", "~ depth + severity + baseline_total_carbon + depth:severity", true},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			f, err := ParseFormula(tt.src)
			if tt.expected == "" {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f.String())
			assert.Equal(t, tt.intercept, f.Intercept)
		})
	}
}

func TestParseFormula_Errors(t *testing.T) {
	for _, src := range []string{"~", "~ a +", "~ (a + b", "~ a - b", "~ a^0", "~ a $ b"} {
		_, err := ParseFormula(src)
		assert.Error(t, err, src)
		assert.True(t, core.IsConfigurationError(err), src)
	}
}

func depthSeverityRows() []soil.Observation {
	var obs []soil.Observation
	for _, d := range []string{"0-5cm", "5-15cm"} {
		for _, s := range soil.SeverityLevels {
			obs = append(obs, soil.Observation{Depth: d, Severity: s, Microsite: "open", Response: 1})
		}
	}
	return obs
}

func TestBuild_DepthBySeverity(t *testing.T) {
	d, err := Build(Spec{
		Formula: "~ depth*severity",
		Levels:  map[string][]string{soil.FactorSeverity: soil.SeverityLevels},
	}, RowsOf(depthSeverityRows()))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"(Intercept)",
		"depth5-15cm",
		"severityLH", "severityHL", "severityHH",
		"depth5-15cm:severityLH", "depth5-15cm:severityHL", "depth5-15cm:severityHH",
	}, d.Names())

	rows, cols := d.X.Dims()
	assert.Equal(t, 8, rows)
	assert.Equal(t, 8, cols)

	// row 7 is depth 5-15cm, severity HH
	assert.Equal(t, []float64{1, 1, 0, 0, 1, 0, 0, 1}, rowOf(d, 7))
	// row 0 is the reference cell
	assert.Equal(t, []float64{1, 0, 0, 0, 0, 0, 0, 0}, rowOf(d, 0))

	for i := range d.Terms {
		assert.Equal(t, 1.0, d.Constraints.At(i, i))
	}
	// interaction depth5-15cm:severityHL requires both parents
	assert.True(t, Requires(d.Constraints, 6, 1))
	assert.True(t, Requires(d.Constraints, 6, 3))
	assert.False(t, Requires(d.Constraints, 6, 2))
}

func TestBuild_NumericCovariate(t *testing.T) {
	obs := depthSeverityRows()
	for i := range obs {
		obs[i].BaselineTotalCarbon = float64(i)
	}
	d, err := Build(Spec{Formula: "~ depth + baseline_total_carbon"}, RowsOf(obs))
	require.NoError(t, err)
	assert.Equal(t, []string{"(Intercept)", "depth5-15cm", "baseline_total_carbon"}, d.Names())
	assert.Equal(t, 5.0, d.X.At(5, 2))

	v, ok := d.Variable(soil.CovariateBaseline)
	require.True(t, ok)
	assert.False(t, v.Categorical())
}

func TestBuild_InteractionWithoutMainEffects(t *testing.T) {
	_, err := Build(Spec{Formula: "~ depth:severity"}, RowsOf(depthSeverityRows()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrMissingTerm))
}

func TestBuild_UnknownDeclaredLevel(t *testing.T) {
	_, err := Build(Spec{
		Formula: "~ severity",
		Levels:  map[string][]string{soil.FactorSeverity: {"LL", "HH"}},
	}, RowsOf(depthSeverityRows()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownLevel))
}

func TestEncode_RejectsUnseenLevel(t *testing.T) {
	d, err := Build(Spec{Formula: "~ depth"}, RowsOf(depthSeverityRows()))
	require.NoError(t, err)

	_, err = d.Encode(RowsOf([]soil.Observation{{Depth: "15-30cm"}}))
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func rowOf(d *Design, i int) []float64 {
	_, cols := d.X.Dims()
	out := make([]float64, cols)
	for j := range out {
		out[j] = d.X.At(i, j)
	}
	return out
}
