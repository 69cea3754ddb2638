package excel

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var quiet = internal.NewLogger(internal.LogLevelError)

// writeWorkbook lays each sheet out as rows of A/B/C cells.
func writeWorkbook(t *testing.T, sheets map[string][][]string, order []string) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, name := range order {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", name))
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for r, row := range sheets[name] {
			for c, v := range row {
				if v == "" {
					continue
				}
				ref, err := excelize.CoordinatesToCellName(c+1, r+1)
				require.NoError(t, err)
				require.NoError(t, f.SetCellStr(name, ref, v))
			}
		}
	}

	path := filepath.Join(t.TempDir(), "digests.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestDigestLoader_LastNonBlankLabel(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"plate1": {
			{"Digest run 2014-05", "", ""},
			{"", "", ""},
			{"S-12", "1", "2.31"},
			{"S-12", "2", "2.45"},
			{"", "note", "re-run"},
			{"S-12", "3", "2.38"},
			{"", "", ""},
		},
		"plate2": {
			{"Label", "Pos", "Value"},
			{"S-40", "1", "0.91"},
		},
	}, []string{"plate1", "plate2"})

	l, err := NewDigestLoader(path, []int{0, 1}, "a", "B", "C", quiet)
	require.NoError(t, err)

	rows, err := l.LoadDigests(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []soil.DigestRow{
		{Sheet: "plate1", SampleLabel: "S-12", Position: "1", RawValue: "2.31"},
		{Sheet: "plate1", SampleLabel: "S-12", Position: "2", RawValue: "2.45"},
		{Sheet: "plate1", SampleLabel: "S-12", Position: "3", RawValue: "2.38"},
		{Sheet: "plate2", SampleLabel: "S-40", Position: "1", RawValue: "0.91"},
	}, rows)
}

func TestDigestLoader_SheetSubset(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"a": {{"X", "1", "1"}},
		"b": {{"Y", "1", "2"}},
	}, []string{"a", "b"})

	l, err := NewDigestLoader(path, []int{1}, "A", "B", "C", quiet)
	require.NoError(t, err)
	rows, err := l.LoadDigests(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Y", rows[0].SampleLabel)
}

func TestDigestLoader_NoLabel(t *testing.T) {
	path := writeWorkbook(t, map[string][][]string{
		"empty": {{"", "1", "2"}, {"", "2", "3"}},
	}, []string{"empty"})

	l, err := NewDigestLoader(path, []int{0}, "A", "B", "C", quiet)
	require.NoError(t, err)
	_, err = l.LoadDigests(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrNoSampleLabel))
	assert.True(t, core.IsDataLoadError(err))
	assert.Contains(t, err.Error(), path)
}

func TestDigestLoader_Errors(t *testing.T) {
	_, err := NewDigestLoader("x.xlsx", []int{0}, "1", "B", "C", quiet)
	assert.True(t, core.IsConfigurationError(err))

	path := writeWorkbook(t, map[string][][]string{"only": {{"S", "1", "1"}}}, []string{"only"})
	l, err := NewDigestLoader(path, []int{3}, "A", "B", "C", quiet)
	require.NoError(t, err)
	_, err = l.LoadDigests(context.Background())
	assert.True(t, core.IsDataLoadError(err))

	l.Path = filepath.Join(t.TempDir(), "missing.xlsx")
	_, err = l.LoadDigests(context.Background())
	assert.True(t, core.IsDataLoadError(err))
}

func TestTableReader_CSVAndWorkbook(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "obs.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(" sample_id ,depth\nS-1, 0-5cm\n,\nS-2,5-15cm\n"), 0644))

	table, err := NewTableReader(csvPath, quiet).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"sample_id", "depth"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "0-5cm", table.Rows[0]["depth"])
	assert.True(t, table.Has("depth"))
	assert.False(t, table.Has("severity"))

	xlsx := writeWorkbook(t, map[string][][]string{
		"obs": {{"sample_id", "depth"}, {"S-1", "0-5cm"}},
	}, []string{"obs"})
	table, err = NewTableReader(xlsx, quiet).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S-1", table.Rows[0]["sample_id"])

	_, err = NewTableReader(filepath.Join(dir, "none.csv"), quiet).Read(context.Background())
	assert.True(t, core.IsDataLoadError(err))
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", ColumnLetter(0))
	assert.Equal(t, "Z", ColumnLetter(25))
	assert.Equal(t, "AA", ColumnLetter(26))
}
