package artifacts

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"firecarbon/internal/predict"
	"firecarbon/internal/summary"
)

// ImportanceHeader is the exact header of the variable importance table.
var ImportanceHeader = []string{"Variable", "PercentInclusion", "MeanIncluded", "MeanOverall", "Lower", "Upper", "NonZero"}

// PredictionHeader is the header of the per-case prediction table.
var PredictionHeader = []string{"Case", "Mean", "Lower", "Upper"}

// WriteImportance writes the variable importance table without a row index.
// NonZero is written as TRUE/FALSE.
func WriteImportance(w io.Writer, rows []summary.VariableImportance) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ImportanceHeader); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.Variable,
			formatFloat(r.PercentInclusion),
			formatFloat(r.MeanIncluded),
			formatFloat(r.MeanOverall),
			formatFloat(r.Lower),
			formatFloat(r.Upper),
			formatBool(r.NonZero),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePredictions writes one row per prediction case.
func WritePredictions(w io.Writer, rows []predict.CaseSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(PredictionHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Case, formatFloat(r.Mean), formatFloat(r.Lower), formatFloat(r.Upper)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadImportance parses a table written by WriteImportance.
func ReadImportance(r io.Reader) ([]summary.VariableImportance, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty variable importance table")
	}
	out := make([]summary.VariableImportance, 0, len(records)-1)
	for i, rec := range records[1:] {
		if len(rec) != len(ImportanceHeader) {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", i+2, len(rec), len(ImportanceHeader))
		}
		var v summary.VariableImportance
		v.Variable = rec[0]
		nums := []*float64{&v.PercentInclusion, &v.MeanIncluded, &v.MeanOverall, &v.Lower, &v.Upper}
		for k, dst := range nums {
			if *dst, err = strconv.ParseFloat(rec[k+1], 64); err != nil {
				return nil, fmt.Errorf("line %d: %w", i+2, err)
			}
		}
		v.NonZero = rec[6] == "TRUE"
		out = append(out, v)
	}
	return out, nil
}

// WriteFile creates path (and its directory) and fills it with write.
func WriteFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
