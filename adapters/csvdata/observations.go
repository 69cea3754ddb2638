// Package csvdata loads field observation tables and joins laboratory
// digest replicates onto them.
package csvdata

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"firecarbon/adapters/excel"
	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal"
	"firecarbon/ports"
)

// Column names of the observation table.
const (
	ColumnSampleID = "sample_id"
	ColumnCarbon   = "carbon"
)

var requiredColumns = []string{ColumnSampleID, soil.FactorDepth, soil.FactorMicrosite, soil.FactorSeverity, ColumnCarbon}

// ObservationFile reads observations from a .csv or .xlsx table. Carbon
// values are percentages and are stored on the log scale. When the table
// has no baseline_total_carbon column the sample's own log carbon is used.
type ObservationFile struct {
	Path   string
	logger *internal.Logger
}

var _ ports.ObservationSource = (*ObservationFile)(nil)

func NewObservationFile(path string, logger *internal.Logger) *ObservationFile {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &ObservationFile{Path: path, logger: logger.WithComponent("observations")}
}

// LoadObservations implements ports.ObservationSource.
func (o *ObservationFile) LoadObservations(ctx context.Context) ([]soil.Observation, error) {
	table, err := excel.NewTableReader(o.Path, o.logger).Read(ctx)
	if err != nil {
		return nil, err
	}
	for _, col := range requiredColumns {
		if !table.Has(col) {
			return nil, fmt.Errorf("%w: %s has no %q column", core.ErrDataLoad, o.Path, col)
		}
	}
	hasBaseline := table.Has(soil.CovariateBaseline)

	seen := make(map[core.SampleID]bool, len(table.Rows))
	out := make([]soil.Observation, 0, len(table.Rows))
	for i, row := range table.Rows {
		line := i + 2
		id, err := core.ParseSampleID(row[ColumnSampleID])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", core.ErrDataLoad, o.Path, line, err)
		}
		if seen[id] {
			return nil, fmt.Errorf("%w: %s line %d: duplicate sample %q", core.ErrDataLoad, o.Path, line, id)
		}
		seen[id] = true

		carbon, err := parsePercent(row[ColumnCarbon])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: carbon: %v", core.ErrDataLoad, o.Path, line, err)
		}

		obs := soil.Observation{
			SampleID:            id,
			Depth:               row[soil.FactorDepth],
			Microsite:           row[soil.FactorMicrosite],
			Severity:            row[soil.FactorSeverity],
			Response:            carbon,
			BaselineTotalCarbon: carbon,
		}
		if hasBaseline {
			if obs.BaselineTotalCarbon, err = parsePercent(row[soil.CovariateBaseline]); err != nil {
				return nil, fmt.Errorf("%w: %s line %d: %s: %v", core.ErrDataLoad, o.Path, line, soil.CovariateBaseline, err)
			}
		}
		out = append(out, obs)
	}

	o.logger.Info("loaded %d observations from %s", len(out), o.Path)
	return out, nil
}

// parsePercent reads a positive percentage and returns its log. Blank and
// NA cells give NaN.
func parsePercent(raw string) (float64, error) {
	if raw == "" || raw == "NA" {
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("non-positive percentage %v", v)
	}
	return soil.LogPercent(v), nil
}

// Complete drops observations whose response is missing or not finite.
func Complete(obs []soil.Observation) []soil.Observation {
	out := make([]soil.Observation, 0, len(obs))
	for _, o := range obs {
		if !math.IsNaN(o.Response) && !math.IsInf(o.Response, 0) {
			out = append(out, o)
		}
	}
	return out
}
