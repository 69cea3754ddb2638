// Package soil holds the field and laboratory observation types the
// carbon models are fitted to.
package soil

import (
	"math"

	"firecarbon/domain/core"
)

// Factor names as they appear in formulas and data files.
const (
	FactorDepth     = "depth"
	FactorMicrosite = "microsite"
	FactorSeverity  = "severity"

	CovariateBaseline = "baseline_total_carbon"
)

// Default level orders. The first level of each factor is the treatment
// coding reference. Depths are the sampled layers, shallow first.
var (
	DepthLevels     = []string{"0-5cm", "5-15cm"}
	MicrositeLevels = []string{"open", "rough", "smooth"}
	SeverityLevels  = []string{"LL", "LH", "HL", "HH"}
)

// Observation is one measured sample with its categorical covariates.
// Response is log percent carbon. Replicates, when present, are log
// responses of individual digests of the same sample.
type Observation struct {
	SampleID            core.SampleID `json:"sample_id"`
	Depth               string        `json:"depth"`
	Microsite           string        `json:"microsite"`
	Severity            string        `json:"severity"`
	Response            float64       `json:"response"`
	BaselineTotalCarbon float64       `json:"baseline_total_carbon,omitempty"`
	Replicates          []float64     `json:"replicates,omitempty"`
}

// Level returns the level of a categorical covariate.
func (o Observation) Level(factor string) (string, bool) {
	switch factor {
	case FactorDepth:
		return o.Depth, o.Depth != ""
	case FactorMicrosite:
		return o.Microsite, o.Microsite != ""
	case FactorSeverity:
		return o.Severity, o.Severity != ""
	}
	return "", false
}

// Value returns a numeric covariate.
func (o Observation) Value(covariate string) (float64, bool) {
	switch covariate {
	case CovariateBaseline:
		return o.BaselineTotalCarbon, !math.IsNaN(o.BaselineTotalCarbon)
	}
	return 0, false
}

// ObservedReplicates returns the non-missing replicate values.
func (o Observation) ObservedReplicates() []float64 {
	out := make([]float64, 0, len(o.Replicates))
	for _, r := range o.Replicates {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			out = append(out, r)
		}
	}
	return out
}

// LogPercent converts a percent carbon measurement to the model scale.
func LogPercent(percent float64) float64 {
	if percent <= 0 {
		return math.NaN()
	}
	return math.Log(percent)
}

// DigestRow is one raw spreadsheet row of a digest replicate. Values stay
// as text until they are joined to sample metadata.
type DigestRow struct {
	Sheet       string `json:"sheet"`
	SampleLabel string `json:"sample_label"`
	Position    string `json:"position"`
	RawValue    string `json:"raw_value"`
}
