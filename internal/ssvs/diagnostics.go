package ssvs

import (
	"fmt"
	"time"

	"firecarbon/domain/core"
	"firecarbon/domain/posterior"

	"github.com/montanaflynn/stats"
)

// Diagnostics summarises a chain. Warnings are advisory only.
type Diagnostics struct {
	Retained     int                       `json:"retained"`
	Elapsed      time.Duration             `json:"elapsed"`
	NuAcceptance float64                   `json:"nu_acceptance,omitempty"`
	Warnings     []core.ConvergenceWarning `json:"warnings,omitempty"`
}

// inspect flags indicator columns stuck at 0 or 1 and a poorly mixing nu.
func inspect(m *posterior.Matrix, terms []string, latent bool, nuAcceptance float64) []core.ConvergenceWarning {
	var warnings []core.ConvergenceWarning
	if m.Rows() == 0 {
		return append(warnings, core.ConvergenceWarning{Parameter: "chain", Reason: "no samples retained"})
	}

	for _, t := range terms {
		col, ok := m.Column(posterior.IndicatorColumn(t))
		if !ok {
			continue
		}
		mean, err := stats.Mean(col)
		if err != nil {
			continue
		}
		switch mean {
		case 0:
			warnings = append(warnings, core.ConvergenceWarning{Parameter: posterior.IndicatorColumn(t), Reason: "never included"})
		case 1:
			warnings = append(warnings, core.ConvergenceWarning{Parameter: posterior.IndicatorColumn(t), Reason: "always included"})
		}
	}

	if latent && (nuAcceptance < 0.1 || nuAcceptance > 0.9) {
		warnings = append(warnings, core.ConvergenceWarning{
			Parameter: posterior.ColumnNu,
			Reason:    fmt.Sprintf("acceptance rate %.3f outside [0.1, 0.9]", nuAcceptance),
		})
	}
	return warnings
}
