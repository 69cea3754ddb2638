package csvdata

import (
	"fmt"
	"strconv"
	"strings"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal"

	"github.com/montanaflynn/stats"
)

// JoinReport counts what JoinDigests dropped.
type JoinReport struct {
	Joined           int
	UnparsedValues   int
	UnknownLabels    []string
	SamplesNoDigests []core.SampleID
}

// JoinDigests attaches digest replicates to observations by sample label.
// Digest values are percentages and become log replicates; unparsable
// values are skipped. Only observations with at least one replicate are
// returned, in input order, with Response set to the replicate mean.
func JoinDigests(obs []soil.Observation, digests []soil.DigestRow, logger *internal.Logger) ([]soil.Observation, JoinReport, error) {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	var report JoinReport

	index := make(map[string]int, len(obs))
	for i, o := range obs {
		index[o.SampleID.String()] = i
	}

	reps := make([][]float64, len(obs))
	unknown := make(map[string]bool)
	for _, d := range digests {
		label := strings.TrimSpace(d.SampleLabel)
		i, ok := index[label]
		if !ok {
			if !unknown[label] {
				unknown[label] = true
				report.UnknownLabels = append(report.UnknownLabels, label)
			}
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(d.RawValue), 64)
		if err != nil || v <= 0 {
			report.UnparsedValues++
			continue
		}
		reps[i] = append(reps[i], soil.LogPercent(v))
	}

	out := make([]soil.Observation, 0, len(obs))
	for i, o := range obs {
		if len(reps[i]) == 0 {
			report.SamplesNoDigests = append(report.SamplesNoDigests, o.SampleID)
			continue
		}
		o.Replicates = reps[i]
		o.Response, _ = stats.Mean(reps[i])
		out = append(out, o)
	}
	report.Joined = len(out)

	if len(report.UnknownLabels) > 0 {
		logger.Warn("digest labels with no observation: %s", strings.Join(report.UnknownLabels, ", "))
	}
	if report.UnparsedValues > 0 {
		logger.Warn("%d digest values were not positive numbers", report.UnparsedValues)
	}
	if len(out) < 2 {
		return nil, report, fmt.Errorf("%w: only %d samples have digest replicates", core.ErrInsufficientData, len(out))
	}
	return out, report, nil
}
