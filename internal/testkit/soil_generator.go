package testkit

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal/design"

	"github.com/xuri/excelize/v2"
)

// SoilGeneratorConfig configures the synthetic soil carbon generator.
// Effects are keyed by design term name (e.g. "depth5-15cm" or
// "depth5-15cm:severityHH") and add to the log carbon of matching samples.
type SoilGeneratorConfig struct {
	Depths         []string           `json:"depths"`
	Microsites     []string           `json:"microsites"`
	Severities     []string           `json:"severities"`
	SamplesPerCell int                `json:"samples_per_cell"`
	Intercept      float64            `json:"intercept"`
	Effects        map[string]float64 `json:"effects"`
	Noise          float64            `json:"noise"`
	MinReplicates  int                `json:"min_replicates"`
	MaxReplicates  int                `json:"max_replicates"`
	DigestNoise    float64            `json:"digest_noise"`
	Seed           uint64             `json:"seed"`
}

// DefaultSoilConfig returns a small two-depth by four-severity layout with
// a clear depth effect and one strong interaction.
func DefaultSoilConfig() SoilGeneratorConfig {
	return SoilGeneratorConfig{
		Depths:         soil.DepthLevels,
		Microsites:     []string{"open"},
		Severities:     soil.SeverityLevels,
		SamplesPerCell: 6,
		Intercept:      1.2,
		Effects: map[string]float64{
			"depth5-15cm":            -0.8,
			"severityHH":             -0.4,
			"depth5-15cm:severityHH": 0.5,
		},
		Noise:         0.1,
		MinReplicates: 1,
		MaxReplicates: 3,
		DigestNoise:   0.05,
		Seed:          42,
	}
}

// SoilDataGenerator generates observations and digest replicates.
type SoilDataGenerator struct {
	config SoilGeneratorConfig
	rng    *rand.Rand
}

// NewSoilDataGenerator creates a generator seeded from the config.
func NewSoilDataGenerator(config SoilGeneratorConfig) *SoilDataGenerator {
	return &SoilDataGenerator{
		config: config,
		rng:    rand.New(rand.NewPCG(config.Seed, 0x5011)),
	}
}

// GenerateObservations returns SamplesPerCell observations for every
// depth x microsite x severity cell. Response is log carbon and the baseline
// covariate equals it.
func (g *SoilDataGenerator) GenerateObservations() []soil.Observation {
	var out []soil.Observation
	n := 0
	for _, d := range g.config.Depths {
		for _, m := range g.config.Microsites {
			for _, s := range g.config.Severities {
				for k := 0; k < g.config.SamplesPerCell; k++ {
					n++
					o := soil.Observation{
						SampleID:  core.SampleID(fmt.Sprintf("S-%03d", n)),
						Depth:     d,
						Microsite: m,
						Severity:  s,
					}
					o.Response = g.mean(o) + g.config.Noise*g.rng.NormFloat64()
					o.BaselineTotalCarbon = o.Response
					out = append(out, o)
				}
			}
		}
	}
	return out
}

// mean sums the intercept and every effect whose components all match.
func (g *SoilDataGenerator) mean(o soil.Observation) float64 {
	have := map[string]bool{
		soil.FactorDepth + o.Depth:         true,
		soil.FactorMicrosite + o.Microsite: true,
		soil.FactorSeverity + o.Severity:   true,
	}
	terms := make([]string, 0, len(g.config.Effects))
	for term := range g.config.Effects {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	mu := g.config.Intercept
	for _, term := range terms {
		match := true
		for _, part := range design.SplitTerm(term) {
			if !have[part] {
				match = false
				break
			}
		}
		if match {
			mu += g.config.Effects[term]
		}
	}
	return mu
}

// GenerateDigests draws between MinReplicates and MaxReplicates digest
// measurements per observation, as percentages in text form.
func (g *SoilDataGenerator) GenerateDigests(obs []soil.Observation) []soil.DigestRow {
	var out []soil.DigestRow
	span := g.config.MaxReplicates - g.config.MinReplicates + 1
	for _, o := range obs {
		count := g.config.MinReplicates
		if span > 1 {
			count += g.rng.IntN(span)
		}
		for k := 0; k < count; k++ {
			v := math.Exp(o.Response + g.config.DigestNoise*g.rng.NormFloat64())
			out = append(out, soil.DigestRow{
				Sheet:       o.SampleID.String(),
				SampleLabel: o.SampleID.String(),
				Position:    strconv.Itoa(k + 1),
				RawValue:    strconv.FormatFloat(v, 'f', 6, 64),
			})
		}
	}
	return out
}

// WriteObservationsCSV writes observations in the observation table format,
// carbon as a percentage.
func WriteObservationsCSV(path string, obs []soil.Observation) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"sample_id", soil.FactorDepth, soil.FactorMicrosite, soil.FactorSeverity, "carbon"})
	for _, o := range obs {
		w.Write([]string{
			o.SampleID.String(), o.Depth, o.Microsite, o.Severity,
			strconv.FormatFloat(math.Exp(o.Response), 'f', 6, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteDigestWorkbook lays digests out one sheet per sample, with a title
// row and a column header above the data as laboratory exports have.
// Columns are A label, B position, C value. It returns the sheet count.
func WriteDigestWorkbook(path string, rows []soil.DigestRow) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	var sheets []string
	bySheet := make(map[string][]soil.DigestRow)
	for _, r := range rows {
		if _, ok := bySheet[r.Sheet]; !ok {
			sheets = append(sheets, r.Sheet)
		}
		bySheet[r.Sheet] = append(bySheet[r.Sheet], r)
	}

	for i, name := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return 0, err
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return 0, err
		}
		f.SetCellStr(name, "A1", "Digest export "+strings.ToLower(name))
		f.SetSheetRow(name, "A2", &[]interface{}{"Label", "Position", "Carbon %"})
		for k, r := range bySheet[name] {
			cell, _ := excelize.CoordinatesToCellName(1, k+3)
			if err := f.SetSheetRow(name, cell, &[]interface{}{r.SampleLabel, r.Position, r.RawValue}); err != nil {
				return 0, err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return 0, err
	}
	return len(sheets), nil
}
