package config

import (
	"fmt"
	"os"
	"sort"

	"firecarbon/domain/soil"
	"firecarbon/internal/design"
	"firecarbon/internal/errors"

	"gopkg.in/yaml.v3"
)

// Model variant names.
const (
	VariantTotal        = "total"
	VariantRecalcitrant = "recalcitrant"
)

// Variant is one model to fit. Latent variants are fitted to digest
// replicates, the others to the observation table's carbon column.
type Variant struct {
	Formula string `yaml:"formula"`
	Latent  bool   `yaml:"latent"`
}

// ModelFile is the YAML model definition.
//
//	levels:
//	  severity: [LL, LH, HL, HH]
//	variants:
//	  total:
//	    formula: "~ (depth + microsite + severity)^2"
type ModelFile struct {
	Levels   map[string][]string `yaml:"levels"`
	Variants map[string]Variant  `yaml:"variants"`
}

// DefaultModelFile fits both carbon pools with all two-way interactions.
// Depth levels are taken in order of appearance.
func DefaultModelFile() *ModelFile {
	return &ModelFile{
		Levels: map[string][]string{
			soil.FactorMicrosite: soil.MicrositeLevels,
			soil.FactorSeverity:  soil.SeverityLevels,
		},
		Variants: map[string]Variant{
			VariantTotal: {
				Formula: "~ (depth + microsite + severity)^2",
			},
			VariantRecalcitrant: {
				Formula: "~ (depth + microsite + severity)^2 + baseline_total_carbon",
				Latent:  true,
			},
		},
	}
}

// LoadModelFile reads a YAML model definition. An empty path yields the
// defaults.
func LoadModelFile(path string) (*ModelFile, error) {
	if path == "" {
		return DefaultModelFile(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("cannot read model file %s", path), err)
	}
	var m ModelFile
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "invalid model file %s", path)
	}
	for name, v := range m.Variants {
		if _, err := design.ParseFormula(v.Formula); err != nil {
			return nil, errors.Wrapf(errors.ConfigInvalid(err.Error()), "variant %q", name)
		}
	}
	return &m, nil
}

// Spec returns the design spec of a variant.
func (m *ModelFile) Spec(variant string) (design.Spec, error) {
	v, ok := m.Variants[variant]
	if !ok {
		return design.Spec{}, errors.ConfigInvalid(fmt.Sprintf("unknown model variant %q", variant))
	}
	return design.Spec{Formula: v.Formula, Levels: m.Levels}, nil
}

// Names lists the variants in a stable order.
func (m *ModelFile) Names() []string {
	names := make([]string, 0, len(m.Variants))
	for n := range m.Variants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
