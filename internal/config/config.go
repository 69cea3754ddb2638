package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"firecarbon/internal/errors"
	"firecarbon/internal/ssvs"

	"github.com/joho/godotenv"
)

// Config represents the complete application configuration
type Config struct {
	Sampler   ssvs.Config
	Paths     PathConfig
	Digests   DigestConfig
	Recompute bool
	Model     ModelFile
}

// PathConfig holds file system paths
type PathConfig struct {
	ArtifactDir  string
	OutputDir    string
	Observations string
	Digests      string
	ModelFile    string
}

// DigestConfig locates digest replicates inside the laboratory workbook.
type DigestConfig struct {
	Sheets         []int
	LabelColumn    string
	PositionColumn string
	DataColumn     string
}

// Load reads configuration from environment variables, after applying any
// of the given .env files that exist, and validates it.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, errors.Wrapf(err, "failed to read %s", f)
		}
	}

	config := &Config{
		Sampler:   loadSamplerConfig(),
		Paths:     loadPathConfig(),
		Recompute: getEnvBoolOrDefault("FIRECARBON_RECOMPUTE", false),
	}

	digests, err := loadDigestConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load digest configuration")
	}
	config.Digests = *digests

	model, err := LoadModelFile(config.Paths.ModelFile)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load model file")
	}
	config.Model = *model

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

func loadSamplerConfig() ssvs.Config {
	d := ssvs.DefaultConfig()
	return ssvs.Config{
		BurnIn:        getEnvIntOrDefault("FIRECARBON_BURN_IN", d.BurnIn),
		Iterations:    getEnvIntOrDefault("FIRECARBON_ITERATIONS", d.Iterations),
		Thin:          getEnvIntOrDefault("FIRECARBON_THIN", d.Thin),
		Seed:          getEnvUint64OrDefault("FIRECARBON_SEED", d.Seed),
		ProgressEvery: getEnvIntOrDefault("FIRECARBON_PROGRESS_EVERY", d.ProgressEvery),
		NuStep:        getEnvFloatOrDefault("FIRECARBON_NU_STEP", d.NuStep),
	}
}

func loadPathConfig() PathConfig {
	return PathConfig{
		ArtifactDir:  getEnvOrDefault("FIRECARBON_ARTIFACT_DIR", "./artifacts"),
		OutputDir:    getEnvOrDefault("FIRECARBON_OUTPUT_DIR", "./output"),
		Observations: getEnvOrDefault("FIRECARBON_OBSERVATIONS", ""),
		Digests:      getEnvOrDefault("FIRECARBON_DIGESTS", ""),
		ModelFile:    getEnvOrDefault("FIRECARBON_MODEL_FILE", ""),
	}
}

func loadDigestConfig() (*DigestConfig, error) {
	sheets, err := getEnvIntListOrDefault("FIRECARBON_DIGEST_SHEETS", []int{0})
	if err != nil {
		return nil, err
	}
	cols := strings.Split(getEnvOrDefault("FIRECARBON_DIGEST_COLUMNS", "A,B,C"), ",")
	if len(cols) != 3 {
		return nil, errors.ConfigInvalid("FIRECARBON_DIGEST_COLUMNS must name label, position and data columns")
	}
	return &DigestConfig{
		Sheets:         sheets,
		LabelColumn:    strings.TrimSpace(cols[0]),
		PositionColumn: strings.TrimSpace(cols[1]),
		DataColumn:     strings.TrimSpace(cols[2]),
	}, nil
}

func validateConfig(config *Config) error {
	if err := config.Sampler.Validate(); err != nil {
		return err
	}
	if config.Paths.ArtifactDir == "" {
		return errors.ConfigInvalid("artifact directory is required")
	}
	if len(config.Model.Variants) == 0 {
		return errors.ConfigInvalid("model file defines no variants")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64OrDefault(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvIntListOrDefault(key string, defaultValue []int) ([]int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, errors.ConfigInvalid(fmt.Sprintf("%s: %q is not an integer", key, part))
		}
		out = append(out, n)
	}
	return out, nil
}
