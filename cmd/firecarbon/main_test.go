package main

import (
	"testing"

	"firecarbon/internal/config"
	"firecarbon/internal/ssvs"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedFlags(t *testing.T, args ...string) (*cobra.Command, overrides) {
	t.Helper()
	var o overrides
	cmd := &cobra.Command{Use: "fit"}
	addModelFlags(cmd, &o)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd, o
}

func envConfig() *config.Config {
	return &config.Config{
		Sampler: ssvs.Config{BurnIn: 500, Iterations: 1000, Thin: 2, Seed: 20140501, NuStep: 0.5},
		Paths:   config.PathConfig{ArtifactDir: "artifacts", OutputDir: "output"},
	}
}

func TestApplyOverrides_ExplicitZero(t *testing.T) {
	cfg := envConfig()
	cmd, o := parsedFlags(t, "--seed", "0", "--burn-in", "0")

	require.NoError(t, applyOverrides(cfg, cmd, o))
	assert.Equal(t, uint64(0), cfg.Sampler.Seed)
	assert.Equal(t, 0, cfg.Sampler.BurnIn)
	assert.Equal(t, 1000, cfg.Sampler.Iterations)
	assert.Equal(t, 2, cfg.Sampler.Thin)
}

func TestApplyOverrides_UnsetFlagsKeepEnvironment(t *testing.T) {
	cfg := envConfig()
	cmd, o := parsedFlags(t, "--output-dir", "reports")

	require.NoError(t, applyOverrides(cfg, cmd, o))
	assert.Equal(t, uint64(20140501), cfg.Sampler.Seed)
	assert.Equal(t, 500, cfg.Sampler.BurnIn)
	assert.Equal(t, "reports", cfg.Paths.OutputDir)
	assert.Equal(t, "artifacts", cfg.Paths.ArtifactDir)
	assert.False(t, cfg.Recompute)
}

func TestApplyOverrides_ZeroThinRejected(t *testing.T) {
	cfg := envConfig()
	cmd, o := parsedFlags(t, "--thin", "0")

	assert.Error(t, applyOverrides(cfg, cmd, o))
}
