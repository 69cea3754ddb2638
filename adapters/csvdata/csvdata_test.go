package csvdata

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = internal.NewLogger(internal.LogLevelError)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "observations.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestObservationFile_Load(t *testing.T) {
	path := writeCSV(t, "sample_id,depth,microsite,severity,carbon\n"+
		"S-1,0-5cm,open,LL,2.5\n"+
		"S-2,5-15cm,rough,HH,NA\n")

	obs, err := NewObservationFile(path, quiet).LoadObservations(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)

	assert.Equal(t, core.SampleID("S-1"), obs[0].SampleID)
	assert.Equal(t, "open", obs[0].Microsite)
	assert.InDelta(t, math.Log(2.5), obs[0].Response, 1e-12)
	assert.InDelta(t, math.Log(2.5), obs[0].BaselineTotalCarbon, 1e-12)
	assert.True(t, math.IsNaN(obs[1].Response))

	assert.Len(t, Complete(obs), 1)
}

func TestComplete_DropsNonFinite(t *testing.T) {
	obs := []soil.Observation{
		{SampleID: "a", Response: 1},
		{SampleID: "b", Response: math.NaN()},
		{SampleID: "c", Response: math.Inf(-1)},
		{SampleID: "d", Response: -0.5},
	}
	got := Complete(obs)
	require.Len(t, got, 2)
	assert.Equal(t, core.SampleID("a"), got[0].SampleID)
	assert.Equal(t, core.SampleID("d"), got[1].SampleID)
}

func TestObservationFile_BaselineColumn(t *testing.T) {
	path := writeCSV(t, "sample_id,depth,microsite,severity,carbon,baseline_total_carbon\n"+
		"S-1,0-5cm,open,LL,2.5,4\n")
	obs, err := NewObservationFile(path, quiet).LoadObservations(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, math.Log(4), obs[0].BaselineTotalCarbon, 1e-12)
}

func TestObservationFile_Errors(t *testing.T) {
	cases := map[string]string{
		"missing column": "sample_id,depth,microsite,carbon\nS-1,0-5cm,open,1\n",
		"duplicate":      "sample_id,depth,microsite,severity,carbon\nS-1,a,b,c,1\nS-1,a,b,c,2\n",
		"bad carbon":     "sample_id,depth,microsite,severity,carbon\nS-1,a,b,c,x\n",
		"negative":       "sample_id,depth,microsite,severity,carbon\nS-1,a,b,c,-1\n",
		"blank id":       "sample_id,depth,microsite,severity,carbon\n,a,b,c,1\n",
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewObservationFile(writeCSV(t, content), quiet).LoadObservations(context.Background())
			require.Error(t, err)
			assert.True(t, core.IsDataLoadError(err))
		})
	}
}

func TestJoinDigests(t *testing.T) {
	obs := []soil.Observation{
		{SampleID: "S-1", Depth: "0-5cm", BaselineTotalCarbon: 1},
		{SampleID: "S-2", Depth: "0-5cm", BaselineTotalCarbon: 1},
		{SampleID: "S-3", Depth: "5-15cm", BaselineTotalCarbon: 1},
	}
	digests := []soil.DigestRow{
		{SampleLabel: "S-1", RawValue: "2"},
		{SampleLabel: "S-3", RawValue: "1"},
		{SampleLabel: "S-3", RawValue: "n/a"},
		{SampleLabel: "S-3", RawValue: "1"},
		{SampleLabel: "S-1", RawValue: "8"},
		{SampleLabel: "S-9", RawValue: "1"},
	}

	joined, report, err := JoinDigests(obs, digests, quiet)
	require.NoError(t, err)
	require.Len(t, joined, 2)

	assert.Equal(t, core.SampleID("S-1"), joined[0].SampleID)
	assert.InDeltaSlice(t, []float64{math.Log(2), math.Log(8)}, joined[0].Replicates, 1e-12)
	assert.InDelta(t, math.Log(4), joined[0].Response, 1e-12)
	assert.Len(t, joined[1].Replicates, 2)

	assert.Equal(t, 2, report.Joined)
	assert.Equal(t, 1, report.UnparsedValues)
	assert.Equal(t, []string{"S-9"}, report.UnknownLabels)
	assert.Equal(t, []core.SampleID{"S-2"}, report.SamplesNoDigests)
}

func TestJoinDigests_TooFew(t *testing.T) {
	obs := []soil.Observation{{SampleID: "S-1"}, {SampleID: "S-2"}}
	_, _, err := JoinDigests(obs, []soil.DigestRow{{SampleLabel: "S-1", RawValue: "1"}}, quiet)
	assert.True(t, errors.Is(err, core.ErrInsufficientData))
}
