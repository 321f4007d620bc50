package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficsim/qsim/sim/fingerprint"
)

func writeCorridorFingerprint(t *testing.T, path string, horizon float64) {
	t.Helper()
	opts := corridorOptions("causal")
	opts.FingerprintOut = path
	opts.Horizon = horizon
	_, err := RunScenario(context.Background(), opts)
	require.NoError(t, err)
}

func TestCompareCmd_EqualFingerprints(t *testing.T) {
	// GIVEN two fingerprints of identical runs
	dir := t.TempDir()
	a := filepath.Join(dir, "a"+fingerprint.FileExtension)
	b := filepath.Join(dir, "b"+fingerprint.FileExtension)
	writeCorridorFingerprint(t, a, 0)
	writeCorridorFingerprint(t, b, 0)

	// WHEN compare runs
	var out bytes.Buffer
	compareCmd.SetOut(&out)
	err := compareCmd.RunE(compareCmd, []string{a, b})

	// THEN it succeeds and says so
	require.NoError(t, err)
	assert.Contains(t, out.String(), "equal")
}

func TestCompareCmd_DifferentRuns_Fails(t *testing.T) {
	// GIVEN a full run and one cut short by the horizon
	dir := t.TempDir()
	a := filepath.Join(dir, "a"+fingerprint.FileExtension)
	b := filepath.Join(dir, "b"+fingerprint.FileExtension)
	writeCorridorFingerprint(t, a, 0)
	writeCorridorFingerprint(t, b, 50)

	// WHEN compare runs
	var out bytes.Buffer
	compareCmd.SetOut(&out)
	err := compareCmd.RunE(compareCmd, []string{a, b})

	// THEN the mismatch is an error
	assert.Error(t, err)
	assert.NotContains(t, out.String(), ": equal")
}

func TestCompareCmd_MissingFile(t *testing.T) {
	err := compareCmd.RunE(compareCmd, []string{"missing-a.fp.zst", "missing-b.fp.zst"})
	assert.Error(t, err)
}

func TestReportComparison(t *testing.T) {
	var buf bytes.Buffer
	assert.NoError(t, reportComparison(&buf, "a", "b", fingerprint.Equal))
	assert.Error(t, reportComparison(&buf, "a", "b", fingerprint.DifferentEventCounts))
	assert.Contains(t, buf.String(), "different event counts")
}
