// Package testutil provides shared test infrastructure for the simulator:
// golden event streams and handlers with scripted behavior. It must not
// import sim, whose internal tests use it.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// UpdateEnv names the environment variable that rewrites golden files
// instead of comparing against them: UPDATE_GOLDEN=1 go test ./sim/...
const UpdateEnv = "UPDATE_GOLDEN"

// goldenPath resolves sim/testdata/<name>.golden relative to this source file.
func goldenPath(t *testing.T, name string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	// Navigate from sim/internal/testutil/ to sim/testdata/
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "testdata", name+".golden")
}

// LoadGoldenStream returns the lines of a golden event stream.
func LoadGoldenStream(t *testing.T, name string) []string {
	t.Helper()
	data, err := os.ReadFile(goldenPath(t, name))
	if err != nil {
		t.Fatalf("Failed to read golden stream %s: %v", name, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

// AssertGoldenStream compares got line by line with the golden stream name,
// reporting the first difference.
func AssertGoldenStream(t *testing.T, name string, got []string) {
	t.Helper()
	if os.Getenv(UpdateEnv) != "" {
		data := strings.Join(got, "\n") + "\n"
		if err := os.WriteFile(goldenPath(t, name), []byte(data), 0o644); err != nil {
			t.Fatalf("Failed to update golden stream %s: %v", name, err)
		}
		return
	}
	want := LoadGoldenStream(t, name)
	for i := 0; i < len(want) && i < len(got); i++ {
		if want[i] != got[i] {
			t.Fatalf("%s: line %d differs\n got: %s\nwant: %s", name, i+1, got[i], want[i])
		}
	}
	if len(want) != len(got) {
		t.Fatalf("%s: got %d events, want %d", name, len(got), len(want))
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
