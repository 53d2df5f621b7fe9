package main

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type env struct {
	dir    string
	config string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	dir := t.TempDir()
	cfg := fmt.Sprintf(`database:
  driver: sqlite
  dsn: %s
data_dir: %s
work_dir: %s
log:
  level: warn
`, filepath.Join(dir, "trainer.db"), filepath.Join(dir, "data"), filepath.Join(dir, "runs"))
	path := filepath.Join(dir, "trainerd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))
	return &env{dir: dir, config: path}
}

// exec runs trainerd with the test config and returns stdout.
func (e *env) exec(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), append([]string{"--config", e.config}, args...), &stdout, &stderr)
	return stdout.String(), err
}

func (e *env) mustExec(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.exec(t, args...)
	require.NoError(t, err, "trainerd %s", strings.Join(args, " "))
	return out
}

func (e *env) writeCSV(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("ts,x,label,y\n")
	for i := range n {
		x := math.Sin(float64(i) / 7)
		fmt.Fprintf(&b, "%d,%.6f,row%d,%.6f\n", i, x, i, 4*x)
	}
	path := filepath.Join(e.dir, "sine.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestCLI_SubmitTrainInspect(t *testing.T) {
	e := newEnv(t)

	assert.Contains(t, e.mustExec(t, "migrate"), "schema up to date")

	seeded := e.mustExec(t, "seed-templates")
	assert.Contains(t, seeded, "seeded TCN\n")
	assert.Contains(t, seeded, "seeded Transformer (no trainer registered)")

	csv := e.writeCSV(t, 160)
	out := e.mustExec(t, "datasets", "add", "sine", csv, "--feature", "x", "--feature", "label", "--target", "y", "--timestamp", "ts")
	assert.Contains(t, out, "registered dataset sine: 160 rows, 4 columns")

	id := strings.TrimSpace(e.mustExec(t, "submit", "-d", "sine", "-t", "MLP", "--hp", "epochs=2", "--hp", "sequence_length=5"))
	require.NotEmpty(t, id)

	status := e.mustExec(t, "status", id)
	assert.Contains(t, status, "pending")
	assert.Contains(t, status, "0/0")

	assert.Contains(t, e.mustExec(t, "worker", "--once", "--id", "cli-test"), "processed 1 runs")

	status = e.mustExec(t, "status", id)
	assert.Contains(t, status, "completed")
	assert.Contains(t, status, "2/2")
	assert.Contains(t, status, "cli-test")
	assert.Contains(t, status, "test_rmse")

	metrics := e.mustExec(t, "metrics", id)
	lines := strings.Split(strings.TrimSpace(metrics), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "EPOCH"))
	assert.True(t, strings.HasPrefix(lines[1], "1 "))

	list := e.mustExec(t, "list", "--status", "completed")
	assert.Contains(t, list, id)

	_, err := e.exec(t, "stop", id)
	assert.ErrorContains(t, err, "invalid status transition")
}

func TestCLI_StopPendingRun(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "seed-templates")
	e.mustExec(t, "datasets", "add", "sine", e.writeCSV(t, 50), "--feature", "x", "--target", "y")
	id := strings.TrimSpace(e.mustExec(t, "submit", "-d", "sine", "-t", "TCN"))

	assert.Contains(t, e.mustExec(t, "stop", id), "stopped")
	assert.Contains(t, e.mustExec(t, "worker", "--once"), "processed 0 runs")
	assert.Contains(t, e.mustExec(t, "status", id), "stopped")
}

func TestCLI_Errors(t *testing.T) {
	e := newEnv(t)
	e.mustExec(t, "seed-templates")

	_, err := e.exec(t, "status", "nope")
	assert.ErrorContains(t, err, "run not found")

	_, err = e.exec(t, "submit", "-d", "missing", "-t", "TCN")
	assert.ErrorContains(t, err, "dataset not found")

	_, err = e.exec(t, "datasets", "add", "d", e.writeCSV(t, 10), "--feature", "nope", "--target", "y")
	assert.ErrorContains(t, err, `column "nope" not found`)

	_, err = e.exec(t, "datasets", "add", "d", e.writeCSV(t, 10), "--feature", "x")
	assert.ErrorContains(t, err, "--target")

	_, err = e.exec(t, "list", "--status", "exploded")
	assert.ErrorContains(t, err, "unknown status")
}

func TestCLI_BadConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate"}, &stdout, &stderr)
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParseHyperparameters(t *testing.T) {
	got, err := parseHyperparameters([]string{"epochs=20", "learning_rate=0.01", "optimizer=sgd", "shuffle=true", "note="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"epochs":        20,
		"learning_rate": 0.01,
		"optimizer":     "sgd",
		"shuffle":       true,
		"note":          "",
	}, got)

	for _, bad := range []string{"noequals", "=5", "layers=[1, 2]"} {
		_, err := parseHyperparameters([]string{bad})
		assert.Error(t, err, bad)
	}
}
