package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/config"
	"github.com/crimson-sun/dumpsift/internal/testdata"
)

// execute runs the CLI with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(config.EnvConfig, "")
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func fixtureDir(t *testing.T, name string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, testdata.FS()))
	return filepath.Join(dir, name)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func readJSON(t *testing.T, path string) map[string]any {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var v map[string]any
	require.NoError(t, json.Unmarshal(b, &v))
	return v
}

func TestAnalyzeWritesOutputs(t *testing.T) {
	in := fixtureDir(t, "sm-s928")
	out := t.TempDir()
	events := filepath.Join(out, "events.ndjson")
	summary := filepath.Join(out, "summary.json")
	metrics := filepath.Join(out, "dumpsift.prom")

	stdout, _, err := execute(t, "analyze", in,
		"--case-id=case-1",
		"--events="+events,
		"--summary="+summary,
		"--metrics="+metrics,
	)
	require.NoError(t, err)

	assert.Contains(t, stdout, "Case case-1")
	assert.Contains(t, stdout, "SM-S928@ABC123")
	assert.Contains(t, stdout, "Apps/Framework")

	lines := readLines(t, events)
	require.Len(t, lines, 5)
	for _, l := range lines {
		var ev map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &ev), l)
		assert.Equal(t, "SM-S928@ABC123", ev["device"])
	}

	s := readJSON(t, summary)
	assert.Equal(t, "case-1", s["case_id"])
	assert.EqualValues(t, 5, s["event_count"])
	inc, ok := s["incident"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Apps/Framework", inc["suspected_subsystem"])

	prom, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "dumpsift_")
}

func TestAnalyzeStreamsEventsToStdout(t *testing.T) {
	in := fixtureDir(t, "sm-s928")

	stdout, stderr, err := execute(t, "analyze", in, "--events=-", "--table=none")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 5)
	for _, l := range lines {
		assert.True(t, json.Valid([]byte(l)), l)
	}
	assert.NotContains(t, stderr, "Signature groups")
}

func TestAnalyzeTableGoesToStderrWhenStreaming(t *testing.T) {
	in := fixtureDir(t, "sm-s928")

	_, stderr, err := execute(t, "analyze", in, "--events=-")
	require.NoError(t, err)
	assert.Contains(t, stderr, "Signature groups")
}

func TestAnalyzeHistory(t *testing.T) {
	in := fixtureDir(t, "sm-s928")
	out := t.TempDir()
	history := filepath.Join(out, "history")

	for i, want := range []float64{-1, 0} {
		summary := filepath.Join(out, "summary.json")
		_, _, err := execute(t, "analyze", in, "--history="+history, "--summary="+summary, "--table=none")
		require.NoError(t, err, "run %d", i)

		inc := readJSON(t, summary)["incident"].(map[string]any)
		if want < 0 {
			assert.Positive(t, inc["novel_groups"])
		} else {
			assert.Equal(t, want, inc["novel_groups"])
		}
	}
}

func TestAnalyzeMissingInput(t *testing.T) {
	_, _, err := execute(t, "analyze", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestAnalyzeRejectsBadFlags(t *testing.T) {
	in := fixtureDir(t, "sm-s928")
	_, _, err := execute(t, "analyze", in, "--verbosity=loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "output.verbosity")
}

func TestAnalyzeBadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumpsift.yaml")
	require.NoError(t, os.WriteFile(path, []byte("parse:\n  workers: 0\n"), 0o644))
	_, _, err := execute(t, "--config="+path, "analyze", fixtureDir(t, "sm-s928"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse.workers")
}

func TestClassifyJSON(t *testing.T) {
	in := fixtureDir(t, "sm-s928")

	stdout, _, err := execute(t, "classify", "--json", in)
	require.NoError(t, err)

	kinds := map[string]string{}
	for _, l := range strings.Split(strings.TrimSpace(stdout), "\n") {
		var row struct {
			Name string `json:"name"`
			Kind string `json:"kind"`
		}
		require.NoError(t, json.Unmarshal([]byte(l), &row))
		kinds[filepath.Base(row.Name)] = row.Kind
	}
	assert.Equal(t, map[string]string{
		"bugreport-SM-S928-ABC123-2024-03-05.txt": "bugreport",
		"dmesg.txt":  "kernel",
		"logcat.txt": "logcat",
	}, kinds)
}

func TestClassifyTable(t *testing.T) {
	stdout, _, err := execute(t, "classify", fixtureDir(t, "truncated-tombstone"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "tombstone")
	assert.Contains(t, stdout, "Artifacts")
}

func TestRulesValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte(`rules:
  - id: cam-hal
    component: CameraService
    contains: ["HAL died"]
    subsystem: Multimedia/Camera
`), 0o644))
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`rules:
  - id: broken
    patterns: ["("]
    subsystem: Native
`), 0o644))

	stdout, _, err := execute(t, "rules", "validate", good)
	require.NoError(t, err)
	assert.Contains(t, stdout, "1 rule(s) ok")

	stdout, _, err = execute(t, "rules", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, stdout, `rule "broken"`)
	assert.Contains(t, err.Error(), "1 of 1 rule(s) invalid")
}

func TestRulesValidateDuplicateOfDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - id: anr
    contains: ["ANR in"]
    subsystem: Apps/Framework
`), 0o644))

	_, _, err := execute(t, "rules", "validate", path)
	require.NoError(t, err)

	_, _, err = execute(t, "rules", "validate", "--with-defaults", path)
	assert.Error(t, err)
}

func TestRulesList(t *testing.T) {
	stdout, _, err := execute(t, "rules", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "kernel-oom")
	assert.Contains(t, stdout, "Kernel/Memory")
}

func TestCategorize(t *testing.T) {
	stdout, _, err := execute(t, "categorize", "--title=Camera app crashes", "--content=FATAL EXCEPTION in preview")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Primary:   Crash Issue")
	assert.Contains(t, stdout, "Secondary: Camera Issue")
}

func TestCategorizeNeedsText(t *testing.T) {
	_, _, err := execute(t, "categorize")
	assert.Error(t, err)
}
