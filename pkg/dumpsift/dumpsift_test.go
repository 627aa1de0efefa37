package dumpsift

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/testdata"
)

const anrLogcat = `--------- beginning of main
03-05 10:11:08.000  1000  1234  1250 E ActivityManager: ANR in com.example.app (com.example.app/.MainActivity) pid 4321
03-05 10:11:09.000  1000  1234  1250 E ActivityManager: ANR in com.example.app (com.example.app/.MainActivity) pid 4388
03-05 10:11:10.000  1000  1234  1250 E ActivityManager: ANR in com.example.app (com.example.app/.MainActivity) pid 4402
`

// copyCases writes the embedded fixture cases to a temporary directory.
func copyCases(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.CopyFS(dir, testdata.FS()))
	return dir
}

func newAnalyzer(t *testing.T, opts ...Option) *Analyzer {
	t.Helper()
	a, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

func TestAnalyzeFilesDirectory(t *testing.T) {
	dir := copyCases(t)
	a := newAnalyzer(t)

	report, err := a.AnalyzeFiles(context.Background(), filepath.Join(dir, "sm-s928"))
	require.NoError(t, err)

	assert.NotEmpty(t, report.CaseID)
	assert.Equal(t, "SM-S928", report.Device.Model)
	assert.Equal(t, "ABC123", report.Device.Build)
	assert.Len(t, report.Artifacts, 3)
	assert.Len(t, report.Events, 5)
	assert.Equal(t, "Apps/Framework", report.Incident.SuspectedSubsystem)
	assert.Empty(t, report.Warnings)

	for i := 1; i < len(report.Events); i++ {
		assert.False(t, report.Events[i].Timestamp.Before(report.Events[i-1].Timestamp), "events out of order at %d", i)
	}

	var anr *Group
	for i := range report.Groups {
		if report.Groups[i].Component == "ActivityManager" {
			anr = &report.Groups[i]
		}
	}
	require.NotNil(t, anr)
	assert.Equal(t, 3, anr.Count)
	assert.Equal(t, "ERROR", anr.Level)
	assert.Contains(t, anr.Summary, "x3")
	assert.Len(t, anr.Signature, 16)
}

func TestAnalyzeInputs(t *testing.T) {
	a := newAnalyzer(t, WithWorkers(2))

	report, err := a.Analyze(context.Background(), []Input{
		{Name: "main.log", Kind: "logcat", Reader: strings.NewReader(anrLogcat)},
	})
	require.NoError(t, err)

	require.Len(t, report.Events, 3)
	assert.Equal(t, "logcat-main", report.Events[0].Source)
	assert.Equal(t, "main.log", report.Events[0].File)
	assert.Equal(t, 2, report.Events[0].Line)
	assert.Equal(t, report.Events[0].Signature, report.Events[2].Signature)

	require.Len(t, report.Artifacts, 1)
	assert.Equal(t, "logcat", report.Artifacts[0].Kind)
	assert.Equal(t, "kind hint", report.Artifacts[0].Reason)

	var ids []string
	for _, m := range report.Matches {
		ids = append(ids, m.RuleID)
	}
	assert.Contains(t, ids, "anr")
	assert.Equal(t, "Apps/Framework", report.Incident.SuspectedSubsystem)
}

func TestAnalyzeNoArtifacts(t *testing.T) {
	a := newAnalyzer(t)
	_, err := a.Analyze(context.Background(), []Input{
		{Name: "notes.bin", Reader: strings.NewReader("\x00\x01\x02")},
	})
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestAnalyzeCancelled(t *testing.T) {
	a := newAnalyzer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Analyze(ctx, []Input{{Name: "logcat.txt", Reader: strings.NewReader(anrLogcat)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithDevice(t *testing.T) {
	a := newAnalyzer(t, WithDevice(DeviceInfo{Model: "SM-S928", Build: "ABC123", TimeZone: "Asia/Seoul"}))
	report, err := a.Analyze(context.Background(), []Input{
		{Name: "logcat.txt", Reader: strings.NewReader(anrLogcat), ModTime: time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	assert.Equal(t, "SM-S928", report.Device.Model)
	require.NotEmpty(t, report.Events)
	assert.Equal(t, time.Date(2024, 3, 5, 1, 11, 8, 0, time.UTC), report.Events[0].Timestamp)
}

func TestRulesRequiredWithoutRules(t *testing.T) {
	_, err := New(WithoutDefaultRules(), WithRulesRequired())
	assert.ErrorIs(t, err, ErrNoValidRules)
}

func TestRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`rules:
  - id: app-anr
    component: ActivityManager
    contains: ["ANR in"]
    severity: high
    subsystem: Apps/Framework
  - id: broken
    patterns: ["("]
    subsystem: Native
`), 0o644))

	a := newAnalyzer(t, WithoutDefaultRules(), WithRuleFile(path))
	require.Len(t, a.InvalidRules(), 1)
	assert.Contains(t, a.InvalidRules()[0], `"broken"`)

	report, err := a.Analyze(context.Background(), []Input{{Name: "logcat.txt", Reader: strings.NewReader(anrLogcat)}})
	require.NoError(t, err)
	require.Len(t, report.Matches, 3)
	assert.Equal(t, "app-anr", report.Matches[0].RuleID)
	assert.Equal(t, "high", report.Matches[0].Severity)
	assert.Contains(t, report.Matches[0].Text, "ANR in com.example.app")

	var kinds []string
	for _, w := range report.Warnings {
		kinds = append(kinds, w.Kind)
	}
	assert.Equal(t, []string{"RuleInvalid"}, kinds)
}

func TestMissingRuleFile(t *testing.T) {
	_, err := New(WithRuleFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBadVerbosity(t *testing.T) {
	_, err := New(WithVerbosity("loud"))
	assert.Error(t, err)
}

func TestHistoryMarksRecurringGroups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history")
	a := newAnalyzer(t, WithHistory(path))

	first, err := a.Analyze(context.Background(), []Input{{Name: "logcat.txt", Reader: strings.NewReader(anrLogcat)}})
	require.NoError(t, err)
	assert.Equal(t, len(first.Groups), first.Incident.NovelGroups)
	for _, g := range first.Groups {
		assert.False(t, g.Recurring)
	}

	second, err := a.Analyze(context.Background(), []Input{{Name: "logcat.txt", Reader: strings.NewReader(anrLogcat)}})
	require.NoError(t, err)
	assert.Zero(t, second.Incident.NovelGroups)
	require.NotEmpty(t, second.Groups)
	for _, g := range second.Groups {
		assert.True(t, g.Recurring, g.Template)
	}
}

func TestClassify(t *testing.T) {
	a := newAnalyzer(t)

	got := a.Classify("FS/data/tombstones/tombstone_03", nil)
	assert.Equal(t, "tombstone", got.Kind)

	got = a.Classify("capture.txt", []byte("== dumpstate: 2024-03-05 10:11:12\n"))
	assert.Equal(t, "bugreport", got.Kind)

	got = a.Classify("notes.md", []byte("hello world\n"))
	assert.Equal(t, "unknown", got.Kind)
	assert.NotEmpty(t, got.Reason)
}
