package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/engine/rules"
	"github.com/crimson-sun/dumpsift/internal/metrics"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/store"
	"github.com/crimson-sun/dumpsift/internal/testdata"
)

func isOrdered(events []*model.Event) bool {
	for i := 1; i < len(events); i++ {
		if model.Compare(events[i-1], events[i]) > 0 {
			return false
		}
	}
	return true
}

func artifact(name, content string) model.Artifact {
	return model.Artifact{Name: name, Reader: strings.NewReader(content), ModTime: fixtureModTime}
}

// recorder is an output.Output that keeps what it is given.
type recorder struct {
	mu     sync.Mutex
	events []*model.Event
	closed bool
}

func (r *recorder) Write(_ context.Context, e *model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) Close() error {
	r.closed = true
	return nil
}

type failingOutput struct{}

func (failingOutput) Write(context.Context, *model.Event) error { return errors.New("disk full") }
func (failingOutput) Close() error                              { return nil }

func TestRunNoArtifacts(t *testing.T) {
	p := New(DefaultConfig())

	_, err := p.Run(context.Background(), Case{})
	assert.ErrorIs(t, err, ErrNoArtifacts)

	_, err = p.Run(context.Background(), Case{Artifacts: []model.Artifact{artifact("notes.bin", "hello there\n")}})
	assert.ErrorIs(t, err, ErrNoArtifacts)
}

func TestRunUnknownArtifactWarns(t *testing.T) {
	p := New(DefaultConfig())
	res, err := p.Run(context.Background(), Case{Artifacts: []model.Artifact{
		artifact("notes.bin", "hello there\n"),
		artifact("logcat.txt", "03-05 10:11:08.000  1000  1234  1250 W WifiService: scan failed\n"),
	}})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarnClassificationUnknown, res.Warnings[0].Kind)
	assert.Equal(t, "notes.bin", res.Warnings[0].File)
	require.Len(t, res.Artifacts, 2)
	assert.Equal(t, model.KindUnknown, res.Artifacts[0].Kind)
	assert.Equal(t, model.KindLogcat, res.Artifacts[1].Kind)
	assert.Len(t, res.Events, 1)
	assert.NotEmpty(t, res.CaseID, "case id generated")
}

func TestRunUnanchoredKernel(t *testing.T) {
	p := New(DefaultConfig())
	res, err := p.Run(context.Background(), Case{Artifacts: []model.Artifact{
		artifact("dmesg", "[    1.000000] binder: 1:1 transaction failed\n[    2.500000] binder: 1:1 transaction failed\n"),
	}})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarnTimeAnchorMissing, res.Warnings[0].Kind)
	assert.Equal(t, "dmesg", res.Warnings[0].File)
	assert.Contains(t, res.Warnings[0].Reason, "2 event(s)")

	require.Len(t, res.Events, 2)
	for _, e := range res.Events {
		assert.True(t, e.Unanchored)
	}
	assert.Equal(t, 1500*time.Millisecond, res.Events[1].Timestamp.Sub(res.Events[0].Timestamp))
	assert.Equal(t, model.UnknownDevice().Ref(), res.Device.Ref())
}

func TestRunTotalOrderAcrossArtifacts(t *testing.T) {
	// two logcat files with the same timestamps: ties fall back to
	// ingestion order, then sequence
	a := "03-05 10:11:08.000  1000  1  1 I A: a0\n03-05 10:11:09.000  1000  1  1 I A: a1\n"
	b := "03-05 10:11:08.000  1000  2  2 I B: b0\n03-05 10:11:08.000  1000  2  2 I B: b1\n"
	p := New(DefaultConfig())
	res, err := p.Run(context.Background(), Case{Artifacts: []model.Artifact{
		artifact("logcat-a.txt", a),
		artifact("logcat-b.txt", b),
	}})
	require.NoError(t, err)

	var texts []string
	for _, e := range res.Events {
		texts = append(texts, e.Text)
	}
	assert.Equal(t, []string{"a0", "b0", "b1", "a1"}, texts)
}

func TestRunDeterministicAcrossWorkerCounts(t *testing.T) {
	summarize := func(res *Result) []string {
		var out []string
		for _, e := range res.Events {
			fp, _ := e.Signature()
			out = append(out, fmt.Sprintf("%s|%s|%s|%s", e.Timestamp.Format(time.RFC3339Nano), e.Source, fp, e.Text))
		}
		for _, g := range res.Groups {
			out = append(out, fmt.Sprintf("group %s %d", g.Fingerprint, g.Count))
		}
		return out
	}

	eng, invalid, err := rules.Compile(rules.Defaults(), true)
	require.NoError(t, err)
	var runs [][]string
	for _, workers := range []int{1, 8} {
		cfg := DefaultConfig()
		cfg.Workers = workers
		p := New(cfg, WithRules(eng, invalid))
		runs = append(runs, summarize(runFixture(t, p, "sm-s928")))
	}
	if diff := cmp.Diff(runs[0], runs[1]); diff != "" {
		t.Errorf("results differ by worker count (-1 +8):\n%s", diff)
	}
}

func TestRunStreamsToOutput(t *testing.T) {
	rec := &recorder{}
	res := runFixture(t, newDefaultPipeline(t, WithOutput(rec)), "sm-s928")

	require.Len(t, rec.events, len(res.Events))
	for i := range res.Events {
		assert.Same(t, res.Events[i], rec.events[i])
	}
	assert.False(t, rec.closed, "the caller owns the output")
}

func TestRunOutputError(t *testing.T) {
	p := newDefaultPipeline(t, WithOutput(failingOutput{}))
	_, err := p.Run(context.Background(), Case{Artifacts: []model.Artifact{
		artifact("logcat.txt", "03-05 10:11:08.000  1000  1234  1250 W WifiService: scan failed\n"),
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(DefaultConfig()).Run(ctx, Case{Artifacts: []model.Artifact{
		artifact("logcat.txt", "03-05 10:11:08.000  1000  1234  1250 W WifiService: scan failed\n"),
	}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunDeviceOverride(t *testing.T) {
	dev := model.NewDevice(model.DeviceInfo{Model: "SM-A556", Build: "XYZ", TimeZone: "Europe/Berlin"})
	res, err := New(DefaultConfig()).Run(context.Background(), Case{
		Device: dev,
		Artifacts: []model.Artifact{
			artifact("logcat.txt", "03-05 10:11:08.000  1000  1234  1250 W WifiService: scan failed\n"),
		},
	})
	require.NoError(t, err)

	assert.Same(t, dev, res.Device)
	require.Len(t, res.Events, 1)
	assert.Equal(t, time.Date(2024, 3, 5, 9, 11, 8, 0, time.UTC), res.Events[0].Timestamp)
}

func TestRunInvalidRulesBecomeWarnings(t *testing.T) {
	defs := []model.Rule{
		{ID: "ok", Contains: []string{"scan failed"}, Subsystem: "Connectivity/Wi-Fi"},
		{ID: "broken", Patterns: []string{"("}, Subsystem: "Connectivity/Wi-Fi"},
	}
	eng, invalid, err := rules.Compile(defs, true)
	require.NoError(t, err)
	require.Len(t, invalid, 1)

	res, err := New(DefaultConfig(), WithRules(eng, invalid)).Run(context.Background(), Case{Artifacts: []model.Artifact{
		artifact("logcat.txt", "03-05 10:11:08.000  1000  1234  1250 W WifiService: scan failed\n"),
	}})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.WarnRuleInvalid, res.Warnings[0].Kind)
	assert.Contains(t, res.Warnings[0].Reason, "broken")
	require.Len(t, res.Matches, 1)
	assert.Equal(t, "ok", res.Matches[0].RuleID)
}

func TestRunHistoryMarksRecurringGroups(t *testing.T) {
	h, err := store.Open(store.Config{InMemory: true})
	require.NoError(t, err)
	defer h.Close()

	p := newDefaultPipeline(t, WithHistory(h))
	arts, err := testdata.Artifacts("sm-s928", fixtureModTime)
	require.NoError(t, err)
	first, err := p.Run(context.Background(), Case{ID: "case-1", Artifacts: arts})
	require.NoError(t, err)
	assert.Equal(t, len(first.Groups), first.Incident.NovelGroups)
	for _, g := range first.Groups {
		assert.False(t, g.Recurring)
	}

	arts, err = testdata.Artifacts("sm-s928", fixtureModTime)
	require.NoError(t, err)
	second, err := p.Run(context.Background(), Case{ID: "case-2", Artifacts: arts})
	require.NoError(t, err)
	assert.Zero(t, second.Incident.NovelGroups)
	for _, g := range second.Groups {
		assert.True(t, g.Recurring, g.Template)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	m := metrics.New()
	runFixture(t, newDefaultPipeline(t, WithMetrics(m)), "sm-s928")

	// meta, logcat-main and kernel
	n, err := testutil.GatherAndCount(m.Registry(), "dumpsift_events_total")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = testutil.GatherAndCount(m.Registry(), "dumpsift_rule_matches_total")
	require.NoError(t, err)
	assert.Positive(t, n)
}
