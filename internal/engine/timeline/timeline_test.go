package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/dumpsift/internal/model"
)

var t0 = time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC)

func signed(fp model.Fingerprint, at time.Duration, seq int) *model.Event {
	e := &model.Event{
		Timestamp: t0.Add(at),
		Source:    model.SourceLogcatMain,
		Level:     model.LevelError,
		Order:     model.Order{Seq: seq},
	}
	if fp != 0 {
		_ = e.SetSignature(fp)
	}
	return e
}

func TestSpikeOnBurst(t *testing.T) {
	var events []*model.Event
	for i := range 100 {
		events = append(events, signed(1, 10*time.Second+time.Duration(i)*100*time.Millisecond, i))
	}
	group := model.SignatureGroup{Fingerprint: 1, Count: 100, EventCount: 100, Level: model.LevelError, First: events[0].Timestamp, Last: events[99].Timestamp}

	inc := New(Config{SpikeMultiplier: 5}).Build(Input{Events: events, Groups: []model.SignatureGroup{group}})

	require.Len(t, inc.Buckets, 1)
	assert.Equal(t, 100, inc.Buckets[0].Events)
	require.Len(t, inc.Buckets[0].Groups, 1)
	assert.True(t, inc.Buckets[0].Groups[0].Spike)
	assert.Equal(t, model.Fingerprint(1).String(), inc.Buckets[0].Groups[0].Key)
	require.Len(t, inc.Groups, 1)
	assert.Equal(t, []int{100}, inc.Groups[0].PerBucket)
	assert.Equal(t, []int{0}, inc.Groups[0].Spikes)
}

func TestSpikeAgainstTrailingAverage(t *testing.T) {
	b := New(Config{SpikeMultiplier: 5, SpikeWindow: 3})
	assert.Equal(t, []int{4}, b.spikes([]int{2, 2, 2, 0, 20}))
	assert.Empty(t, b.spikes([]int{4, 4, 4, 4}))
	assert.Equal(t, []int{0}, b.spikes([]int{6, 10, 10}))
	assert.Empty(t, b.spikes([]int{0, 5}))
}

func TestBucketsSpanFirstToLast(t *testing.T) {
	events := []*model.Event{
		signed(1, 30*time.Second, 0),
		signed(2, 90*time.Second, 1),
		signed(0, 5*time.Minute+time.Second, 2),
	}
	inc := New(DefaultConfig()).Build(Input{Events: events})

	assert.Equal(t, t0.Add(30*time.Second), inc.Start)
	assert.Equal(t, t0.Add(5*time.Minute+time.Second), inc.End)
	assert.Equal(t, time.Minute, inc.BucketWidth)
	require.Len(t, inc.Buckets, 6)
	assert.Equal(t, t0, inc.Buckets[0].Start)
	assert.Equal(t, []int{1, 1, 0, 0, 0, 1}, []int{
		inc.Buckets[0].Events, inc.Buckets[1].Events, inc.Buckets[2].Events,
		inc.Buckets[3].Events, inc.Buckets[4].Events, inc.Buckets[5].Events,
	})
}

func TestBucketWidthWidens(t *testing.T) {
	events := []*model.Event{signed(1, 0, 0), signed(1, 10*time.Hour, 1)}
	inc := New(Config{BucketWidth: time.Minute, MaxBuckets: 100}).Build(Input{Events: events})

	assert.Equal(t, 8*time.Minute, inc.BucketWidth)
	assert.LessOrEqual(t, len(inc.Buckets), 100)
	assert.Equal(t, 1, inc.Buckets[0].Events)
	assert.Equal(t, 1, inc.Buckets[len(inc.Buckets)-1].Events)
}

func TestRuleTimelines(t *testing.T) {
	e1, e2, e3 := signed(1, 0, 0), signed(1, 2*time.Second, 1), signed(2, 61*time.Second, 2)
	matches := []model.RuleMatch{
		{RuleID: "anr", Event: e1, Timestamp: e1.Timestamp, Severity: model.SeverityHigh, Subsystem: "Apps/Framework"},
		{RuleID: "anr", Event: e2, Timestamp: e2.Timestamp, Severity: model.SeverityHigh, Subsystem: "Apps/Framework"},
		{RuleID: "kernel-oom", Event: e3, Timestamp: e3.Timestamp, Severity: model.SeverityMedium, Subsystem: "Kernel/Memory"},
	}
	inc := New(DefaultConfig()).Build(Input{Events: []*model.Event{e1, e2, e3}, Matches: matches})

	require.Len(t, inc.Rules, 2)
	anr := inc.Rules[0]
	assert.Equal(t, "anr", anr.RuleID)
	assert.Equal(t, 2, anr.Count)
	assert.Equal(t, 2*time.Second, anr.Last.Sub(anr.First))
	assert.Equal(t, []int{2, 0}, anr.PerBucket)
	assert.Equal(t, []model.BucketCount{{Key: "kernel-oom", Count: 1}}, inc.Buckets[1].Rules)
	assert.Equal(t, "Apps/Framework", inc.SuspectedSubsystem)
}

func TestSuspectedSubsystem(t *testing.T) {
	b := New(DefaultConfig())

	t.Run("severity outweighs count", func(t *testing.T) {
		matches := []model.RuleMatch{
			{RuleID: "oom", Timestamp: t0, Severity: model.SeverityLow, Subsystem: "Kernel/Memory"},
			{RuleID: "oom", Timestamp: t0, Severity: model.SeverityLow, Subsystem: "Kernel/Memory"},
			{RuleID: "panic", Timestamp: t0.Add(time.Minute), Severity: model.SeverityCritical, Subsystem: "Kernel"},
		}
		scores := b.score(matches, nil)
		require.Len(t, scores, 2)
		assert.Equal(t, "Kernel", scores[0].Subsystem)
		assert.Equal(t, 5.0, scores[0].Weight)
		assert.Equal(t, 2, scores[1].Rules)
	})

	t.Run("tie goes to earliest", func(t *testing.T) {
		matches := []model.RuleMatch{
			{RuleID: "b", Timestamp: t0.Add(time.Second), Severity: model.SeverityHigh, Subsystem: "Telephony"},
			{RuleID: "a", Timestamp: t0, Severity: model.SeverityHigh, Subsystem: "Connectivity/Wi-Fi"},
		}
		scores := b.score(matches, nil)
		assert.Equal(t, "Connectivity/Wi-Fi", scores[0].Subsystem)
	})

	t.Run("group hints", func(t *testing.T) {
		groups := []model.SignatureGroup{
			{Count: 10, Level: model.LevelError, Subsystem: "Multimedia/Camera", First: t0},
			{Count: 1000, Level: model.LevelInfo, Subsystem: "UI/Display", First: t0},
			{Count: 50, Level: model.LevelError, First: t0},
		}
		scores := b.score(nil, groups)
		require.Len(t, scores, 1)
		assert.Equal(t, "Multimedia/Camera", scores[0].Subsystem)
		assert.Equal(t, 5.0, scores[0].Weight)
		assert.Equal(t, 1, scores[0].Groups)
	})
}

func TestMaxGroups(t *testing.T) {
	groups := []model.SignatureGroup{
		{Fingerprint: 1, Count: 5, Level: model.LevelInfo, First: t0},
		{Fingerprint: 2, Count: 1, Level: model.LevelFatal, First: t0.Add(time.Second)},
		{Fingerprint: 3, Count: 9, Level: model.LevelInfo, First: t0.Add(2 * time.Second)},
	}
	inc := New(Config{MaxGroups: 2}).Build(Input{Events: []*model.Event{signed(1, 0, 0)}, Groups: groups})
	require.Len(t, inc.Groups, 2)
	assert.Equal(t, model.Fingerprint(2), inc.Groups[0].Fingerprint)
	assert.Equal(t, model.Fingerprint(3), inc.Groups[1].Fingerprint)
}

func TestEmptyInput(t *testing.T) {
	inc := New(DefaultConfig()).Build(Input{CaseID: "c1"})
	assert.Equal(t, "c1", inc.CaseID)
	assert.Empty(t, inc.Buckets)
	assert.Empty(t, inc.SuspectedSubsystem)
}
