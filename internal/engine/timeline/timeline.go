// Package timeline buckets signed events and rule matches into an incident
// summary with spike detection and a suspected subsystem.
package timeline

import (
	"cmp"
	"slices"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Config controls bucketing, spike detection and subsystem scoring.
type Config struct {
	BucketWidth     time.Duration // default 1m
	SpikeMultiplier float64       // default 5
	SpikeWindow     int           // trailing buckets averaged, default 5
	MaxBuckets      int           // width doubles until the span fits, default 1440
	HintWeight      float64       // group hint contribution, default 0.25
	MaxGroups       int           // group timelines kept, 0 keeps all
}

// DefaultConfig returns the builder defaults.
func DefaultConfig() Config {
	return Config{
		BucketWidth:     time.Minute,
		SpikeMultiplier: 5,
		SpikeWindow:     5,
		MaxBuckets:      1440,
		HintWeight:      0.25,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BucketWidth <= 0 {
		c.BucketWidth = d.BucketWidth
	}
	if c.SpikeMultiplier <= 0 {
		c.SpikeMultiplier = d.SpikeMultiplier
	}
	if c.SpikeWindow <= 0 {
		c.SpikeWindow = d.SpikeWindow
	}
	if c.MaxBuckets <= 0 {
		c.MaxBuckets = d.MaxBuckets
	}
	if c.HintWeight < 0 {
		c.HintWeight = 0
	}
	return c
}

// Input is everything the builder aggregates. Events must be in case order.
type Input struct {
	CaseID  string
	Device  *model.Device
	Events  []*model.Event
	Groups  []model.SignatureGroup
	Matches []model.RuleMatch
}

// Builder produces incidents. It holds no per-case state.
type Builder struct {
	cfg Config
}

// New creates a Builder. Zero config fields take their defaults.
func New(cfg Config) *Builder {
	return &Builder{cfg: cfg.withDefaults()}
}

// Build aggregates in into a read-only incident.
func (b *Builder) Build(in Input) *model.Incident {
	inc := &model.Incident{
		CaseID: in.CaseID,
		Device: in.Device,
	}
	if len(in.Events) == 0 {
		return inc
	}
	inc.Start, inc.End = in.Events[0].Timestamp, in.Events[0].Timestamp
	for _, e := range in.Events {
		if e.Timestamp.Before(inc.Start) {
			inc.Start = e.Timestamp
		}
		if e.Timestamp.After(inc.End) {
			inc.End = e.Timestamp
		}
	}

	width := b.cfg.BucketWidth
	origin := inc.Start.Truncate(width)
	n := int(inc.End.Sub(origin)/width) + 1
	for n > b.cfg.MaxBuckets {
		width *= 2
		origin = inc.Start.Truncate(width)
		n = int(inc.End.Sub(origin)/width) + 1
	}
	inc.BucketWidth = width
	index := func(t time.Time) int {
		i := int(t.Sub(origin) / width)
		return min(max(i, 0), n-1)
	}

	inc.Buckets = make([]model.Bucket, n)
	for i := range inc.Buckets {
		inc.Buckets[i].Start = origin.Add(time.Duration(i) * width)
	}

	groups := b.selectGroups(in.Groups)
	perGroup := make(map[model.Fingerprint][]int, len(groups))
	for _, g := range groups {
		perGroup[g.Fingerprint] = make([]int, n)
	}
	for _, e := range in.Events {
		i := index(e.Timestamp)
		inc.Buckets[i].Events++
		if fp, ok := e.Signature(); ok {
			if counts := perGroup[fp]; counts != nil {
				counts[i] += e.Occurrences()
			}
		}
	}

	for _, g := range groups {
		counts := perGroup[g.Fingerprint]
		spikes := b.spikes(counts)
		inc.Groups = append(inc.Groups, model.GroupTimeline{
			Fingerprint:    g.Fingerprint,
			Template:       g.Template,
			Representative: g.Representative,
			Subsystem:      g.Subsystem,
			Level:          g.Level,
			Count:          g.Count,
			First:          g.First,
			Last:           g.Last,
			PerBucket:      counts,
			Spikes:         spikes,
		})
		addBucketCounts(inc.Buckets, g.Fingerprint.String(), counts, spikes, func(b *model.Bucket) *[]model.BucketCount { return &b.Groups })
	}

	inc.Rules = b.ruleTimelines(in.Matches, n, index)
	for _, r := range inc.Rules {
		addBucketCounts(inc.Buckets, r.RuleID, r.PerBucket, r.Spikes, func(b *model.Bucket) *[]model.BucketCount { return &b.Rules })
	}
	for i := range inc.Buckets {
		sortCounts(inc.Buckets[i].Groups)
		sortCounts(inc.Buckets[i].Rules)
	}

	inc.Subsystems = b.score(in.Matches, in.Groups)
	if len(inc.Subsystems) > 0 {
		inc.SuspectedSubsystem = inc.Subsystems[0].Subsystem
	}
	return inc
}

// selectGroups orders groups by first occurrence and keeps the MaxGroups
// largest when a cap is set.
func (b *Builder) selectGroups(all []model.SignatureGroup) []model.SignatureGroup {
	groups := slices.Clone(all)
	if b.cfg.MaxGroups > 0 && len(groups) > b.cfg.MaxGroups {
		slices.SortStableFunc(groups, func(a, b model.SignatureGroup) int {
			if c := cmp.Compare(b.Level, a.Level); c != 0 {
				return c
			}
			return cmp.Compare(b.Count, a.Count)
		})
		groups = groups[:b.cfg.MaxGroups]
	}
	slices.SortStableFunc(groups, func(a, b model.SignatureGroup) int { return a.First.Compare(b.First) })
	return groups
}

func (b *Builder) ruleTimelines(matches []model.RuleMatch, n int, index func(time.Time) int) []model.RuleTimeline {
	byID := make(map[string]*model.RuleTimeline)
	var order []string
	for _, m := range matches {
		rt, ok := byID[m.RuleID]
		if !ok {
			rt = &model.RuleTimeline{
				RuleID:    m.RuleID,
				Subsystem: m.Subsystem,
				Severity:  m.Severity,
				First:     m.Timestamp,
				Last:      m.Timestamp,
				PerBucket: make([]int, n),
			}
			byID[m.RuleID] = rt
			order = append(order, m.RuleID)
		}
		rt.Count++
		rt.PerBucket[index(m.Timestamp)]++
		if m.Timestamp.Before(rt.First) {
			rt.First = m.Timestamp
		}
		if m.Timestamp.After(rt.Last) {
			rt.Last = m.Timestamp
		}
	}
	out := make([]model.RuleTimeline, 0, len(order))
	for _, id := range order {
		rt := byID[id]
		rt.Spikes = b.spikes(rt.PerBucket)
		out = append(out, *rt)
	}
	slices.SortStableFunc(out, func(a, b model.RuleTimeline) int {
		if c := a.First.Compare(b.First); c != 0 {
			return c
		}
		return cmp.Compare(a.RuleID, b.RuleID)
	})
	return out
}

// spikes returns the buckets whose count exceeds SpikeMultiplier times the
// trailing average of the preceding SpikeWindow buckets. The average is
// floored at 1 so that a lone burst against silence still counts.
func (b *Builder) spikes(counts []int) []int {
	var out []int
	for i, c := range counts {
		if c == 0 {
			continue
		}
		lo := max(i-b.cfg.SpikeWindow, 0)
		avg := 0.0
		if i > lo {
			sum := 0
			for _, v := range counts[lo:i] {
				sum += v
			}
			avg = float64(sum) / float64(i-lo)
		}
		if float64(c) > b.cfg.SpikeMultiplier*max(avg, 1) {
			out = append(out, i)
		}
	}
	return out
}

func addBucketCounts(buckets []model.Bucket, key string, counts, spikes []int, field func(*model.Bucket) *[]model.BucketCount) {
	for i, c := range counts {
		if c == 0 {
			continue
		}
		dst := field(&buckets[i])
		*dst = append(*dst, model.BucketCount{Key: key, Count: c, Spike: slices.Contains(spikes, i)})
	}
}

func sortCounts(c []model.BucketCount) {
	slices.SortStableFunc(c, func(a, b model.BucketCount) int {
		if x := cmp.Compare(b.Count, a.Count); x != 0 {
			return x
		}
		return cmp.Compare(a.Key, b.Key)
	})
}

// levelWeight scales a group's hint contribution; groups below WARN carry
// no evidence.
func levelWeight(l model.Level) float64 {
	switch {
	case l >= model.LevelFatal:
		return 3
	case l == model.LevelError:
		return 2
	case l == model.LevelWarn:
		return 1
	}
	return 0
}

// score weighs subsystems by rule severity and by hinted signature groups,
// highest weight first, ties broken by earliest evidence.
func (b *Builder) score(matches []model.RuleMatch, groups []model.SignatureGroup) []model.SubsystemScore {
	byName := make(map[string]*model.SubsystemScore)
	get := func(name string, first time.Time) *model.SubsystemScore {
		s, ok := byName[name]
		if !ok {
			s = &model.SubsystemScore{Subsystem: name, First: first}
			byName[name] = s
		}
		if first.Before(s.First) {
			s.First = first
		}
		return s
	}
	for _, m := range matches {
		if m.Subsystem == "" {
			continue
		}
		s := get(m.Subsystem, m.Timestamp)
		s.Weight += m.Severity.Weight()
		s.Rules++
	}
	for _, g := range groups {
		w := float64(g.Count) * levelWeight(g.Level) * b.cfg.HintWeight
		if g.Subsystem == "" || w == 0 {
			continue
		}
		s := get(g.Subsystem, g.First)
		s.Weight += w
		s.Groups++
	}

	out := make([]model.SubsystemScore, 0, len(byName))
	for _, s := range byName {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b model.SubsystemScore) int {
		if c := cmp.Compare(b.Weight, a.Weight); c != 0 {
			return c
		}
		if c := a.First.Compare(b.First); c != 0 {
			return c
		}
		return cmp.Compare(a.Subsystem, b.Subsystem)
	})
	return out
}
