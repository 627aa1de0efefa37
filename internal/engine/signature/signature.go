// Package signature fingerprints events by their masked message template and
// groups repeated occurrences.
package signature

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Config controls fingerprinting and the group table.
type Config struct {
	Shards           int  // table shards (default 64)
	MaxFrames        int  // stack-frame lines kept in the template (default 3)
	IncludeComponent bool // hash the component together with the template
}

// DefaultConfig returns the defaults used by the pipeline.
func DefaultConfig() Config {
	return Config{Shards: 64, MaxFrames: 3, IncludeComponent: true}
}

// representativeBytes caps the representative text kept per group.
const representativeBytes = 512

// group accumulates the events sharing one fingerprint.
type group struct {
	model.SignatureGroup
	rep     *model.Event
	sources map[model.Source]struct{}
}

type shard struct {
	mu     sync.Mutex
	groups map[model.Fingerprint]*group
}

// Engine computes fingerprints and maintains the fingerprint → group table
// for one run. Observe is safe for concurrent use.
type Engine struct {
	cfg    Config
	shards []*shard
}

// New creates an Engine. Zero config fields take their defaults.
func New(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.Shards <= 0 {
		cfg.Shards = def.Shards
	}
	if cfg.MaxFrames < 0 {
		cfg.MaxFrames = 0
	}
	e := &Engine{cfg: cfg, shards: make([]*shard, cfg.Shards)}
	for i := range e.shards {
		e.shards[i] = &shard{groups: make(map[model.Fingerprint]*group)}
	}
	return e
}

// Fingerprint returns the template and fingerprint for an event's component
// and text without touching the table.
func (e *Engine) Fingerprint(component, text string) (model.Fingerprint, string) {
	tmpl := Template(text, e.cfg.MaxFrames)
	h := xxhash.New()
	if e.cfg.IncludeComponent {
		_, _ = h.WriteString(component)
	}
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(tmpl)
	return model.Fingerprint(h.Sum64()), tmpl
}

// Observe signs ev and folds it into its group. An event that already
// carries a signature is rejected with model.ErrSignatureFrozen and not
// counted again.
func (e *Engine) Observe(ev *model.Event) (model.Fingerprint, error) {
	fp, tmpl := e.Fingerprint(ev.Component, ev.Text)
	if err := ev.SetSignature(fp); err != nil {
		return 0, fmt.Errorf("observe %s:%d: %w", ev.File, ev.Line, err)
	}

	s := e.shards[uint64(fp)%uint64(len(e.shards))]
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[fp]
	if !ok {
		g = &group{
			SignatureGroup: model.SignatureGroup{
				Fingerprint: fp,
				Template:    tmpl,
				First:       ev.Timestamp,
				Last:        ev.Timestamp,
			},
			sources: make(map[model.Source]struct{}),
		}
		s.groups[fp] = g
	}
	g.Count += ev.Occurrences()
	g.EventCount++
	if ev.Timestamp.Before(g.First) {
		g.First = ev.Timestamp
	}
	if ev.Timestamp.After(g.Last) {
		g.Last = ev.Timestamp
	}
	if ev.Level > g.Level {
		g.Level = ev.Level
	}
	g.sources[ev.Source] = struct{}{}
	if g.rep == nil || model.Less(ev, g.rep) {
		g.rep = ev
	}
	return fp, nil
}

// Len returns the number of groups.
func (e *Engine) Len() int {
	n := 0
	for _, s := range e.shards {
		s.mu.Lock()
		n += len(s.groups)
		s.mu.Unlock()
	}
	return n
}

// Group returns a snapshot of the group for fp.
func (e *Engine) Group(fp model.Fingerprint) (model.SignatureGroup, bool) {
	s := e.shards[uint64(fp)%uint64(len(e.shards))]
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[fp]
	if !ok {
		return model.SignatureGroup{}, false
	}
	return g.snapshot(), true
}

// Groups returns snapshots of every group ordered by first occurrence, then
// by representative event order.
func (e *Engine) Groups() []model.SignatureGroup {
	type entry struct {
		sg  model.SignatureGroup
		rep *model.Event
	}
	var all []entry
	for _, s := range e.shards {
		s.mu.Lock()
		for _, g := range s.groups {
			all = append(all, entry{g.snapshot(), g.rep})
		}
		s.mu.Unlock()
	}
	slices.SortFunc(all, func(a, b entry) int {
		if c := a.sg.First.Compare(b.sg.First); c != 0 {
			return c
		}
		return model.Compare(a.rep, b.rep)
	})
	out := make([]model.SignatureGroup, len(all))
	for i, en := range all {
		out[i] = en.sg
	}
	return out
}

func (g *group) snapshot() model.SignatureGroup {
	sg := g.SignatureGroup
	sg.Component = g.rep.Component
	sg.Representative = representative(g.rep.Text)
	sg.Sources = make([]model.Source, 0, len(g.sources))
	for src := range g.sources {
		sg.Sources = append(sg.Sources, src)
	}
	slices.SortFunc(sg.Sources, func(a, b model.Source) int { return a.Rank() - b.Rank() })
	return sg
}

// representative is the first line of text, capped.
func representative(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	if len(line) > representativeBytes {
		line = line[:representativeBytes] + "…"
	}
	return line
}

// Summary renders a group as "representative (x3 in 2s)". Single
// occurrences render as the representative alone.
func Summary(g model.SignatureGroup) string {
	if g.Count <= 1 {
		return g.Representative
	}
	return fmt.Sprintf("%s (x%d in %s)", g.Representative, g.Count, formatDuration(g.Last.Sub(g.First)))
}

// formatDuration produces a human-readable short duration string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dm%ds", mins, secs)
}
