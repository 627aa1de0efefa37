// Package timenorm resolves the timestamps parsers find (absolute, device
// local, year-less, uptime-relative or missing) to UTC instants.
//
// The device's dump wall-clock time and uptime-at-dump give the boot
// instant, which anchors kernel uptimes. Without that pair relative times
// are resolved against a fallback base and flagged unanchored; Rebase later
// moves them next to the rest of the case.
package timenorm

import (
	"fmt"
	"time"
	_ "time/tzdata" // device zones must resolve on hosts without a zoneinfo database

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Options tunes a Normalizer.
type Options struct {
	// TimeZone overrides the device's zone for local timestamps.
	TimeZone string
	// Reference supplies the year for year-less timestamps when the device
	// has no dump time. Zero means the year of the Unix epoch.
	Reference time.Time
}

// Normalizer resolves TimeRefs for one case. It is read-only after New and
// safe for concurrent use.
type Normalizer struct {
	loc      *time.Location
	ref      time.Time // local wall clock used to infer missing years
	boot     time.Time // UTC instant of boot; valid when anchored
	anchored bool
}

// New builds a Normalizer for dev. An unknown zone name is an error when it
// comes from opts and falls back to UTC when it comes from the device.
func New(dev *model.Device, opts Options) (*Normalizer, error) {
	n := &Normalizer{loc: time.UTC}
	switch {
	case opts.TimeZone != "":
		loc, err := time.LoadLocation(opts.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("timezone override %q: %w", opts.TimeZone, err)
		}
		n.loc = loc
	case dev.TimeZone() != "":
		if loc, err := time.LoadLocation(dev.TimeZone()); err == nil {
			n.loc = loc
		}
	}

	n.ref = opts.Reference
	if n.ref.IsZero() {
		n.ref = time.Unix(0, 0).UTC()
	}
	wall, uptime, ok := dev.Anchor()
	if wall.Kind != model.TimeMissing {
		if dump, err := n.instant(wall); err == nil {
			n.ref = dump.In(n.loc)
			if ok {
				n.boot = dump.Add(-uptime)
				n.anchored = true
			}
		}
	}
	return n, nil
}

// Anchored reports whether relative timestamps resolve to real wall-clock
// time.
func (n *Normalizer) Anchored() bool { return n.anchored }

// Resolve returns ref as a UTC instant. Resolved refs are returned
// unchanged, so resolving twice is a no-op. Relative and missing times
// without an anchor resolve against the Unix epoch and come back with
// Unanchored set.
func (n *Normalizer) Resolve(ref model.TimeRef) model.TimeRef {
	if ref.IsResolved() {
		return ref
	}
	switch ref.Kind {
	case model.TimeRelative:
		if n.anchored {
			return resolved(n.boot.Add(ref.Uptime), ref.Unanchored)
		}
		return resolved(time.Unix(0, 0).Add(ref.Uptime), true)
	case model.TimeAbsolute, model.TimeLocal:
		t, err := n.instant(ref)
		if err != nil {
			return resolved(time.Unix(0, 0), true)
		}
		return resolved(t, ref.Unanchored)
	default:
		return resolved(time.Unix(0, 0), true)
	}
}

func resolved(t time.Time, unanchored bool) model.TimeRef {
	r := model.AbsoluteTime(t.UTC())
	r.Unanchored = unanchored
	return r
}

// instant converts an absolute or local ref to UTC.
func (n *Normalizer) instant(ref model.TimeRef) (time.Time, error) {
	switch ref.Kind {
	case model.TimeAbsolute:
		return ref.Wall.UTC(), nil
	case model.TimeLocal:
		w := ref.Wall
		year := w.Year()
		if ref.NoYear {
			year = n.ref.Year()
			// a month later than the reference belongs to the previous year
			if w.Month() > n.ref.Month() {
				year--
			}
		}
		return time.Date(year, w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), n.loc).UTC(), nil
	default:
		return time.Time{}, fmt.Errorf("time kind %d has no wall clock", ref.Kind)
	}
}

// Renormalize resolves the timestamps of already-built events again and
// returns how many changed. For events produced by this package it always
// returns 0.
func (n *Normalizer) Renormalize(events []*model.Event) int {
	changed := 0
	for _, e := range events {
		ref := model.AbsoluteTime(e.Timestamp)
		ref.Unanchored = e.Unanchored
		r := n.Resolve(ref)
		if !r.Wall.Equal(e.Timestamp) || r.Wall.Location() != e.Timestamp.Location() || r.Unanchored != e.Unanchored {
			e.Timestamp = r.Wall
			e.Unanchored = r.Unanchored
			changed++
		}
	}
	return changed
}

// Rebase shifts unanchored events from the epoch base onto the earliest
// anchored event time in the slice, keeping their relative spacing. It
// returns the base used; when no event is anchored the epoch stays. Events
// already at or after the base are left alone, so a second call is a no-op.
func Rebase(events []*model.Event) time.Time {
	epoch := time.Unix(0, 0).UTC()
	var base, first time.Time
	for _, e := range events {
		switch {
		case e.Unanchored:
			if first.IsZero() || e.Timestamp.Before(first) {
				first = e.Timestamp
			}
		case base.IsZero() || e.Timestamp.Before(base):
			base = e.Timestamp
		}
	}
	if base.IsZero() {
		return epoch
	}
	if first.IsZero() || !first.Before(base) {
		return base
	}
	shift := base.Sub(epoch)
	for _, e := range events {
		if e.Unanchored {
			e.Timestamp = e.Timestamp.Add(shift)
		}
	}
	return base
}
