package model

import "time"

// TimeKind describes how a parser found an event's timestamp.
type TimeKind uint8

const (
	TimeMissing  TimeKind = iota // no timestamp in the record
	TimeAbsolute                 // an instant; Wall carries a real location
	TimeLocal                    // wall-clock fields in the device's zone
	TimeRelative                 // seconds since boot
)

// TimeRef is an unresolved timestamp as it appeared in the artifact.
type TimeRef struct {
	Kind TimeKind
	// Wall holds the instant (TimeAbsolute) or the wall-clock fields
	// (TimeLocal; the location is ignored).
	Wall time.Time
	// NoYear marks TimeLocal values whose year was not printed (logcat
	// threadtime, dropbox headers).
	NoYear bool
	// Uptime is the offset since boot for TimeRelative.
	Uptime time.Duration
	// Unanchored is set by the time normalizer when the resolved instant is
	// an approximation.
	Unanchored bool
}

func AbsoluteTime(t time.Time) TimeRef {
	return TimeRef{Kind: TimeAbsolute, Wall: t}
}

func LocalTime(t time.Time, noYear bool) TimeRef {
	return TimeRef{Kind: TimeLocal, Wall: t, NoYear: noYear}
}

func RelativeTime(d time.Duration) TimeRef {
	return TimeRef{Kind: TimeRelative, Uptime: d}
}

// IsResolved reports whether r is a UTC instant produced by the normalizer.
func (r TimeRef) IsResolved() bool {
	return r.Kind == TimeAbsolute && r.Wall.Location() == time.UTC
}
