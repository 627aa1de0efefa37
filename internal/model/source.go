package model

import "fmt"

// Source identifies the log stream an event came from.
type Source string

const (
	SourceLogcatMain   Source = "logcat-main"
	SourceLogcatSystem Source = "logcat-system"
	SourceLogcatEvents Source = "logcat-events"
	SourceLogcatRadio  Source = "logcat-radio"
	SourceKernel       Source = "kernel"
	SourceANR          Source = "anr"
	SourceTombstone    Source = "tombstone"
	SourceDropbox      Source = "dropbox"
	SourceMeta         Source = "meta"
)

// Sources lists every source in tie-break order.
var Sources = []Source{
	SourceLogcatMain,
	SourceLogcatSystem,
	SourceLogcatEvents,
	SourceLogcatRadio,
	SourceKernel,
	SourceANR,
	SourceTombstone,
	SourceDropbox,
	SourceMeta,
}

// Rank returns the position of s in Sources, or len(Sources) when unknown.
func (s Source) Rank() int {
	for i, v := range Sources {
		if v == s {
			return i
		}
	}
	return len(Sources)
}

// Valid reports whether s is one of the enumerated sources.
func (s Source) Valid() bool {
	return s.Rank() < len(Sources)
}

func (s *Source) UnmarshalText(b []byte) error {
	v := Source(b)
	if !v.Valid() {
		return fmt.Errorf("unknown source %q", string(b))
	}
	*s = v
	return nil
}

// LogcatBuffer maps a logcat buffer name ("main", "system", "crash", ...) to
// a Source. Buffers without a dedicated source fold into logcat-main.
func LogcatBuffer(name string) Source {
	switch name {
	case "system":
		return SourceLogcatSystem
	case "events":
		return SourceLogcatEvents
	case "radio":
		return SourceLogcatRadio
	case "kernel":
		return SourceKernel
	default:
		return SourceLogcatMain
	}
}
