// Package normalize maps parser records to canonical events.
package normalize

import (
	"strings"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Event builds the canonical event for rec. ts must already be resolved by
// the time normalizer. A missing level becomes INFO and a blank component
// becomes empty; the text is kept as parsed. Event keeps no state between
// calls.
func Event(rec model.RawRecord, ts model.TimeRef, dev *model.Device, file string, order model.Order) *model.Event {
	level := rec.Level
	if level == model.LevelUnset {
		level = model.LevelInfo
	}
	source := rec.Source
	if !source.Valid() {
		source = model.SourceLogcatMain
	}
	return &model.Event{
		Timestamp:  ts.Wall,
		Source:     source,
		Level:      level,
		Component:  strings.TrimSpace(rec.Component),
		Device:     dev,
		Text:       rec.Text,
		PID:        rec.PID,
		TID:        rec.TID,
		Repeat:     rec.Repeat,
		Unanchored: ts.Unanchored,
		File:       file,
		Line:       rec.Line,
		Offset:     rec.Offset,
		Order:      order,
	}
}
