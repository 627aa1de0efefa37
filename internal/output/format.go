package output

import (
	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/model"
)

// FormatEvent returns the event as it should be emitted at verbosity.
// At Full the event itself is returned. Otherwise a copy with compacted
// text is returned and the original is left untouched.
func FormatEvent(e *model.Event, verbosity compactor.Verbosity) *model.Event {
	if verbosity == compactor.Full {
		return e
	}
	text, _ := compactor.New(verbosity).Compact(e.Text)
	if text == e.Text {
		return e
	}
	out := &model.Event{
		Timestamp:  e.Timestamp,
		Source:     e.Source,
		Level:      e.Level,
		Component:  e.Component,
		Device:     e.Device,
		Text:       text,
		PID:        e.PID,
		TID:        e.TID,
		Repeat:     e.Repeat,
		Unanchored: e.Unanchored,
		File:       e.File,
		Line:       e.Line,
		Offset:     e.Offset,
		Order:      e.Order,
	}
	if fp, ok := e.Signature(); ok {
		_ = out.SetSignature(fp)
	}
	return out
}
