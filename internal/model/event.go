package model

import (
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"
)

// ErrSignatureFrozen is returned when a signature is set on an event that
// already carries one.
var ErrSignatureFrozen = errors.New("event signature already set")

// Order is an event's position in its artifact: the artifact's ingestion
// index and the record sequence within it.
type Order struct {
	Artifact int `json:"artifact"`
	Seq      int `json:"seq"`
}

// Event is dumpsift's canonical unit, a normalized log event. Events are
// created by the event normalizer and shared by pointer; the only field that
// changes afterwards is the signature, exactly once.
type Event struct {
	Timestamp  time.Time
	Source     Source
	Level      Level
	Component  string
	Device     *Device
	Text       string
	PID        int
	TID        int
	Repeat     int
	Unanchored bool
	File       string
	Line       int
	Offset     int64
	Order      Order

	sigState atomic.Uint32 // 0 unset, 1 writing, 2 set
	sig      atomic.Uint64
}

// SetSignature stores the event's fingerprint. A second call fails with
// ErrSignatureFrozen and leaves the first value in place.
func (e *Event) SetSignature(fp Fingerprint) error {
	if !e.sigState.CompareAndSwap(0, 1) {
		return ErrSignatureFrozen
	}
	e.sig.Store(uint64(fp))
	e.sigState.Store(2)
	return nil
}

// Signature returns the fingerprint and whether one has been set.
func (e *Event) Signature() (Fingerprint, bool) {
	if e.sigState.Load() != 2 {
		return 0, false
	}
	return Fingerprint(e.sig.Load()), true
}

// Occurrences is the number of log lines the event stands for.
func (e *Event) Occurrences() int {
	return 1 + e.Repeat
}

// Less orders events by (timestamp, source, artifact ingestion order,
// record sequence).
func Less(a, b *Event) bool {
	return Compare(a, b) < 0
}

// Compare returns -1, 0 or +1 following the ordering of Less.
func Compare(a, b *Event) int {
	if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
		return c
	}
	if ra, rb := a.Source.Rank(), b.Source.Rank(); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	if a.Order.Artifact != b.Order.Artifact {
		if a.Order.Artifact < b.Order.Artifact {
			return -1
		}
		return 1
	}
	switch {
	case a.Order.Seq < b.Order.Seq:
		return -1
	case a.Order.Seq > b.Order.Seq:
		return 1
	}
	return 0
}

type eventJSON struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
	Level      Level     `json:"level"`
	Component  string    `json:"component"`
	Device     string    `json:"device"`
	Text       string    `json:"text"`
	Signature  string    `json:"signature,omitempty"`
	PID        int       `json:"pid,omitempty"`
	TID        int       `json:"tid,omitempty"`
	Repeat     int       `json:"repeat,omitempty"`
	Unanchored bool      `json:"unanchored,omitempty"`
	File       string    `json:"file,omitempty"`
	Line       int       `json:"line,omitempty"`
	Order      Order     `json:"order"`
}

func (e *Event) MarshalJSON() ([]byte, error) {
	w := eventJSON{
		Timestamp:  e.Timestamp,
		Source:     e.Source,
		Level:      e.Level,
		Component:  e.Component,
		Device:     e.Device.Ref(),
		Text:       e.Text,
		PID:        e.PID,
		TID:        e.TID,
		Repeat:     e.Repeat,
		Unanchored: e.Unanchored,
		File:       e.File,
		Line:       e.Line,
		Order:      e.Order,
	}
	if fp, ok := e.Signature(); ok {
		w.Signature = fp.String()
	}
	return json.Marshal(w)
}
