package model

import (
	"fmt"
	"strconv"
	"time"
)

// Fingerprint is the 64-bit hash of a masked message template.
type Fingerprint uint64

func (f Fingerprint) String() string {
	return fmt.Sprintf("%016x", uint64(f))
}

func (f Fingerprint) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Fingerprint) UnmarshalText(b []byte) error {
	v, err := strconv.ParseUint(string(b), 16, 64)
	if err != nil {
		return fmt.Errorf("parse fingerprint %q: %w", string(b), err)
	}
	*f = Fingerprint(v)
	return nil
}

// SignatureGroup aggregates every event sharing a fingerprint.
type SignatureGroup struct {
	Fingerprint    Fingerprint `json:"fingerprint"`
	Template       string      `json:"template"`
	Count          int         `json:"count"`       // occurrences, chatty repeats included
	EventCount     int         `json:"event_count"` // contributing events
	First          time.Time   `json:"first"`
	Last           time.Time   `json:"last"`
	Representative string      `json:"representative"`
	Component      string      `json:"component"`
	Level          Level       `json:"level"`
	Sources        []Source    `json:"sources"`
	Subsystem      string      `json:"subsystem,omitempty"`
	Recurring      bool        `json:"recurring,omitempty"`
}
