package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Layouts seen in dumpstate, ANR, tombstone and dropbox headers. Layouts
// with a zone produce absolute times; the rest are device-local.
var (
	zonedLayouts = []string{
		"2006-01-02 15:04:05.999999999-0700",
		"2006-01-02 15:04:05.999999999 -0700",
		"2006-01-02 15:04:05-0700",
		"2006-01-02 15:04:05 -0700",
		"2006-01-02T15:04:05.999999999Z07:00",
	}
	localLayouts = []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04",
	}
	zoneSuffix = regexp.MustCompile(`(?:[+-]\d{2}:?\d{2}|Z)$`)
	zoneAbbrev = regexp.MustCompile(`^(.*\d)\s+([A-Z]{3,5})$`)

	// Offsets of zone abbreviations seen in Samsung dumps. time.Parse gives
	// an unknown abbreviation a zero offset, so only these are trusted.
	zoneOffsets = map[string]int{
		"UTC": 0, "GMT": 0,
		"KST": 9 * 3600, "JST": 9 * 3600,
		"HKT": 8 * 3600, "SGT": 8 * 3600, "AWST": 8 * 3600,
		"AEST": 10 * 3600, "AEDT": 11 * 3600,
		"MSK": 3 * 3600,
		"CET": 3600, "CEST": 2 * 3600,
		"WET": 0, "WEST": 3600, "BST": 3600,
		"EST": -5 * 3600, "EDT": -4 * 3600,
		"CDT": -5 * 3600,
		"MST": -7 * 3600, "MDT": -6 * 3600,
		"PST": -8 * 3600, "PDT": -7 * 3600,
	}
)

// ParseHeaderTime parses a free-form header timestamp. Known layouts are
// tried first; anything else falls back to dateparse. A trailing zone
// abbreviation makes the time absolute only when its offset is known;
// otherwise the time is device-local.
func ParseHeaderTime(s string) (model.TimeRef, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.TimeRef{}, false
	}
	if m := zoneAbbrev.FindStringSubmatch(s); m != nil {
		if ref, ok := parseLocal(m[1]); ok {
			off, known := zoneOffsets[m[2]]
			if !known {
				return ref, true
			}
			w := ref.Wall
			return model.AbsoluteTime(time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), time.FixedZone(m[2], off))), true
		}
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return model.AbsoluteTime(t), true
		}
	}
	if ref, ok := parseLocalLayouts(s); ok {
		return ref, true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return model.TimeRef{}, false
	}
	if zoneSuffix.MatchString(s) {
		return model.AbsoluteTime(t), true
	}
	return model.LocalTime(t, false), true
}

func parseLocalLayouts(s string) (model.TimeRef, bool) {
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return model.LocalTime(t, false), true
		}
	}
	return model.TimeRef{}, false
}

// parseLocal reads s as a zone-less wall clock.
func parseLocal(s string) (model.TimeRef, bool) {
	if ref, ok := parseLocalLayouts(s); ok {
		return ref, true
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil || zoneSuffix.MatchString(s) {
		return model.TimeRef{}, false
	}
	return model.LocalTime(t, false), true
}

// ParseSeconds parses a "seconds.fraction" uptime such as "123.456789".
func ParseSeconds(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.Trim(s, "0123456789.") != "" {
		return 0, false
	}
	d, err := time.ParseDuration(s + "s")
	if err != nil || d < 0 {
		return 0, false
	}
	return d, true
}
