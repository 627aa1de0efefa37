package model

import (
	"fmt"
	"strings"
)

// Level is the normalized severity of an event. Levels are ordered:
// VERBOSE < DEBUG < INFO < WARN < ERROR < FATAL.
type Level uint8

const (
	LevelUnset Level = iota // parser could not determine a level
	LevelVerbose
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelNames = [...]string{"", "VERBOSE", "DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", l)
}

// ParseLevel accepts full names, common aliases and single-letter logcat codes.
// Unknown strings return LevelUnset.
func ParseLevel(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "V", "VERBOSE", "TRACE":
		return LevelVerbose
	case "D", "DEBUG":
		return LevelDebug
	case "I", "INFO", "NOTICE":
		return LevelInfo
	case "W", "WARN", "WARNING":
		return LevelWarn
	case "E", "ERROR", "ERR":
		return LevelError
	case "F", "A", "FATAL", "ASSERT", "CRIT", "CRITICAL":
		return LevelFatal
	default:
		return LevelUnset
	}
}

// LogcatLevel maps a logcat priority letter to a Level. 'S' (silent) and
// unknown letters return LevelUnset.
func LogcatLevel(c byte) Level {
	switch c {
	case 'V':
		return LevelVerbose
	case 'D':
		return LevelDebug
	case 'I':
		return LevelInfo
	case 'W':
		return LevelWarn
	case 'E':
		return LevelError
	case 'F', 'A':
		return LevelFatal
	default:
		return LevelUnset
	}
}

// KernelLevel maps a printk log level (0 = KERN_EMERG .. 7 = KERN_DEBUG).
func KernelLevel(n int) Level {
	switch {
	case n < 0:
		return LevelUnset
	case n <= 2:
		return LevelFatal
	case n == 3:
		return LevelError
	case n == 4:
		return LevelWarn
	case n <= 6:
		return LevelInfo
	case n == 7:
		return LevelDebug
	default:
		return LevelUnset
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = LevelUnset
		return nil
	}
	v := ParseLevel(string(b))
	if v == LevelUnset {
		return fmt.Errorf("unknown level %q", string(b))
	}
	*l = v
	return nil
}
