package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity grades a rule's finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the severity's contribution to subsystem scoring. Unknown
// severities weigh like medium.
func (s Severity) Weight() float64 {
	switch s {
	case SeverityInfo:
		return 0.5
	case SeverityLow:
		return 1
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 5
	default:
		return 2
	}
}

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

func (s *Severity) UnmarshalText(b []byte) error {
	v := Severity(b)
	if len(b) == 0 {
		v = SeverityMedium
	}
	if !v.Valid() {
		return fmt.Errorf("unknown severity %q", string(b))
	}
	*s = v
	return nil
}

// Rule is a declarative known-issue pattern. Component and Patterns are
// regular expressions; Contains are case-insensitive literals.
type Rule struct {
	ID          string   `yaml:"id" json:"id" validate:"required"`
	Description string   `yaml:"description" json:"description"`
	Component   string   `yaml:"component,omitempty" json:"component,omitempty"`
	Patterns    []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	Contains    []string `yaml:"contains,omitempty" json:"contains,omitempty"`
	MatchAll    bool     `yaml:"match_all,omitempty" json:"match_all,omitempty"`
	Severity    Severity `yaml:"severity" json:"severity"`
	Subsystem   string   `yaml:"subsystem" json:"subsystem" validate:"required"`
	MinLevel    Level    `yaml:"min_level,omitempty" json:"min_level,omitempty"`
	Sources     []Source `yaml:"sources,omitempty" json:"sources,omitempty"`
}

// RuleMatch records one rule firing on one event.
type RuleMatch struct {
	RuleID    string
	Event     *Event
	Timestamp time.Time
	Severity  Severity
	Subsystem string
}

func (m RuleMatch) MarshalJSON() ([]byte, error) {
	w := struct {
		RuleID    string    `json:"rule_id"`
		Event     Order     `json:"event"`
		Timestamp time.Time `json:"timestamp"`
		Severity  Severity  `json:"severity"`
		Subsystem string    `json:"subsystem"`
	}{m.RuleID, Order{}, m.Timestamp, m.Severity, m.Subsystem}
	if m.Event != nil {
		w.Event = m.Event.Order
	}
	return json.Marshal(w)
}
