package model

import (
	"fmt"
	"log/slog"
)

// WarningKind classifies a non-fatal condition raised during a run.
type WarningKind string

const (
	WarnClassificationUnknown WarningKind = "ClassificationUnknown"
	WarnParseMalformed        WarningKind = "ParseMalformed"
	WarnTimeAnchorMissing     WarningKind = "TimeAnchorMissing"
	WarnRuleInvalid           WarningKind = "RuleInvalid"
	WarnResourceLimitExceeded WarningKind = "ResourceLimitExceeded"
)

// Warning is a structured, non-fatal problem attached to a run's output.
type Warning struct {
	Kind   WarningKind `json:"kind"`
	File   string      `json:"file,omitempty"`
	Offset int64       `json:"offset,omitempty"`
	Line   int         `json:"line,omitempty"`
	Reason string      `json:"reason"`
}

func (w Warning) String() string {
	if w.File == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Reason)
	}
	return fmt.Sprintf("%s: %s@%d: %s", w.Kind, w.File, w.Offset, w.Reason)
}

// LogValue renders the warning as slog attributes.
func (w Warning) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(w.Kind)),
		slog.String("file", w.File),
		slog.Int64("offset", w.Offset),
		slog.Int("line", w.Line),
		slog.String("reason", w.Reason),
	)
}
