// Package compactor shortens event text for output according to a
// verbosity level.
package compactor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Verbosity controls how much detail is retained after compaction.
type Verbosity int

const (
	Minimal  Verbosity = iota // first-line summary only
	Standard                  // bounded text, long stack traces cut
	Full                      // retain everything
)

const (
	summaryRunes  = 120
	standardRunes = 2000
	keepFrames    = 8
	tailFrames    = 2
)

var frameRe = regexp.MustCompile(`^\s*(?:at\s|#\d+\s+pc\s|native:\s+#\d+|\.\.\.\s+\d+\s+more)`)

// ParseVerbosity maps "minimal", "standard" and "full" to a Verbosity.
func ParseVerbosity(s string) (Verbosity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal":
		return Minimal, nil
	case "", "standard":
		return Standard, nil
	case "full":
		return Full, nil
	}
	return Standard, fmt.Errorf("unknown verbosity %q", s)
}

func (v Verbosity) String() string {
	switch v {
	case Minimal:
		return "minimal"
	case Full:
		return "full"
	default:
		return "standard"
	}
}

// Compactor performs verbosity-aware compaction of event text.
type Compactor struct {
	Verbosity Verbosity
}

// New creates a Compactor with the given verbosity level.
func New(v Verbosity) *Compactor {
	return &Compactor{Verbosity: v}
}

// Compact returns the text to emit and a one-line summary of it.
func (c *Compactor) Compact(text string) (compacted string, summary string) {
	summary = summarize(text)
	switch c.Verbosity {
	case Minimal:
		return summary, summary
	case Standard:
		return truncate(truncateStackTrace(text, keepFrames), standardRunes), summary
	default:
		return text, summary
	}
}

// truncate cuts s to maxRunes runes, never splitting a UTF-8 sequence.
func truncate(s string, maxRunes int) string {
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return s[:i] + "..."
		}
		n++
	}
	return s
}

// summarize returns the first line, cut at a word boundary when it is
// longer than the summary limit.
func summarize(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	line = strings.TrimRight(line, "\r ")
	if utf8.RuneCountInString(line) <= summaryRunes {
		return line
	}
	cut := truncate(line, summaryRunes)
	cut = strings.TrimSuffix(cut, "...")
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ") + "..."
}

// truncateStackTrace keeps the lines before the first frame, the first
// maxFrames frames and the last tailFrames frames of each run of frames.
func truncateStackTrace(text string, maxFrames int) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	cut := false
	for i := 0; i < len(lines); {
		if !frameRe.MatchString(lines[i]) {
			out = append(out, lines[i])
			i++
			continue
		}
		j := i
		for j < len(lines) && frameRe.MatchString(lines[j]) {
			j++
		}
		run := lines[i:j]
		if len(run) <= maxFrames+tailFrames {
			out = append(out, run...)
		} else {
			omitted := len(run) - maxFrames - tailFrames
			out = append(out, run[:maxFrames]...)
			out = append(out, fmt.Sprintf("\t... (%d frames omitted)", omitted))
			out = append(out, run[len(run)-tailFrames:]...)
			cut = true
		}
		i = j
	}
	if !cut {
		return text
	}
	return strings.Join(out, "\n")
}
