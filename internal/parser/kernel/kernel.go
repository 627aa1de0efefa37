// Package kernel parses kernel ring-buffer dumps (dmesg, last_kmsg, the
// KERNEL LOG section of a bugreport).
package kernel

import (
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

var (
	// optional <prio>, [seconds.fraction], optional Samsung [cpu: comm: pid]
	// or caller id [T123]/[C4]
	uptimeRe = regexp.MustCompile(`^(?:<(\d)>)?\[\s*(\d+\.\d+)\]\s?(?:\[\s*(\d+):\s*(.*?):\s*(\d+)\]\s?|\[\s*([TC])(\d+)\]\s?)?(.*)$`)
	// dmesg -T: [Tue Mar  5 10:11:12 2024] message
	wallRe = regexp.MustCompile(`^(?:<(\d)>)?\[([A-Z][a-z]{2} [A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2} \d{4})\]\s?(.*)$`)
	// "subsystem: message" prefix used as the component
	prefixRe = regexp.MustCompile(`^([A-Za-z][\w.\-]{1,31}):\s`)

	fatalRe = regexp.MustCompile(`(?i)\b(kernel panic|oops|bug:|watchdog: bug)`)
	errorRe = regexp.MustCompile(`(?i)\b(out of memory|error|failed|fault)\b`)
	warnRe  = regexp.MustCompile(`(?i)\b(warning|warn)\b`)
)

const (
	defaultComponent = "kernel"
	maxGroupBytes    = 64 * 1024
)

func init() {
	parser.Register(model.KindKernel, func() parser.Parser {
		return &Parser{}
	})
}

// Parser implements parser.Parser for kernel logs.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindKernel }

func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		a := NewAssembler(s)
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			if rec, ok := a.Feed(line); ok {
				if !yield(rec) {
					return
				}
			}
		}
		if rec, ok := a.Flush(); ok {
			yield(rec)
		}
	}
}

// ParseLine parses one kernel log line.
func ParseLine(text string) (model.RawRecord, bool) {
	if m := uptimeRe.FindStringSubmatch(text); m != nil {
		up, ok := parser.ParseSeconds(m[2])
		if !ok {
			return model.RawRecord{}, false
		}
		msg := m[8]
		rec := model.RawRecord{
			Time:      model.RelativeTime(up),
			Level:     level(m[1], msg),
			Component: component(msg, m[4]),
			Text:      msg,
		}
		switch {
		case m[5] != "":
			rec.PID, _ = strconv.Atoi(m[5])
			rec.TID = rec.PID
		case m[6] == "T":
			rec.TID, _ = strconv.Atoi(m[7])
		}
		return rec, true
	}
	if m := wallRe.FindStringSubmatch(text); m != nil {
		ts, ok := parser.ParseHeaderTime(m[2])
		if !ok {
			return model.RawRecord{}, false
		}
		return model.RawRecord{
			Time:      ts,
			Level:     level(m[1], m[3]),
			Component: component(m[3], ""),
			Text:      m[3],
		}, true
	}
	return model.RawRecord{}, false
}

func level(prio, msg string) model.Level {
	if prio != "" {
		n, _ := strconv.Atoi(prio)
		return model.KernelLevel(n)
	}
	switch {
	case fatalRe.MatchString(msg):
		return model.LevelFatal
	case errorRe.MatchString(msg):
		return model.LevelError
	case warnRe.MatchString(msg):
		return model.LevelWarn
	}
	return model.LevelUnset
}

// component prefers a "subsystem:" prefix of the message, then the task
// name from a Samsung prefix with any "/cpu" suffix removed.
func component(msg, comm string) string {
	if m := prefixRe.FindStringSubmatch(msg); m != nil {
		return m[1]
	}
	if comm != "" {
		if i := strings.IndexByte(comm, '/'); i > 0 {
			comm = comm[:i]
		}
		return comm
	}
	return defaultComponent
}

// Assembler turns kernel lines into records, appending unprefixed lines to
// the previous record.
type Assembler struct {
	s       *parser.Stream
	pending *model.RawRecord
	strays  int
	first   parser.Line
}

func NewAssembler(s *parser.Stream) *Assembler {
	return &Assembler{s: s}
}

// Feed consumes one line and returns the record it completed, if any.
func (a *Assembler) Feed(line parser.Line) (model.RawRecord, bool) {
	rec, ok := ParseLine(line.Text)
	if !ok {
		switch {
		case strings.TrimSpace(line.Text) == "":
		case a.pending != nil:
			if len(a.pending.Text)+len(line.Text) < maxGroupBytes {
				a.pending.Text += "\n" + line.Text
			}
		default:
			if a.strays == 0 {
				a.first = line
			}
			a.strays++
		}
		return model.RawRecord{}, false
	}
	rec.Source = model.SourceKernel
	rec.Line = line.No
	rec.Offset = line.Offset

	out, flushed := a.Flush()
	a.pending = &rec
	return out, flushed
}

// Flush returns the pending record, if any.
func (a *Assembler) Flush() (model.RawRecord, bool) {
	if a.strays > 0 {
		a.s.Malformed(a.first.Offset, a.first.No, "%d line(s) without a kernel timestamp", a.strays)
		a.strays = 0
	}
	if a.pending == nil {
		return model.RawRecord{}, false
	}
	rec := *a.pending
	a.pending = nil
	return rec, true
}
