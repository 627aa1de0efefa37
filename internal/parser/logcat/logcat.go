// Package logcat parses Android logcat dumps in threadtime (and the older
// "time") layout, folding stack traces and chatty repeats into the line they
// belong to.
package logcat

import (
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

const (
	bufferMarker  = "--------- beginning of "
	maxGroupBytes = 64 * 1024
	truncatedNote = "\n[... truncated]"
)

var (
	// MM-DD or YYYY-MM-DD, time with ms/us/ns, optional zone, optional uid,
	// pid, tid, priority, tag, message.
	threadtimeRe = regexp.MustCompile(
		`^(?:(\d{4})-)?(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})\.(\d{3,9})(?:\s+([+-]\d{4}))?` +
			`\s+(?:(\S+)\s+)?(\d+)\s+(\d+)\s+([VDIWEFAS])\s+(.*?)\s*:(?:\s(.*))?$`)
	// "time" layout: MM-DD hh:mm:ss.mmm P/Tag(  pid): message
	timeRe = regexp.MustCompile(
		`^(?:(\d{4})-)?(\d{2})-(\d{2})\s+(\d{2}):(\d{2}):(\d{2})\.(\d{3,9})\s+([VDIWEFAS])/(.+?)\(\s*(\d+)\):\s?(.*)$`)

	stackLineRe = regexp.MustCompile(`^\s*(?:at\s|Caused by:|Suppressed:|\.\.\. \d+ more|#\d+\s+pc\s)`)
	chattyRe    = regexp.MustCompile(`identical (\d+) lines?`)
)

func init() {
	parser.Register(model.KindLogcat, func() parser.Parser {
		return &Parser{}
	})
}

// Parser implements parser.Parser for logcat dumps.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindLogcat }

// Parse yields one record per logical logcat entry.
func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		a := NewAssembler(s, DefaultSource(s.Name()))
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

// DefaultSource guesses the buffer of a standalone logcat file from its name.
func DefaultSource(name string) model.Source {
	base := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(base, "radio"):
		return model.SourceLogcatRadio
	case strings.Contains(base, "event"):
		return model.SourceLogcatEvents
	case strings.Contains(base, "system"):
		return model.SourceLogcatSystem
	default:
		return model.SourceLogcatMain
	}
}

// Header is the parsed prefix of one logcat line.
type Header struct {
	Time    model.TimeRef
	PID     int
	TID     int
	Level   model.Level
	Tag     string
	Message string
}

// ParseLine parses a single logcat line. ok is false for lines that are not
// logcat entries (continuations, banners, noise).
func ParseLine(text string) (h Header, ok bool) {
	if m := threadtimeRe.FindStringSubmatch(text); m != nil {
		ts, ok := entryTime(m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8])
		if !ok {
			return Header{}, false
		}
		pid, _ := strconv.Atoi(m[10])
		tid, _ := strconv.Atoi(m[11])
		return Header{
			Time:    ts,
			PID:     pid,
			TID:     tid,
			Level:   model.LogcatLevel(m[12][0]),
			Tag:     strings.TrimSpace(m[13]),
			Message: m[14],
		}, true
	}
	if m := timeRe.FindStringSubmatch(text); m != nil {
		ts, ok := entryTime(m[1], m[2], m[3], m[4], m[5], m[6], m[7], "")
		if !ok {
			return Header{}, false
		}
		pid, _ := strconv.Atoi(m[10])
		return Header{
			Time:    ts,
			PID:     pid,
			TID:     pid,
			Level:   model.LogcatLevel(m[8][0]),
			Tag:     strings.TrimSpace(m[9]),
			Message: m[11],
		}, true
	}
	return Header{}, false
}

func entryTime(year, month, day, hh, mm, ss, frac, zone string) (model.TimeRef, bool) {
	y := 2000 // placeholder for year-less entries; replaced by the normalizer
	noYear := year == ""
	if !noYear {
		y, _ = strconv.Atoi(year)
	}
	mo, _ := strconv.Atoi(month)
	d, _ := strconv.Atoi(day)
	h, _ := strconv.Atoi(hh)
	mi, _ := strconv.Atoi(mm)
	se, _ := strconv.Atoi(ss)
	ns, _ := strconv.Atoi((frac + "000000000")[:9])
	if mo < 1 || mo > 12 || d < 1 || d > 31 || h > 23 || mi > 59 || se > 60 {
		return model.TimeRef{}, false
	}
	if zone == "" || noYear {
		// a zone without a year cannot be an instant yet; keep it local
		return model.LocalTime(time.Date(y, time.Month(mo), d, h, mi, se, ns, time.UTC), noYear), true
	}
	sign := 1
	if zone[0] == '-' {
		sign = -1
	}
	zh, _ := strconv.Atoi(zone[1:3])
	zm, _ := strconv.Atoi(zone[3:5])
	loc := time.FixedZone(zone, sign*(zh*3600+zm*60))
	return model.AbsoluteTime(time.Date(y, time.Month(mo), d, h, mi, se, ns, loc)), true
}

// Assembler groups logcat lines into records. It is shared with the
// bugreport parser, which feeds it the lines of embedded log sections.
type Assembler struct {
	s      *parser.Stream
	source model.Source

	open      *model.RawRecord
	openHdr   Header
	truncated bool

	strays     int
	firstStray parser.Line
}

// NewAssembler returns an Assembler emitting records for source until a
// buffer marker switches it.
func NewAssembler(s *parser.Stream, source model.Source) *Assembler {
	return &Assembler{s: s, source: source}
}

// Feed consumes one line and returns the record it completed, if any.
func (a *Assembler) Feed(line parser.Line) (model.RawRecord, bool) {
	text := line.Text
	if strings.HasPrefix(text, bufferMarker) {
		rec, ok := a.Flush()
		a.source = model.LogcatBuffer(strings.TrimSpace(strings.TrimPrefix(text, bufferMarker)))
		return rec, ok
	}

	h, isEntry := ParseLine(text)
	if !isEntry {
		switch {
		case strings.TrimSpace(text) == "":
		case a.open != nil:
			a.appendText(text)
		default:
			a.stray(line)
		}
		if line.Partial && !isEntry && strings.TrimSpace(text) != "" {
			a.s.Malformed(line.Offset, line.No, "truncated final line")
		}
		return model.RawRecord{}, false
	}

	if h.Tag == "chatty" && a.open != nil && a.open.PID == h.PID {
		if m := chattyRe.FindStringSubmatch(h.Message); m != nil {
			n, _ := strconv.Atoi(m[1])
			a.open.Repeat += n
			return model.RawRecord{}, false
		}
	}
	if a.open != nil && a.continues(h) {
		a.appendText(h.Message)
		return model.RawRecord{}, false
	}

	rec, ok := a.Flush()
	a.open = &model.RawRecord{
		Time:      h.Time,
		Source:    a.source,
		Level:     h.Level,
		Component: h.Tag,
		PID:       h.PID,
		TID:       h.TID,
		Text:      h.Message,
		Line:      line.No,
		Offset:    line.Offset,
	}
	a.openHdr = h
	a.truncated = false
	return rec, ok
}

// Flush returns the open record, if any, and reports stray lines seen
// before the first entry.
func (a *Assembler) Flush() (model.RawRecord, bool) {
	if a.strays > 0 {
		a.s.Malformed(a.firstStray.Offset, a.firstStray.No,
			"%d line(s) outside any logcat entry, first: %q", a.strays, clip(a.firstStray.Text, 80))
		a.strays = 0
	}
	if a.open == nil {
		return model.RawRecord{}, false
	}
	rec := *a.open
	a.open = nil
	return rec, true
}

// continues reports whether h is a further line of the open entry: a stack
// frame from the same thread and tag, or any line of a crash block that
// shares the opening line's timestamp.
func (a *Assembler) continues(h Header) bool {
	o := a.openHdr
	if h.PID != o.PID || h.TID != o.TID || h.Tag != o.Tag || h.Level != o.Level {
		return false
	}
	if stackLineRe.MatchString(h.Message) {
		return true
	}
	return strings.HasPrefix(o.Message, "FATAL EXCEPTION") && h.Time == o.Time
}

func (a *Assembler) appendText(text string) {
	if a.truncated {
		return
	}
	if len(a.open.Text)+len(text)+1 > maxGroupBytes {
		a.open.Text += truncatedNote
		a.truncated = true
		return
	}
	a.open.Text += "\n" + text
}

func (a *Assembler) stray(line parser.Line) {
	if a.strays == 0 {
		a.firstStray = line
	}
	a.strays++
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return fmt.Sprintf("%s...", s[:n])
}
