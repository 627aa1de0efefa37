// Package anr parses ANR trace dumps (/data/anr/traces.txt, anr_* files and
// the "VM TRACES" sections of a bugreport). The "----- pid N at T -----"
// blocks of one ANR occurrence (the app, system_server and the other
// processes dumped with it) become one record whose text is a summary
// followed by every thread dump.
package anr

import (
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

const (
	maxDumpBytes     = 256 * 1024
	truncatedNote    = "\n[... truncated]"
	defaultComponent = "anr"

	// occurrenceGap bounds how far apart blocks of one dump may start when
	// no Subject line marks the occurrence.
	occurrenceGap = time.Minute
)

var (
	beginRe = regexp.MustCompile(`^----- pid (\d+) at (.+?) -----$`)
	endRe   = regexp.MustCompile(`^----- end (\d+) -----$`)
)

func init() {
	parser.Register(model.KindANR, func() parser.Parser {
		return &Parser{}
	})
}

// Parser implements parser.Parser for ANR traces.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindANR }

func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		var subject string
		for {
			line, ok := s.Next()
			if !ok {
				return
			}
			if rest, ok := strings.CutPrefix(line.Text, "Subject:"); ok {
				subject = strings.TrimSpace(rest)
				continue
			}
			if !IsBlockStart(line.Text) {
				continue
			}
			rec, ok := ReadOccurrence(s, line, subject)
			subject = ""
			if ok && !yield(rec) {
				return
			}
		}
	}
}

// IsBlockStart reports whether text opens a process block.
func IsBlockStart(text string) bool {
	return beginRe.MatchString(text)
}

// ReadOccurrence parses the process block opened by begin, whose line has
// already been consumed, together with the blocks dumped with it. With a
// subject every following block up to the next non-block line belongs to
// the occurrence; without one, blocks must also start within a minute of
// the first. The bugreport parser uses it for embedded traces.
func ReadOccurrence(s *parser.Stream, begin parser.Line, subject string) (model.RawRecord, bool) {
	m := beginRe.FindStringSubmatch(begin.Text)
	if m == nil {
		return model.RawRecord{}, false
	}
	budget := maxDumpBytes
	first := readBlock(s, begin, m, &budget)
	blocks := []block{first}
	for {
		line, ok := s.Next()
		if !ok {
			break
		}
		if strings.TrimSpace(line.Text) == "" {
			continue
		}
		next := beginRe.FindStringSubmatch(line.Text)
		if next == nil {
			s.Unread(line)
			break
		}
		if subject == "" {
			if ts, ok := parser.ParseHeaderTime(next[2]); ok && !sameDump(first.time, ts) {
				s.Unread(line)
				break
			}
		}
		blocks = append(blocks, readBlock(s, line, next, &budget))
	}
	return record(blocks, subject), true
}

type block struct {
	begin     parser.Line
	pid       int
	component string
	time      model.TimeRef
	dump      string
}

// readBlock reads one process block up to its end marker, spending budget
// bytes of dump text at most.
func readBlock(s *parser.Stream, begin parser.Line, m []string, budget *int) block {
	pid, _ := strconv.Atoi(m[1])
	ts, ok := parser.ParseHeaderTime(m[2])
	if !ok {
		s.Malformed(begin.Offset, begin.No, "unparseable ANR block time %q", m[2])
		if mt := s.ModTime(); !mt.IsZero() {
			ts = model.AbsoluteTime(mt)
		}
	}

	var (
		cmd   string
		dump  strings.Builder
		full  bool
		ended bool
	)
	write := func(text string) {
		switch {
		case full:
		case len(text) > *budget:
			dump.WriteString(truncatedNote)
			full = true
			*budget = 0
		default:
			dump.WriteString(text)
			*budget -= len(text)
		}
	}
	write(begin.Text)
	for {
		line, ok := s.Next()
		if !ok {
			break
		}
		text := line.Text
		if endRe.MatchString(text) {
			ended = true
			write("\n" + text)
			break
		}
		// a following block, or the next dumpstate section inside a bugreport
		if beginRe.MatchString(text) || strings.HasPrefix(text, "------ ") {
			s.Unread(line)
			break
		}
		if rest, ok := strings.CutPrefix(text, "Cmd line:"); ok && cmd == "" {
			cmd = strings.TrimSpace(rest)
		}
		write("\n" + text)
	}
	if !ended {
		s.Malformed(begin.Offset, begin.No, "ANR block for pid %d has no end marker", pid)
	}

	component := defaultComponent
	if cmd != "" {
		component = cmd
	}
	return block{begin: begin, pid: pid, component: component, time: ts, dump: dump.String()}
}

// sameDump reports whether two block times are close enough to belong to
// one occurrence. Zoned and device-local headers are compared by their
// printed wall clock.
func sameDump(a, b model.TimeRef) bool {
	var d time.Duration
	if a.Kind == model.TimeAbsolute && b.Kind == model.TimeAbsolute {
		d = b.Wall.Sub(a.Wall)
	} else {
		d = wallClock(b.Wall).Sub(wallClock(a.Wall))
	}
	return d.Abs() <= occurrenceGap
}

func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// record folds the blocks of one occurrence into a record named after the
// first process dumped.
func record(blocks []block, subject string) model.RawRecord {
	first := blocks[0]
	var b strings.Builder
	b.WriteString("ANR traces for ")
	b.WriteString(first.component)
	b.WriteString(" (pid ")
	b.WriteString(strconv.Itoa(first.pid))
	b.WriteString(")")
	if subject != "" {
		b.WriteString("\nSubject: ")
		b.WriteString(subject)
	}
	if len(blocks) > 1 {
		others := make([]string, 0, len(blocks)-1)
		for _, o := range blocks[1:] {
			others = append(others, o.component+" (pid "+strconv.Itoa(o.pid)+")")
		}
		b.WriteString("\nAlso dumped: ")
		b.WriteString(strings.Join(others, ", "))
	}
	for i, blk := range blocks {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
		b.WriteString(blk.dump)
	}

	return model.RawRecord{
		Time:      first.time,
		Source:    model.SourceANR,
		Level:     model.LevelError,
		Component: first.component,
		PID:       first.pid,
		TID:       first.pid,
		Text:      b.String(),
		Line:      first.begin.No,
		Offset:    first.begin.Offset,
	}
}
