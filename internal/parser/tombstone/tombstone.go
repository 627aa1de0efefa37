// Package tombstone parses native crash dumps written by debuggerd. A file
// holds one crash; it becomes a single FATAL record carrying the whole dump.
package tombstone

import (
	"iter"
	"regexp"
	"strconv"
	"strings"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

const (
	maxDumpBytes     = 512 * 1024
	truncatedNote    = "\n[... truncated]"
	defaultComponent = "tombstone"
)

var (
	pidRe    = regexp.MustCompile(`^pid: (\d+), tid: (\d+)(?:, name: (.*?))?\s+>>> (.+?) <<<`)
	frameRe  = regexp.MustCompile(`^\s*#\d+\s+pc\s`)
	signalRe = regexp.MustCompile(`^signal \d+ \(`)
)

func init() {
	parser.Register(model.KindTombstone, func() parser.Parser {
		return &Parser{}
	})
}

// IsBanner reports whether text is the line that opens a tombstone.
func IsBanner(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "*** *** ***")
}

// Parser implements parser.Parser for tombstones.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindTombstone }

func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		for {
			line, ok := s.Next()
			if !ok {
				return
			}
			if !IsBanner(line.Text) {
				continue
			}
			if !yield(ReadDump(s, line)) {
				return
			}
		}
	}
}

type dump struct {
	text     strings.Builder
	full     bool
	pid, tid int
	process  string
	cmdline  string
	signal   string
	abort    string
	ts       model.TimeRef
	inTrace  bool
	sawTrace bool
	frames   int
	last     parser.Line
}

// ReadDump reads one tombstone whose banner line has been consumed. It stops
// at the next banner or end of input and always returns a record; problems
// are recorded as warnings on s.
func ReadDump(s *parser.Stream, begin parser.Line) model.RawRecord {
	d := &dump{}
	d.text.WriteString(begin.Text)
	for {
		line, ok := s.Next()
		if !ok {
			break
		}
		if IsBanner(line.Text) {
			s.Unread(line)
			break
		}
		d.last = line
		d.add(line)
	}

	if d.pid == 0 {
		s.Malformed(begin.Offset, begin.No, "tombstone has no pid line")
	}
	if !d.sawTrace || d.frames == 0 {
		s.Malformed(begin.Offset, begin.No, "tombstone has no backtrace")
	}
	if d.last.Partial {
		s.Malformed(d.last.Offset, d.last.No, "tombstone truncated mid-line")
	}
	if d.ts.Kind == model.TimeMissing {
		if mt := s.ModTime(); !mt.IsZero() {
			d.ts = model.AbsoluteTime(mt)
		}
	}

	component := defaultComponent
	switch {
	case d.process != "":
		component = d.process
	case d.cmdline != "":
		component = d.cmdline
	}

	var b strings.Builder
	b.WriteString("native crash in ")
	b.WriteString(component)
	if d.signal != "" {
		b.WriteString(": ")
		b.WriteString(d.signal)
	}
	if d.abort != "" {
		b.WriteString("\nAbort message: ")
		b.WriteString(d.abort)
	}
	b.WriteByte('\n')
	b.WriteString(d.text.String())

	return model.RawRecord{
		Time:      d.ts,
		Source:    model.SourceTombstone,
		Level:     model.LevelFatal,
		Component: component,
		PID:       d.pid,
		TID:       d.tid,
		Text:      b.String(),
		Line:      begin.No,
		Offset:    begin.Offset,
	}
}

func (d *dump) add(line parser.Line) {
	text := line.Text
	switch {
	case d.full:
	case d.text.Len()+len(text)+1 > maxDumpBytes:
		d.text.WriteString(truncatedNote)
		d.full = true
	default:
		d.text.WriteString("\n" + text)
	}

	trimmed := strings.TrimSpace(text)
	switch {
	case d.pid == 0 && pidRe.MatchString(text):
		m := pidRe.FindStringSubmatch(text)
		d.pid, _ = strconv.Atoi(m[1])
		d.tid, _ = strconv.Atoi(m[2])
		d.process = m[4]
	case strings.HasPrefix(text, "Timestamp:"):
		if ts, ok := parser.ParseHeaderTime(strings.TrimPrefix(text, "Timestamp:")); ok {
			d.ts = ts
		}
	case strings.HasPrefix(text, "Cmdline:"):
		d.cmdline = strings.TrimSpace(strings.TrimPrefix(text, "Cmdline:"))
	case d.signal == "" && signalRe.MatchString(text):
		d.signal = trimmed
	case strings.HasPrefix(text, "Abort message:"):
		d.abort = strings.Trim(strings.TrimSpace(strings.TrimPrefix(text, "Abort message:")), "'")
	case trimmed == "backtrace:":
		d.inTrace = true
		d.sawTrace = true
	case d.inTrace && frameRe.MatchString(text):
		d.frames++
	case d.inTrace && trimmed == "":
		d.inTrace = false
	}
}
