// Package dropbox parses DropBoxManager entries, either as printed by
// "dumpsys dropbox --print" or as single entry files named <tag>@<epochms>.
package dropbox

import (
	"iter"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
)

const maxEntryBytes = 256 * 1024

var (
	separatorRe = regexp.MustCompile(`^={10,}\s*$`)
	headerRe    = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?) (\S+)(?: \(([^)]*)\))?\s*$`)
	fileNameRe  = regexp.MustCompile(`^([A-Za-z0-9_]+)@(\d{10,13})`)
)

func init() {
	parser.Register(model.KindDropbox, func() parser.Parser {
		return &Parser{}
	})
}

// Parser implements parser.Parser for dropbox entries.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindDropbox }

// EntryFileName reports whether name follows the <tag>@<epochms> convention
// and returns the tag and entry time.
func EntryFileName(name string) (tag string, at time.Time, ok bool) {
	m := fileNameRe.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", time.Time{}, false
	}
	ms, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", time.Time{}, false
	}
	if len(m[2]) == 10 {
		ms *= 1000
	}
	return m[1], time.UnixMilli(ms).UTC(), true
}

// LevelForTag maps a dropbox tag to a severity.
func LevelForTag(tag string) model.Level {
	t := strings.ToLower(tag)
	switch {
	case strings.Contains(t, "crash"), strings.Contains(t, "tombstone"), strings.Contains(t, "panic"):
		return model.LevelFatal
	case strings.Contains(t, "anr"), strings.Contains(t, "wtf"), strings.Contains(t, "watchdog"):
		return model.LevelError
	case strings.Contains(t, "lowmem"), strings.Contains(t, "strictmode"):
		return model.LevelWarn
	default:
		return model.LevelInfo
	}
}

type entry struct {
	tag     string
	ts      model.TimeRef
	line    int
	offset  int64
	process string
	pkg     string
	pid     int
	first   string
	body    strings.Builder
	full    bool
}

func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		var cur *entry
		if tag, at, ok := EntryFileName(s.Name()); ok {
			cur = &entry{tag: tag, ts: model.AbsoluteTime(at), line: 1}
		}
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			if separatorRe.MatchString(line.Text) {
				if cur != nil && !cur.empty() {
					if !yield(cur.record()) {
						return
					}
				}
				cur = nil
				hdr, ok := s.Next()
				if !ok {
					break
				}
				m := headerRe.FindStringSubmatch(hdr.Text)
				if m == nil {
					s.Malformed(hdr.Offset, hdr.No, "dropbox entry without header: %q", hdr.Text)
					continue
				}
				ts, tok := parser.ParseHeaderTime(m[1])
				if !tok {
					s.Malformed(hdr.Offset, hdr.No, "unparseable dropbox entry time %q", m[1])
				}
				cur = &entry{tag: m[2], ts: ts, line: hdr.No, offset: hdr.Offset}
				continue
			}
			if cur != nil {
				cur.add(line.Text)
			}
		}
		if cur != nil && !cur.empty() {
			yield(cur.record())
		}
	}
}

func (e *entry) empty() bool {
	return e.first == "" && e.body.Len() == 0 && e.ts.Kind == model.TimeMissing
}

func (e *entry) add(text string) {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(text, "Process: "):
		e.process = trimmed[len("Process: "):]
	case strings.HasPrefix(text, "Package: "):
		if f := strings.Fields(trimmed[len("Package: "):]); len(f) > 0 {
			e.pkg = f[0]
		}
	case strings.HasPrefix(text, "PID: "):
		e.pid, _ = strconv.Atoi(trimmed[len("PID: "):])
	case e.first == "" && trimmed != "" && !isHeaderField(text):
		e.first = trimmed
	}
	if e.full {
		return
	}
	if e.body.Len()+len(text)+1 > maxEntryBytes {
		e.body.WriteString("\n[... truncated]")
		e.full = true
		return
	}
	if e.body.Len() > 0 {
		e.body.WriteByte('\n')
	}
	e.body.WriteString(text)
}

// isHeaderField matches the "Key: value" preamble lines DropBoxManager
// writes before an entry's payload.
func isHeaderField(text string) bool {
	k, _, ok := strings.Cut(text, ": ")
	if !ok || strings.ContainsAny(k, " .\t") {
		return false
	}
	switch k {
	case "Process", "PID", "UID", "Flags", "Package", "Foreground", "Build",
		"Loading-Progress", "Process-Runtime", "Dropped-Count", "Subject",
		"Activity", "Parent-Process", "Parent-Activity", "Headless":
		return true
	}
	return false
}

func (e *entry) record() model.RawRecord {
	component := e.tag
	switch {
	case e.process != "":
		component = e.process
	case e.pkg != "":
		component = e.pkg
	}
	text := e.tag
	if e.first != "" {
		text += ": " + e.first
	}
	if e.body.Len() > 0 {
		text += "\n" + e.body.String()
	}
	return model.RawRecord{
		Time:      e.ts,
		Source:    model.SourceDropbox,
		Level:     LevelForTag(e.tag),
		Component: component,
		PID:       e.pid,
		TID:       e.pid,
		Text:      text,
		Line:      e.line,
		Offset:    e.offset,
	}
}
