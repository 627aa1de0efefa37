// Package bugreport parses dumpstate bugreports: the device header, system
// properties, and the log sections embedded in the report. Device metadata
// is emitted last as a single meta record, after every embedded record.
package bugreport

import (
	"fmt"
	"iter"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser"
	"github.com/crimson-sun/dumpsift/internal/parser/anr"
	"github.com/crimson-sun/dumpsift/internal/parser/kernel"
	"github.com/crimson-sun/dumpsift/internal/parser/logcat"
)

// Marker is the line prefix that identifies a dumpstate report.
const Marker = "== dumpstate:"

const metaComponent = "dumpstate"

var (
	sectionRe  = regexp.MustCompile(`^------ (.+?)(?: \(.*\))? ------$`)
	durationRe = regexp.MustCompile(`^------ .* was the duration of '.*' ------$`)
	propRe     = regexp.MustCompile(`^\[([\w.\-]+)\]: \[(.*)\]$`)
	keyValueRe = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{1,24}):\s+(.*)$`)

	uptimeWordsRe = regexp.MustCompile(`\bup (?:(\d+) weeks?,\s*)?(?:(\d+) days?,\s*)?(?:(\d+) hours?,\s*)?(\d+) minutes?`)
	uptimeClockRe = regexp.MustCompile(`\bup(?: time:)? (?:(\d+) days?,\s*)?(\d{1,2}):(\d{2})(?::(\d{2}))?`)
)

func init() {
	parser.Register(model.KindBugreport, func() parser.Parser {
		return &Parser{}
	})
}

// Parser implements parser.Parser for bugreports.
type Parser struct{}

func (p *Parser) Kind() model.ArtifactKind { return model.KindBugreport }

type section int

const (
	sectionNone section = iota
	sectionLogcat
	sectionKernel
	sectionTraces
	sectionUptime
)

type report struct {
	s    *parser.Stream
	info model.DeviceInfo
	seen bool // any header field or property recognised

	headerLine parser.Line
	inBody     bool // a section has been opened; plain fields are ignored
	section    section
	logcat     *logcat.Assembler
	kernel     *kernel.Assembler
}

func (p *Parser) Parse(s *parser.Stream) iter.Seq[model.RawRecord] {
	return func(yield func(model.RawRecord) bool) {
		r := &report{s: s}
		for {
			line, ok := s.Next()
			if !ok {
				break
			}
			for _, rec := range r.feed(line) {
				if !yield(rec) {
					return
				}
			}
		}
		for _, rec := range r.closeSection() {
			if !yield(rec) {
				return
			}
		}
		if meta, ok := r.meta(); ok {
			yield(meta)
		}
	}
}

func (r *report) feed(line parser.Line) []model.RawRecord {
	text := line.Text

	if durationRe.MatchString(text) {
		return r.closeSection()
	}
	if m := sectionRe.FindStringSubmatch(text); m != nil {
		out := r.closeSection()
		r.openSection(m[1])
		r.inBody = true
		return out
	}

	switch r.section {
	case sectionLogcat:
		if rec, ok := r.logcat.Feed(line); ok {
			return []model.RawRecord{rec}
		}
		return nil
	case sectionKernel:
		if rec, ok := r.kernel.Feed(line); ok {
			return []model.RawRecord{rec}
		}
		return nil
	case sectionTraces:
		if anr.IsBlockStart(text) {
			if rec, ok := anr.ReadOccurrence(r.s, line, ""); ok {
				return []model.RawRecord{rec}
			}
		}
		return nil
	case sectionUptime:
		if d, ok := ParseUptime(text); ok && r.info.Uptime == 0 {
			r.info.Uptime = d
			r.seen = true
		}
		return nil
	}

	r.header(line)
	return nil
}

func (r *report) openSection(name string) {
	switch {
	case strings.HasPrefix(name, "SYSTEM LOG"):
		r.section, r.logcat = sectionLogcat, logcat.NewAssembler(r.s, model.SourceLogcatMain)
	case strings.HasPrefix(name, "EVENT LOG"):
		r.section, r.logcat = sectionLogcat, logcat.NewAssembler(r.s, model.SourceLogcatEvents)
	case strings.HasPrefix(name, "RADIO LOG"):
		r.section, r.logcat = sectionLogcat, logcat.NewAssembler(r.s, model.SourceLogcatRadio)
	case strings.HasPrefix(name, "KERNEL LOG"):
		r.section, r.kernel = sectionKernel, kernel.NewAssembler(r.s)
	case strings.HasPrefix(name, "VM TRACES"):
		r.section = sectionTraces
	case name == "UPTIME":
		r.section = sectionUptime
	default:
		r.section = sectionNone
	}
}

func (r *report) closeSection() []model.RawRecord {
	var out []model.RawRecord
	switch r.section {
	case sectionLogcat:
		if rec, ok := r.logcat.Flush(); ok {
			out = append(out, rec)
		}
		r.logcat = nil
	case sectionKernel:
		if rec, ok := r.kernel.Flush(); ok {
			out = append(out, rec)
		}
		r.kernel = nil
	}
	r.section = sectionNone
	return out
}

// header handles lines outside log sections: the dumpstate banner, system
// properties, and header "Key: value" fields before the first section.
func (r *report) header(line parser.Line) {
	text := strings.TrimSpace(line.Text)
	if rest, ok := strings.CutPrefix(text, Marker); ok {
		if r.info.DumpTime.Kind == model.TimeMissing {
			if ts, ok := parser.ParseHeaderTime(rest); ok {
				r.info.DumpTime = ts
			} else {
				r.s.Malformed(line.Offset, line.No, "unparseable dumpstate time %q", strings.TrimSpace(rest))
			}
			r.headerLine = line
			r.seen = true
		}
		return
	}
	if m := propRe.FindStringSubmatch(text); m != nil {
		if r.property(m[1], m[2]) {
			r.seen = true
		}
		return
	}
	if m := keyValueRe.FindStringSubmatch(text); m != nil && !r.inBody {
		if r.field(m[1], strings.TrimSpace(m[2])) {
			r.seen = true
		}
	}
}

func setIfEmpty(dst *string, v string) bool {
	v = strings.Trim(strings.TrimSpace(v), "'\"")
	if *dst != "" || v == "" {
		return false
	}
	*dst = v
	return true
}

func (r *report) property(key, value string) bool {
	in := &r.info
	switch key {
	case "ro.product.model":
		return setIfEmpty(&in.Model, value)
	case "ro.build.display.id":
		return setIfEmpty(&in.Build, value)
	case "ro.build.fingerprint":
		return setIfEmpty(&in.Fingerprint, value)
	case "ro.build.version.oneui":
		return setIfEmpty(&in.OneUI, OneUIVersion(value))
	case "ro.build.version.release":
		return setIfEmpty(&in.AndroidVersion, value)
	case "gsm.version.baseband":
		first, _, _ := strings.Cut(value, ",")
		return setIfEmpty(&in.Baseband, first)
	case "persist.sys.timezone":
		return setIfEmpty(&in.TimeZone, value)
	case "persist.sys.locale", "ro.product.locale":
		return setIfEmpty(&in.Locale, value)
	case "ro.csc.sales_code", "gsm.operator.alpha", "gsm.sim.operator.alpha":
		first, _, _ := strings.Cut(value, ",")
		return setIfEmpty(&in.Carrier, first)
	}
	return false
}

func (r *report) field(key, value string) bool {
	in := &r.info
	switch strings.ToLower(key) {
	case "build":
		return setIfEmpty(&in.Build, value)
	case "build fingerprint":
		return setIfEmpty(&in.Fingerprint, value)
	case "model":
		return setIfEmpty(&in.Model, value)
	case "one ui", "oneui":
		return setIfEmpty(&in.OneUI, OneUIVersion(value))
	case "radio", "baseband":
		return setIfEmpty(&in.Baseband, value)
	case "network", "carrier":
		return setIfEmpty(&in.Carrier, value)
	case "locale":
		return setIfEmpty(&in.Locale, value)
	case "timezone", "time zone":
		return setIfEmpty(&in.TimeZone, value)
	case "android", "android version":
		return setIfEmpty(&in.AndroidVersion, value)
	case "uptime":
		if d, ok := ParseUptime(value); ok && in.Uptime == 0 {
			in.Uptime = d
			return true
		}
	}
	return false
}

func (r *report) meta() (model.RawRecord, bool) {
	if !r.seen {
		r.s.Malformed(0, 1, "no dumpstate header or device properties found")
		return model.RawRecord{}, false
	}
	if r.info.DumpTime.Kind == model.TimeMissing {
		r.s.Malformed(0, 1, "dumpstate header has no dump time")
	}
	dev := model.NewDevice(r.info)
	return model.RawRecord{
		Time:      r.info.DumpTime,
		Source:    model.SourceMeta,
		Level:     model.LevelInfo,
		Component: metaComponent,
		Text:      Summary(dev),
		Line:      r.headerLine.No,
		Offset:    r.headerLine.Offset,
		Device:    dev,
	}, true
}

// Summary is the one-line text of the meta record.
func Summary(d *model.Device) string {
	info := d.Info()
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("model", info.Model)
	add("build", info.Build)
	add("oneui", info.OneUI)
	add("android", info.AndroidVersion)
	add("baseband", info.Baseband)
	add("carrier", info.Carrier)
	if info.Uptime > 0 {
		add("uptime", info.Uptime.String())
	}
	return "bugreport " + strings.Join(parts, " ")
}

// OneUIVersion renders ro.build.version.oneui ("60100") as "6.1". Values
// that are already dotted pass through.
func OneUIVersion(v string) string {
	v = strings.TrimSpace(v)
	n, err := strconv.Atoi(v)
	if err != nil || n < 10000 {
		return v
	}
	major, minor := n/10000, (n/100)%100
	return fmt.Sprintf("%d.%d", major, minor)
}

// ParseUptime understands the uptime renderings found in bugreports:
// "up 0 weeks, 2 days, 3 hours, 4 minutes", "up time: 1 day, 02:03:04",
// " 10:11:12 up 2 days,  3:04" and plain seconds.
func ParseUptime(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if d, ok := parser.ParseSeconds(s); ok && d > 0 {
		return d, true
	}
	atoi := func(v string) time.Duration {
		n, _ := strconv.Atoi(v)
		return time.Duration(n)
	}
	if m := uptimeWordsRe.FindStringSubmatch(s); m != nil {
		d := atoi(m[1])*7*24*time.Hour + atoi(m[2])*24*time.Hour + atoi(m[3])*time.Hour + atoi(m[4])*time.Minute
		return d, d > 0
	}
	if m := uptimeClockRe.FindStringSubmatch(s); m != nil {
		d := atoi(m[1])*24*time.Hour + atoi(m[2])*time.Hour + atoi(m[3])*time.Minute + atoi(m[4])*time.Second
		return d, d > 0
	}
	return 0, false
}
