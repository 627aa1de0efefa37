package signature

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// mask replaces one class of volatile token with a placeholder.
type mask struct {
	re   *regexp.Regexp
	repl string
}

// masks run in order; earlier classes win over the generic number mask.
var masks = []mask{
	{regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`), "<UUID>"},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}(?:[ T]\d{2}:\d{2}:\d{2}(?:[.,]\d+)?(?:Z|[+-]\d{2}:?\d{2})?)?`), "<TS>"},
	{regexp.MustCompile(`\b\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)?`), "<TS>"},
	{regexp.MustCompile(`\b\d{1,2}:\d{2}:\d{2}(?:\.\d+)?\b`), "<TS>"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d+)?\b`), "<IP>"},
	{regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`), "<HEX>"},
	{regexp.MustCompile(`@[0-9a-fA-F]{4,}\b`), "@<HEX>"},
	{regexp.MustCompile(`\b[0-9a-fA-F]*[0-9][0-9a-fA-F]*[a-fA-F][0-9a-fA-F]*\b|\b[0-9a-fA-F]*[a-fA-F][0-9a-fA-F]*[0-9][0-9a-fA-F]*\b`), "<HEX>"},
	{regexp.MustCompile(`(?i)\b(pid|tid|uid|ppid|pgid|user|userid|session)(\s*[=:]\s*|\s+)\d+\b`), "${1}${2}<ID>"},
	{regexp.MustCompile(`\bu\d+_a\d+\b`), "<ID>"},
	{regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?(ns|us|ms|s|m|h|b|kb|mb|gb|hz|khz|mhz|mah|mv|ma)?\b`), "<NUM>${1}"},
}

var frameRe = regexp.MustCompile(`^\s*(?:at\s|#\d+\s+pc\s|native:\s+#\d+)`)

// Template reduces text to its masked template: the first line plus up to
// maxFrames stack-frame lines, with volatile tokens replaced and whitespace
// collapsed.
func Template(text string, maxFrames int) string {
	text = norm.NFKC.String(text)

	lines := strings.Split(text, "\n")
	kept := []string{lines[0]}
	for _, l := range lines[1:] {
		if len(kept) > maxFrames {
			break
		}
		if frameRe.MatchString(l) {
			kept = append(kept, l)
		}
	}

	for i, l := range kept {
		kept[i] = MaskLine(l)
	}
	return strings.Join(kept, "\n")
}

// MaskLine masks a single line.
func MaskLine(line string) string {
	for _, m := range masks {
		line = m.re.ReplaceAllString(line, m.repl)
	}
	return strings.Join(strings.Fields(line), " ")
}
