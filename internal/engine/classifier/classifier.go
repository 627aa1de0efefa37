package classifier

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/parser/bugreport"
	"github.com/crimson-sun/dumpsift/internal/parser/dropbox"
	"github.com/crimson-sun/dumpsift/internal/parser/kernel"
	"github.com/crimson-sun/dumpsift/internal/parser/logcat"
	"github.com/crimson-sun/dumpsift/internal/parser/tombstone"
)

// DefaultSampleBytes is how much of an artifact is inspected for content
// sniffing.
const DefaultSampleBytes = 64 * 1024

// sniffLines caps how many sample lines the line-shape scores look at.
const sniffLines = 200

// Result holds the outcome of classifying a single artifact.
type Result struct {
	Kind       model.ArtifactKind `json:"kind"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason"`
}

// Unknown reports whether the artifact is excluded from parsing.
func (r Result) Unknown() bool { return r.Kind == model.KindUnknown }

type nameRule struct {
	pattern string
	kind    model.ArtifactKind
}

// Filename conventions, checked in order against the lower-cased,
// slash-separated path.
var nameRules = []nameRule{
	{"**/bugreport*.txt", model.KindBugreport},
	{"**/dumpstate*.txt", model.KindBugreport},
	{"**/dumpstate*.log", model.KindBugreport},
	{"**/tombstone*", model.KindTombstone},
	{"**/traces*.txt", model.KindANR},
	{"**/anr_*", model.KindANR},
	{"**/anr/*", model.KindANR},
	{"**/dmesg*", model.KindKernel},
	{"**/last_kmsg*", model.KindKernel},
	{"**/kmsg*", model.KindKernel},
	{"**/dropbox*", model.KindDropbox},
	{"**/logcat*", model.KindLogcat},
}

var (
	anrBeginRe     = regexp.MustCompile(`(?m)^----- pid \d+ at `)
	dropboxEntryRe = regexp.MustCompile(`(?m)^={10,}\s*\n\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}(?:\.\d+)? \S+`)
)

// Classifier assigns an artifact kind from a file's name and a bounded
// content sample.
type Classifier struct {
	// Threshold is the minimum content score accepted when no filename
	// convention matched.
	Threshold   float64
	SampleBytes int
}

// New creates a Classifier with the given confidence threshold.
func New(threshold float64) *Classifier {
	return &Classifier{Threshold: threshold, SampleBytes: DefaultSampleBytes}
}

// Classify picks a kind for the file called name given the first bytes of
// its content. It never fails: unrecognised input is reported as unknown
// with a reason.
func (c *Classifier) Classify(name string, sample []byte) Result {
	if r, ok := classifyName(name); ok {
		return r
	}
	if len(bytes.TrimSpace(sample)) == 0 {
		return Result{Kind: model.KindUnknown, Reason: "empty file"}
	}

	best := Result{Kind: model.KindUnknown, Confidence: -1}
	for _, s := range sniff(sample) {
		if s.Confidence > best.Confidence {
			best = s
		}
	}
	if best.Confidence < c.Threshold {
		return Result{
			Kind:       model.KindUnknown,
			Confidence: max(best.Confidence, 0),
			Reason:     fmt.Sprintf("no filename convention or content signature matched (best guess %s at %.2f)", best.Kind, max(best.Confidence, 0)),
		}
	}
	return best
}

// ClassifyArtifact classifies a, honouring a valid kind hint. The returned
// reader yields the artifact's full content, including the sampled bytes.
func (c *Classifier) ClassifyArtifact(a model.Artifact) (Result, io.Reader, error) {
	size := c.SampleBytes
	if size <= 0 {
		size = DefaultSampleBytes
	}
	br := bufio.NewReaderSize(a.Reader, size)
	if a.KindHint.Valid() {
		return Result{Kind: a.KindHint, Confidence: 1, Reason: "kind hint"}, br, nil
	}
	sample, err := br.Peek(size)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Result{}, nil, fmt.Errorf("sampling %s: %w", a.Name, err)
	}
	return c.Classify(a.Name, sample), br, nil
}

func classifyName(name string) (Result, bool) {
	if name == "" {
		return Result{}, false
	}
	path := strings.TrimPrefix(strings.ToLower(filepath.ToSlash(name)), "/")
	if _, _, ok := dropbox.EntryFileName(path); ok {
		return Result{Kind: model.KindDropbox, Confidence: 0.9, Reason: "filename matches <tag>@<epochms>"}, true
	}
	for _, r := range nameRules {
		if ok, _ := doublestar.Match(r.pattern, path); ok {
			return Result{Kind: r.kind, Confidence: 0.9, Reason: "filename matches " + r.pattern}, true
		}
	}
	return Result{}, false
}

// sniff scores every kind against the sample. Distinctive markers score
// high; logcat and kernel are scored by the share of lines that parse.
func sniff(sample []byte) []Result {
	text := string(sample)
	var out []Result
	add := func(kind model.ArtifactKind, conf float64, reason string) {
		out = append(out, Result{Kind: kind, Confidence: conf, Reason: reason})
	}

	if strings.Contains(text, bugreport.Marker) {
		add(model.KindBugreport, 1, "found "+bugreport.Marker+" header")
	}
	if anrBeginRe.MatchString(text) {
		add(model.KindANR, 0.95, "found ANR trace block header")
	}
	if dropboxEntryRe.MatchString(text) || strings.HasPrefix(text, "Drop box contents:") {
		add(model.KindDropbox, 0.9, "found dropbox entry header")
	}
	if strings.Contains(text, "--------- beginning of ") {
		add(model.KindLogcat, 0.9, "found logcat buffer marker")
	}

	var lines, logcatLines, kernelLines int
	for _, line := range strings.Split(text, "\n") {
		if lines == sniffLines {
			break
		}
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines++
		if lines <= 8 && tombstone.IsBanner(line) {
			add(model.KindTombstone, 0.95, "found tombstone banner")
		}
		if _, ok := logcat.ParseLine(line); ok {
			logcatLines++
		}
		if _, ok := kernel.ParseLine(line); ok {
			kernelLines++
		}
	}
	if lines > 0 {
		add(model.KindLogcat, float64(logcatLines)/float64(lines),
			fmt.Sprintf("%d/%d lines have logcat shape", logcatLines, lines))
		add(model.KindKernel, float64(kernelLines)/float64(lines),
			fmt.Sprintf("%d/%d lines have kernel shape", kernelLines, lines))
	}
	return out
}
