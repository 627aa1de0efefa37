// Package pipeline runs one case end to end: classification, parser
// fan-out, time and event normalization, signing, the ordered merge, rule
// evaluation and the incident timeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/dumpsift/internal/engine/classifier"
	"github.com/crimson-sun/dumpsift/internal/engine/rules"
	"github.com/crimson-sun/dumpsift/internal/engine/signature"
	"github.com/crimson-sun/dumpsift/internal/engine/taxonomy"
	"github.com/crimson-sun/dumpsift/internal/engine/timeline"
	"github.com/crimson-sun/dumpsift/internal/logging"
	"github.com/crimson-sun/dumpsift/internal/metrics"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/normalize"
	"github.com/crimson-sun/dumpsift/internal/output"
	"github.com/crimson-sun/dumpsift/internal/parser"
	"github.com/crimson-sun/dumpsift/internal/store"
	"github.com/crimson-sun/dumpsift/internal/timenorm"

	// parser registrations
	_ "github.com/crimson-sun/dumpsift/internal/parser/anr"
	_ "github.com/crimson-sun/dumpsift/internal/parser/bugreport"
	_ "github.com/crimson-sun/dumpsift/internal/parser/dropbox"
	_ "github.com/crimson-sun/dumpsift/internal/parser/kernel"
	_ "github.com/crimson-sun/dumpsift/internal/parser/logcat"
	_ "github.com/crimson-sun/dumpsift/internal/parser/tombstone"
)

// ErrNoArtifacts is returned when a case has no classifiable artifact.
var ErrNoArtifacts = errors.New("no classifiable artifacts")

// Config tunes a Pipeline.
type Config struct {
	MaxFileBytes int64
	MaxFileLines int
	MaxLineBytes int
	CaseBudget   time.Duration // 0 = unlimited
	Workers      int
	TimeZone     string // overrides the device zone for local timestamps
	SampleBytes  int
	Threshold    float64 // classifier content threshold
	Signature    signature.Config
	Timeline     timeline.Config
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		MaxFileBytes: 512 << 20,
		MaxFileLines: 5_000_000,
		MaxLineBytes: 64 << 10,
		Workers:      4,
		SampleBytes:  classifier.DefaultSampleBytes,
		Threshold:    0.5,
		Signature:    signature.DefaultConfig(),
		Timeline:     timeline.DefaultConfig(),
	}
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithRules enables detection. Rules rejected at compile time are reported
// as warnings on every result.
func WithRules(e *rules.Engine, invalid []*rules.InvalidRuleError) Option {
	return func(p *Pipeline) {
		p.rules = e
		p.invalid = invalid
	}
}

// WithTaxonomy replaces the built-in subsystem taxonomy.
func WithTaxonomy(t *taxonomy.Taxonomy) Option {
	return func(p *Pipeline) { p.tax = t }
}

// WithHistory marks groups seen in earlier cases.
func WithHistory(h *store.History) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithOutput streams the merged events to out.
func WithOutput(out output.Output) Option {
	return func(p *Pipeline) { p.out = out }
}

// Pipeline runs cases. It is safe to run several cases concurrently.
type Pipeline struct {
	cfg        Config
	classifier *classifier.Classifier
	rules      *rules.Engine
	invalid    []*rules.InvalidRuleError
	tax        *taxonomy.Taxonomy
	history    *store.History
	metrics    *metrics.Metrics
	out        output.Output
	builder    *timeline.Builder
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Pipeline.
func New(cfg Config, opts ...Option) *Pipeline {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	c := classifier.New(cfg.Threshold)
	if cfg.SampleBytes > 0 {
		c.SampleBytes = cfg.SampleBytes
	}
	p := &Pipeline{
		cfg:        cfg,
		classifier: c,
		builder:    timeline.New(cfg.Timeline),
		logger:     logging.New("pipeline"),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tax == nil {
		p.tax = taxonomy.Default()
	}
	return p
}

// Case is one run's input.
type Case struct {
	ID        string // generated when empty
	Artifacts []model.Artifact
	Device    *model.Device // optional; otherwise taken from a bugreport
}

// Classified is the classifier's verdict on one artifact.
type Classified struct {
	Name string `json:"name"`
	classifier.Result
}

// Result is the in-memory output of a case run.
type Result struct {
	CaseID    string                 `json:"case_id"`
	Device    *model.Device          `json:"device"`
	Artifacts []Classified           `json:"artifacts"`
	Events    []*model.Event         `json:"-"`
	Groups    []model.SignatureGroup `json:"groups"`
	Matches   []model.RuleMatch      `json:"matches"`
	Incident  *model.Incident        `json:"incident"`
	Warnings  []model.Warning        `json:"warnings"`
}

type job struct {
	index int
	art   model.Artifact
	kind  model.ArtifactKind
	r     io.Reader
}

// parsed is one artifact's contribution before the merge.
type parsed struct {
	job      job
	records  []model.RawRecord // bugreports only, held until the device is known
	events   []*model.Event
	warnings []model.Warning
}

// Run processes a case. Non-fatal problems become warnings on the result;
// the error is reserved for ErrNoArtifacts, invalid configuration and
// cancellation, in which case no partial result is returned.
func (p *Pipeline) Run(ctx context.Context, c Case) (*Result, error) {
	start := p.now()
	res := &Result{CaseID: c.ID}
	if res.CaseID == "" {
		res.CaseID = uuid.NewString()
	}
	log := p.logger.With(slog.String("case", res.CaseID))
	var deadline time.Time
	if p.cfg.CaseBudget > 0 {
		deadline = start.Add(p.cfg.CaseBudget)
	}

	for _, inv := range p.invalid {
		res.Warnings = append(res.Warnings, model.Warning{Kind: model.WarnRuleInvalid, Reason: inv.Error()})
	}

	jobs, skipped := p.classify(c.Artifacts, res)
	res.Warnings = append(res.Warnings, skipped...)
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w among %d artifact(s)", ErrNoArtifacts, len(c.Artifacts))
	}

	runs := make([]*parsed, len(jobs))
	for i, j := range jobs {
		runs[i] = &parsed{job: j}
	}

	// Bugreports first: their meta record carries the time anchor.
	dev := c.Device
	for _, r := range runs {
		if r.job.kind != model.KindBugreport {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.warnings = p.parse(r.job, deadline, func(rec model.RawRecord) {
			r.records = append(r.records, rec)
			if rec.Device != nil && dev == nil {
				dev = rec.Device
			}
		})
	}
	if dev == nil {
		dev = model.UnknownDevice()
		log.Debug("no device metadata, using unknown device")
	}
	res.Device = dev

	norm, err := timenorm.New(dev, timenorm.Options{TimeZone: p.cfg.TimeZone, Reference: reference(c.Artifacts)})
	if err != nil {
		return nil, fmt.Errorf("time normalizer: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for _, r := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seq := 0
			add := func(rec model.RawRecord) {
				ts := norm.Resolve(rec.Time)
				ev := normalize.Event(rec, ts, dev, r.job.art.Name, model.Order{Artifact: r.job.index, Seq: seq})
				seq++
				r.events = append(r.events, ev)
				p.metrics.Event(ev.Source)
			}
			if r.job.kind == model.KindBugreport {
				for _, rec := range r.records {
					add(rec)
				}
				r.records = nil
				return nil
			}
			r.warnings = p.parse(r.job, deadline, add)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*model.Event
	for _, r := range runs {
		all = append(all, r.events...)
		res.Warnings = append(res.Warnings, r.warnings...)
		if n := countUnanchored(r.events); n > 0 {
			res.Warnings = append(res.Warnings, model.Warning{
				Kind:   model.WarnTimeAnchorMissing,
				File:   r.job.art.Name,
				Reason: fmt.Sprintf("%d event(s) have no anchored wall-clock time; their timestamps are approximate", n),
			})
		}
	}
	if base := timenorm.Rebase(all); !norm.Anchored() {
		log.Debug("rebased unanchored events", slog.Time("base", base))
	}
	if n := norm.Renormalize(all); n > 0 {
		log.Warn("timestamps moved on renormalization", slog.Int("events", n))
	}

	sig := signature.New(p.cfg.Signature)
	sg, _ := errgroup.WithContext(ctx)
	sg.SetLimit(p.cfg.Workers)
	for _, r := range runs {
		sg.Go(func() error {
			for _, ev := range r.events {
				if ev.Source == model.SourceMeta {
					continue
				}
				if _, err := sig.Observe(ev); err != nil {
					return err
				}
			}
			slices.SortStableFunc(r.events, model.Compare)
			return nil
		})
	}
	if err := sg.Wait(); err != nil {
		return nil, fmt.Errorf("signing events: %w", err)
	}

	sorted := make([][]*model.Event, len(runs))
	for i, r := range runs {
		sorted[i] = r.events
	}
	res.Events = make([]*model.Event, 0, len(all))
	for ev := range merge(sorted) {
		res.Events = append(res.Events, ev)
	}
	if err := p.write(ctx, res.Events); err != nil {
		return nil, err
	}

	if p.rules != nil {
		res.Matches, err = p.rules.EvaluateAll(ctx, res.Events, p.cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("evaluating rules: %w", err)
		}
		p.metrics.Matches(res.Matches)
	}

	res.Groups = sig.Groups()
	for i := range res.Groups {
		grp := &res.Groups[i]
		if len(grp.Sources) > 0 {
			grp.Subsystem = p.tax.Hint(grp.Component, grp.Sources[0])
		}
	}
	novel := len(res.Groups)
	if p.history != nil {
		res.Groups, novel, err = p.history.Mark(res.CaseID, start, res.Groups)
		if err != nil {
			return nil, fmt.Errorf("signature history: %w", err)
		}
	}

	res.Incident = p.builder.Build(timeline.Input{
		CaseID:  res.CaseID,
		Device:  dev,
		Events:  res.Events,
		Groups:  res.Groups,
		Matches: res.Matches,
	})
	res.Incident.NovelGroups = novel
	res.Incident.Category = categorize(res.Incident, p.rules)

	for _, w := range res.Warnings {
		log.Warn("case warning", slog.Any("warning", w))
		p.metrics.Warning(w.Kind)
	}
	res.Incident.Warnings = res.Warnings
	if res.Incident.Warnings == nil {
		res.Incident.Warnings = []model.Warning{}
	}
	p.metrics.Case(len(res.Groups), p.now().Sub(start))

	log.Info("case analysed",
		slog.Int("events", len(res.Events)),
		slog.Int("groups", len(res.Groups)),
		slog.Int("matches", len(res.Matches)),
		slog.Int("warnings", len(res.Warnings)),
		slog.String("suspected_subsystem", res.Incident.SuspectedSubsystem),
	)
	return res, nil
}

// classify assigns kinds in ingestion order. Unknown and unreadable
// artifacts are skipped with a warning.
func (p *Pipeline) classify(arts []model.Artifact, res *Result) ([]job, []model.Warning) {
	var jobs []job
	var warnings []model.Warning
	for i, a := range arts {
		result, r, err := p.classifier.ClassifyArtifact(a)
		if err != nil {
			warnings = append(warnings, model.Warning{Kind: model.WarnParseMalformed, File: a.Name, Reason: err.Error()})
			p.metrics.Artifact(model.KindUnknown, metrics.StatusSkipped, 0)
			continue
		}
		res.Artifacts = append(res.Artifacts, Classified{Name: a.Name, Result: result})
		if result.Unknown() {
			warnings = append(warnings, model.Warning{Kind: model.WarnClassificationUnknown, File: a.Name, Reason: result.Reason})
			p.metrics.Artifact(model.KindUnknown, metrics.StatusSkipped, 0)
			continue
		}
		p.logger.Debug("classified artifact",
			slog.String("file", a.Name),
			slog.String("kind", string(result.Kind)),
			slog.Float64("confidence", result.Confidence),
		)
		jobs = append(jobs, job{index: i, art: a, kind: result.Kind, r: r})
	}
	return jobs, warnings
}

// parse streams one artifact through its parser.
func (p *Pipeline) parse(j job, deadline time.Time, each func(model.RawRecord)) []model.Warning {
	start := p.now()
	prs, err := parser.Get(j.kind)
	if err != nil {
		return []model.Warning{{Kind: model.WarnClassificationUnknown, File: j.art.Name, Reason: err.Error()}}
	}
	s := parser.NewStream(j.art.Name, j.r, j.art.ModTime, parser.Limits{
		MaxBytes:     p.cfg.MaxFileBytes,
		MaxLines:     p.cfg.MaxFileLines,
		MaxLineBytes: p.cfg.MaxLineBytes,
		Deadline:     deadline,
	})
	for rec := range prs.Parse(s) {
		each(rec)
	}
	took := p.now().Sub(start)
	p.metrics.Artifact(j.kind, metrics.StatusParsed, took)
	p.logger.Debug("parsed artifact",
		slog.String("file", j.art.Name),
		slog.String("kind", string(j.kind)),
		slog.Duration("took", took),
		slog.Bool("limit_hit", s.LimitHit()),
	)
	return s.Warnings()
}

func (p *Pipeline) write(ctx context.Context, events []*model.Event) error {
	if p.out == nil {
		return nil
	}
	for _, ev := range events {
		if err := p.out.Write(ctx, ev); err != nil {
			return fmt.Errorf("pipeline output: %w", err)
		}
	}
	return nil
}

func countUnanchored(events []*model.Event) int {
	n := 0
	for _, e := range events {
		if e.Unanchored {
			n++
		}
	}
	return n
}

// reference is the latest artifact modification time; it supplies the year
// of year-less timestamps when no bugreport dump time is known.
func reference(arts []model.Artifact) time.Time {
	var ref time.Time
	for _, a := range arts {
		if a.ModTime.After(ref) {
			ref = a.ModTime
		}
	}
	return ref
}

// categorize classifies the incident from its fired rules and the
// representatives of its most severe groups.
func categorize(inc *model.Incident, re *rules.Engine) model.IssueCategory {
	const maxGroups = 10
	var title []string
	if re != nil {
		desc := make(map[string]string)
		for _, r := range re.Rules() {
			desc[r.ID] = r.Description
		}
		for _, rt := range inc.Rules {
			if d := desc[rt.RuleID]; d != "" {
				title = append(title, d)
			}
		}
	}

	groups := slices.Clone(inc.Groups)
	slices.SortStableFunc(groups, func(a, b model.GroupTimeline) int {
		if a.Level != b.Level {
			return int(b.Level) - int(a.Level)
		}
		return b.Count - a.Count
	})
	var content []string
	for _, g := range groups {
		if len(content) == maxGroups || g.Level < model.LevelWarn {
			break
		}
		content = append(content, g.Representative)
	}
	return taxonomy.Categorize(strings.Join(title, "; "), strings.Join(content, "\n"), 3)
}
