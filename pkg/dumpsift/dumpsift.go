package dumpsift

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/crimson-sun/dumpsift/internal/collect"
	"github.com/crimson-sun/dumpsift/internal/engine/classifier"
	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/engine/rules"
	"github.com/crimson-sun/dumpsift/internal/engine/taxonomy"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
	"github.com/crimson-sun/dumpsift/internal/store"
)

// ErrNoArtifacts is returned when none of a case's inputs could be
// classified.
var ErrNoArtifacts = pipeline.ErrNoArtifacts

// ErrNoValidRules is returned by New when rules are required and none
// compiled.
var ErrNoValidRules = rules.ErrNoValidRules

// Input is one artifact handed to Analyze.
type Input struct {
	Name    string    // file name, used for classification and warnings
	Kind    string    // optional kind hint, e.g. "tombstone"
	Reader  io.Reader // artifact content
	ModTime time.Time // optional; fallback time for records without one
}

// Analyzer runs diagnostic cases.
// Safe for concurrent use.
type Analyzer struct {
	pipeline   *pipeline.Pipeline
	classifier *classifier.Classifier
	taxonomy   *taxonomy.Taxonomy
	history    *store.History
	verbosity  compactor.Verbosity
	device     *model.Device
	invalid    []string
}

// New creates an Analyzer, compiling the rule set and opening the history
// store when one is configured.
func New(opts ...Option) (*Analyzer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	v, err := compactor.ParseVerbosity(o.verbosity)
	if err != nil {
		return nil, fmt.Errorf("dumpsift: %w", err)
	}

	var defs []model.Rule
	if !o.noDefaults {
		defs = append(defs, rules.Defaults()...)
	}
	for _, path := range o.ruleFiles {
		fileDefs, err := rules.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("dumpsift: %w", err)
		}
		defs = append(defs, fileDefs...)
	}
	eng, invalid, err := rules.Compile(defs, o.required)
	if err != nil {
		return nil, fmt.Errorf("dumpsift: %w", err)
	}

	a := &Analyzer{
		classifier: classifier.New(o.pipeline.Threshold),
		taxonomy:   taxonomy.Default(),
		verbosity:  v,
	}
	for _, inv := range invalid {
		a.invalid = append(a.invalid, inv.Error())
	}
	if o.device != nil {
		a.device = o.device.model()
	}

	popts := []pipeline.Option{
		pipeline.WithRules(eng, invalid),
		pipeline.WithTaxonomy(a.taxonomy),
	}
	if o.historyPath != "" {
		h, err := store.Open(store.Config{Path: o.historyPath})
		if err != nil {
			return nil, fmt.Errorf("dumpsift: %w", err)
		}
		a.history = h
		popts = append(popts, pipeline.WithHistory(h))
	}
	a.pipeline = pipeline.New(o.pipeline, popts...)
	return a, nil
}

// Analyze runs one case over the given inputs. The readers are consumed but
// not closed.
func (a *Analyzer) Analyze(ctx context.Context, inputs []Input) (*Report, error) {
	arts := make([]model.Artifact, len(inputs))
	for i, in := range inputs {
		arts[i] = model.Artifact{
			Name:     in.Name,
			KindHint: model.ArtifactKind(in.Kind),
			Reader:   in.Reader,
			ModTime:  in.ModTime,
		}
	}
	return a.run(ctx, arts)
}

// AnalyzeFiles runs one case over files, directories and glob patterns.
// Directories are searched recursively.
func (a *Analyzer) AnalyzeFiles(ctx context.Context, paths ...string) (*Report, error) {
	files, err := collect.Expand(paths, collect.DefaultExclude)
	if err != nil {
		return nil, fmt.Errorf("dumpsift: %w", err)
	}
	set, err := collect.Open(files)
	if err != nil {
		return nil, fmt.Errorf("dumpsift: %w", err)
	}
	defer set.Close()
	return a.run(ctx, set.Artifacts)
}

func (a *Analyzer) run(ctx context.Context, arts []model.Artifact) (*Report, error) {
	res, err := a.pipeline.Run(ctx, pipeline.Case{Artifacts: arts, Device: a.device})
	if err != nil {
		return nil, err
	}
	return reportFromResult(res, a.verbosity), nil
}

// InvalidRules lists the rules dropped at compile time, one message per
// rule.
func (a *Analyzer) InvalidRules() []string {
	return a.invalid
}

// Classify reports the artifact kind of a file from its name and the first
// bytes of its content.
func (a *Analyzer) Classify(name string, sample []byte) Artifact {
	r := a.classifier.Classify(name, sample)
	return Artifact{Name: name, Kind: string(r.Kind), Confidence: r.Confidence, Reason: r.Reason}
}

// Close releases the history store, if any.
func (a *Analyzer) Close() error {
	if a.history == nil {
		return nil
	}
	return a.history.Close()
}
