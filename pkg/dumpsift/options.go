package dumpsift

import (
	"time"

	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

type options struct {
	pipeline    pipeline.Config
	ruleFiles   []string
	noDefaults  bool
	required    bool
	historyPath string
	verbosity   string
	device      *DeviceInfo
}

// Option configures an Analyzer.
type Option func(*options)

// WithRuleFile adds the rules of a YAML rule file. Can be given several
// times; files are loaded in order after the built-in rules.
func WithRuleFile(path string) Option {
	return func(o *options) {
		o.ruleFiles = append(o.ruleFiles, path)
	}
}

// WithoutDefaultRules drops the built-in rule pack.
func WithoutDefaultRules() Option {
	return func(o *options) {
		o.noDefaults = true
	}
}

// WithRulesRequired makes New fail when no valid rule is left after
// compilation.
func WithRulesRequired() Option {
	return func(o *options) {
		o.required = true
	}
}

// WithWorkers sets how many artifacts are parsed in parallel. Default: 4.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.pipeline.Workers = n
	}
}

// WithTimeZone overrides the device time zone used for local timestamps,
// e.g. "Asia/Seoul".
func WithTimeZone(tz string) Option {
	return func(o *options) {
		o.pipeline.TimeZone = tz
	}
}

// WithHistory keeps signature history in the badger database at path, so
// groups seen in earlier cases are reported as recurring.
func WithHistory(path string) Option {
	return func(o *options) {
		o.historyPath = path
	}
}

// WithCaseBudget bounds the parse time of a case. Artifacts still being
// parsed when it runs out are cut short with a warning.
func WithCaseBudget(d time.Duration) Option {
	return func(o *options) {
		o.pipeline.CaseBudget = d
	}
}

// WithThreshold sets the minimum content score for artifacts whose name
// matches no known convention. Default: 0.5.
func WithThreshold(t float64) Option {
	return func(o *options) {
		o.pipeline.Threshold = t
	}
}

// WithVerbosity sets how much of each event's text is kept in reports:
// "minimal", "standard" or "full". Default: "standard".
func WithVerbosity(v string) Option {
	return func(o *options) {
		o.verbosity = v
	}
}

// WithDevice supplies device metadata for cases without a bugreport.
func WithDevice(d DeviceInfo) Option {
	return func(o *options) {
		o.device = &d
	}
}

func defaultOptions() options {
	return options{
		pipeline:  pipeline.DefaultConfig(),
		verbosity: "standard",
	}
}
