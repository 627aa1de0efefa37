// Package config loads dumpsift settings: built-in defaults, then an
// optional YAML file, then DUMPSIFT_* environment variables, then
// validation.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/engine/signature"
	"github.com/crimson-sun/dumpsift/internal/engine/timeline"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

// EnvConfig names the variable holding the config file path.
const EnvConfig = "DUMPSIFT_CONFIG"

// Config holds all dumpsift configuration.
type Config struct {
	Parse     ParseConfig     `yaml:"parse"`
	Signature SignatureConfig `yaml:"signature"`
	Timeline  TimelineConfig  `yaml:"timeline"`
	Rules     RulesConfig     `yaml:"rules"`
	Output    OutputConfig    `yaml:"output"`
	History   HistoryConfig   `yaml:"history"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ParseConfig bounds artifact parsing.
type ParseConfig struct {
	MaxFileBytes int64         `yaml:"max_file_bytes" validate:"gt=0"`
	MaxFileLines int           `yaml:"max_file_lines" validate:"gt=0"`
	MaxLineBytes int           `yaml:"max_line_bytes" validate:"gte=256"`
	CaseBudget   time.Duration `yaml:"case_budget" validate:"gte=0"`
	Workers      int           `yaml:"workers" validate:"min=1,max=256"`
	TimeZone     string        `yaml:"timezone"`
	SampleBytes  int           `yaml:"sample_bytes" validate:"gte=512"`
	Threshold    float64       `yaml:"classify_threshold" validate:"gte=0,lte=1"`
}

// SignatureConfig tunes fingerprinting.
type SignatureConfig struct {
	Shards           int  `yaml:"shards" validate:"min=1,max=4096"`
	MaxFrames        int  `yaml:"max_frames" validate:"gte=0,lte=64"`
	IncludeComponent bool `yaml:"include_component"`
}

// TimelineConfig tunes bucketing and spike detection.
type TimelineConfig struct {
	BucketWidth     time.Duration `yaml:"bucket_width" validate:"gt=0"`
	SpikeMultiplier float64       `yaml:"spike_multiplier" validate:"gt=1"`
	SpikeWindow     int           `yaml:"spike_window" validate:"min=1"`
	MaxBuckets      int           `yaml:"max_buckets" validate:"min=1"`
	HintWeight      float64       `yaml:"hint_weight" validate:"gte=0"`
	MaxGroups       int           `yaml:"max_groups" validate:"gte=0"`
}

// RulesConfig selects the detection rules.
type RulesConfig struct {
	Path        string `yaml:"path"`
	Required    bool   `yaml:"required"`
	UseDefaults bool   `yaml:"use_defaults"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	EventsPath  string `yaml:"events_path"` // "-" is stdout; empty disables
	SummaryPath string `yaml:"summary_path"`
	Pretty      bool   `yaml:"pretty"`
	Verbosity   string `yaml:"verbosity" validate:"oneof=minimal standard full"`
	MaxSize     int64  `yaml:"max_size" validate:"gte=0"`
	MaxFiles    int    `yaml:"max_files" validate:"gte=0,lte=100"`
	Append      bool   `yaml:"append"`
	Table       string `yaml:"table" validate:"oneof=ascii markdown none"`
}

// HistoryConfig locates the signature history database.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig locates the Prometheus textfile.
type MetricsConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := pipeline.DefaultConfig()
	return Config{
		Parse: ParseConfig{
			MaxFileBytes: p.MaxFileBytes,
			MaxFileLines: p.MaxFileLines,
			MaxLineBytes: p.MaxLineBytes,
			CaseBudget:   p.CaseBudget,
			Workers:      p.Workers,
			SampleBytes:  p.SampleBytes,
			Threshold:    p.Threshold,
		},
		Signature: SignatureConfig{
			Shards:           p.Signature.Shards,
			MaxFrames:        p.Signature.MaxFrames,
			IncludeComponent: p.Signature.IncludeComponent,
		},
		Timeline: TimelineConfig{
			BucketWidth:     p.Timeline.BucketWidth,
			SpikeMultiplier: p.Timeline.SpikeMultiplier,
			SpikeWindow:     p.Timeline.SpikeWindow,
			MaxBuckets:      p.Timeline.MaxBuckets,
			HintWeight:      p.Timeline.HintWeight,
			MaxGroups:       p.Timeline.MaxGroups,
		},
		Rules:  RulesConfig{UseDefaults: true},
		Output: OutputConfig{Verbosity: "standard", Table: "ascii"},
		Log:    LogConfig{Level: "info", Format: "text"},
	}
}

// Load builds the configuration. An empty path falls back to
// $DUMPSIFT_CONFIG; without either no file is read.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("config file: %w", err)
		}
		err = decode(f, &cfg)
		f.Close()
		if err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// decode overlays a YAML document onto cfg. Unknown keys are errors.
func decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides cfg from DUMPSIFT_* variables. Malformed numbers and
// booleans are errors rather than silently ignored.
func applyEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	num := func(key string, set func(string) error) {
		if v := os.Getenv(key); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
			}
		}
	}
	intVar := func(dst *int) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.Atoi(v); return }
	}
	boolVar := func(dst *bool) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.ParseBool(v); return }
	}
	floatVar := func(dst *float64) func(string) error {
		return func(v string) (err error) { *dst, err = strconv.ParseFloat(v, 64); return }
	}
	durVar := func(dst *time.Duration) func(string) error {
		return func(v string) (err error) { *dst, err = time.ParseDuration(v); return }
	}

	num("DUMPSIFT_MAX_FILE_BYTES", func(v string) (err error) {
		cfg.Parse.MaxFileBytes, err = strconv.ParseInt(v, 10, 64)
		return
	})
	num("DUMPSIFT_MAX_FILE_LINES", intVar(&cfg.Parse.MaxFileLines))
	num("DUMPSIFT_MAX_LINE_BYTES", intVar(&cfg.Parse.MaxLineBytes))
	num("DUMPSIFT_CASE_BUDGET", durVar(&cfg.Parse.CaseBudget))
	num("DUMPSIFT_WORKERS", intVar(&cfg.Parse.Workers))
	str("DUMPSIFT_TIMEZONE", &cfg.Parse.TimeZone)
	num("DUMPSIFT_CLASSIFY_THRESHOLD", floatVar(&cfg.Parse.Threshold))

	num("DUMPSIFT_MAX_FRAMES", intVar(&cfg.Signature.MaxFrames))
	num("DUMPSIFT_INCLUDE_COMPONENT", boolVar(&cfg.Signature.IncludeComponent))

	num("DUMPSIFT_BUCKET_WIDTH", durVar(&cfg.Timeline.BucketWidth))
	num("DUMPSIFT_SPIKE_MULTIPLIER", floatVar(&cfg.Timeline.SpikeMultiplier))
	num("DUMPSIFT_SPIKE_WINDOW", intVar(&cfg.Timeline.SpikeWindow))

	str("DUMPSIFT_RULES", &cfg.Rules.Path)
	num("DUMPSIFT_RULES_REQUIRED", boolVar(&cfg.Rules.Required))
	num("DUMPSIFT_DEFAULT_RULES", boolVar(&cfg.Rules.UseDefaults))

	str("DUMPSIFT_EVENTS", &cfg.Output.EventsPath)
	str("DUMPSIFT_SUMMARY", &cfg.Output.SummaryPath)
	num("DUMPSIFT_PRETTY", boolVar(&cfg.Output.Pretty))
	str("DUMPSIFT_VERBOSITY", &cfg.Output.Verbosity)
	str("DUMPSIFT_TABLE", &cfg.Output.Table)
	num("DUMPSIFT_APPEND_EVENTS", boolVar(&cfg.Output.Append))

	str("DUMPSIFT_HISTORY", &cfg.History.Path)
	str("DUMPSIFT_METRICS", &cfg.Metrics.Path)
	str("DUMPSIFT_LOG_LEVEL", &cfg.Log.Level)
	str("DUMPSIFT_LOG_FORMAT", &cfg.Log.Format)
	return errors.Join(errs...)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks every field and reports all problems at once, naming
// fields by their YAML path.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validate config: %w", err)
		}
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), "Config.")
			errs = append(errs, fmt.Errorf("%s: failed %q (got %v)", field, constraint(fe), fe.Value()))
		}
	}
	if c.Parse.TimeZone != "" {
		if _, err := time.LoadLocation(c.Parse.TimeZone); err != nil {
			errs = append(errs, fmt.Errorf("parse.timezone: %w", err))
		}
	}
	if !c.Rules.UseDefaults && c.Rules.Path == "" && c.Rules.Required {
		errs = append(errs, errors.New("rules.required: no rule file and built-in rules disabled"))
	}
	return errors.Join(errs...)
}

func constraint(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// Pipeline converts the parse, signature and timeline sections.
func (c Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		MaxFileBytes: c.Parse.MaxFileBytes,
		MaxFileLines: c.Parse.MaxFileLines,
		MaxLineBytes: c.Parse.MaxLineBytes,
		CaseBudget:   c.Parse.CaseBudget,
		Workers:      c.Parse.Workers,
		TimeZone:     c.Parse.TimeZone,
		SampleBytes:  c.Parse.SampleBytes,
		Threshold:    c.Parse.Threshold,
		Signature: signature.Config{
			Shards:           c.Signature.Shards,
			MaxFrames:        c.Signature.MaxFrames,
			IncludeComponent: c.Signature.IncludeComponent,
		},
		Timeline: timeline.Config{
			BucketWidth:     c.Timeline.BucketWidth,
			SpikeMultiplier: c.Timeline.SpikeMultiplier,
			SpikeWindow:     c.Timeline.SpikeWindow,
			MaxBuckets:      c.Timeline.MaxBuckets,
			HintWeight:      c.Timeline.HintWeight,
			MaxGroups:       c.Timeline.MaxGroups,
		},
	}
}

// Verbosity returns the parsed output verbosity.
func (c Config) Verbosity() compactor.Verbosity {
	v, _ := compactor.ParseVerbosity(c.Output.Verbosity)
	return v
}
