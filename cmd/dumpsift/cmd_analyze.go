package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/dumpsift/internal/collect"
	"github.com/crimson-sun/dumpsift/internal/config"
	"github.com/crimson-sun/dumpsift/internal/logging"
	"github.com/crimson-sun/dumpsift/internal/metrics"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
	"github.com/crimson-sun/dumpsift/internal/report"
	"github.com/crimson-sun/dumpsift/internal/store"
)

type analyzeFlags struct {
	caseID     string
	events     []string
	summary    string
	rules      string
	noDefaults bool
	rulesReq   bool
	table      string
	verbosity  string
	pretty     bool
	history    string
	metrics    string
	timezone   string
	workers    int
	caseBudget time.Duration
}

func newAnalyzeCmd(a *app) *cobra.Command {
	var flags analyzeFlags
	cmd := &cobra.Command{
		Use:   "analyze <path...>",
		Short: "Analyse the artifacts of one case",
		Long: `Classify and parse every artifact under the given paths as one case, then
report signature groups, known-issue matches and the incident timeline.

Paths may be files, directories (searched recursively) or glob patterns:
  dumpsift analyze bugreport-SM-S928-UP1A.zip.d/
  dumpsift analyze 'FS/data/{anr,tombstones}/**' logcat.txt
  dumpsift analyze case/ --events=- --table=none | jq .

Events are written as NDJSON to --events ("-" for stdout; repeatable) and
the case summary as JSON to --summary. A table overview goes to stdout, or
to stderr when events are streamed to stdout.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.cfg
			flags.apply(cmd, &cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runAnalyze(cmd, cfg, flags, args)
		},
	}
	f := cmd.Flags()
	f.StringVar(&flags.caseID, "case-id", "", "Case ID (default: random UUID)")
	f.StringSliceVarP(&flags.events, "events", "e", nil, `Events NDJSON output, "-" for stdout (default: output.events_path)`)
	f.StringVarP(&flags.summary, "summary", "s", "", "Summary JSON output path (default: output.summary_path)")
	f.StringVarP(&flags.rules, "rules", "r", "", "YAML rule file added to the rule set")
	f.BoolVar(&flags.noDefaults, "no-default-rules", false, "Do not load the built-in rules")
	f.BoolVar(&flags.rulesReq, "rules-required", false, "Fail when no valid rule is loaded")
	f.StringVar(&flags.table, "table", "", "Overview table: ascii, markdown or none")
	f.StringVar(&flags.verbosity, "verbosity", "", "Event text: minimal, standard or full")
	f.BoolVar(&flags.pretty, "pretty", false, "Indent JSON output")
	f.StringVar(&flags.history, "history", "", "Signature history database directory")
	f.StringVar(&flags.metrics, "metrics", "", "Prometheus textfile to write after the run")
	f.StringVar(&flags.timezone, "timezone", "", "Device time zone override, e.g. Asia/Seoul")
	f.IntVarP(&flags.workers, "workers", "j", 0, "Artifacts parsed in parallel")
	f.DurationVar(&flags.caseBudget, "case-budget", 0, "Parse time budget for the whole case, e.g. 2m")
	return cmd
}

// apply overrides configuration with the flags given on the command line.
func (f analyzeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("summary") {
		cfg.Output.SummaryPath = f.summary
	}
	if changed("rules") {
		cfg.Rules.Path = f.rules
	}
	if changed("no-default-rules") {
		cfg.Rules.UseDefaults = !f.noDefaults
	}
	if changed("rules-required") {
		cfg.Rules.Required = f.rulesReq
	}
	if changed("table") {
		cfg.Output.Table = f.table
	}
	if changed("verbosity") {
		cfg.Output.Verbosity = f.verbosity
	}
	if changed("pretty") {
		cfg.Output.Pretty = f.pretty
	}
	if changed("history") {
		cfg.History.Path = f.history
	}
	if changed("metrics") {
		cfg.Metrics.Path = f.metrics
	}
	if changed("timezone") {
		cfg.Parse.TimeZone = f.timezone
	}
	if changed("workers") {
		cfg.Parse.Workers = f.workers
	}
	if changed("case-budget") {
		cfg.Parse.CaseBudget = f.caseBudget
	}
}

func runAnalyze(cmd *cobra.Command, cfg config.Config, flags analyzeFlags, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	log := logging.New("cli")

	var mode report.Mode
	if cfg.Output.Table != "none" {
		var err error
		if mode, err = report.ParseMode(cfg.Output.Table); err != nil {
			return err
		}
	}

	paths, err := expandInputs(args)
	if err != nil {
		return err
	}
	set, err := collect.Open(paths)
	if err != nil {
		return err
	}
	defer set.Close()
	log.Debug("collected artifacts", slog.Int("files", len(paths)))

	eng, invalid, err := loadRules(cfg.Rules)
	if err != nil {
		return err
	}
	opts := []pipeline.Option{pipeline.WithRules(eng, invalid)}

	if cfg.History.Path != "" {
		h, err := store.Open(store.Config{Path: cfg.History.Path, Logger: logging.New("history")})
		if err != nil {
			return err
		}
		defer h.Close()
		opts = append(opts, pipeline.WithHistory(h))
	}

	var m *metrics.Metrics
	if cfg.Metrics.Path != "" {
		m = metrics.New()
		opts = append(opts, pipeline.WithMetrics(m))
	}

	targets := flags.events
	if len(targets) == 0 && cfg.Output.EventsPath != "" {
		targets = []string{cfg.Output.EventsPath}
	}
	sink, err := openEvents(targets, cmd.OutOrStdout(), cfg.Verbosity(), cfg.Output)
	if err != nil {
		return err
	}
	if sink != nil {
		opts = append(opts, pipeline.WithOutput(sink))
	}

	res, err := pipeline.New(cfg.Pipeline(), opts...).Run(ctx, pipeline.Case{ID: flags.caseID, Artifacts: set.Artifacts})
	if sink != nil {
		if cerr := sink.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fmt.Errorf("analysis interrupted: %w", err)
		}
		return err
	}

	if cfg.Output.SummaryPath != "" {
		if err := report.WriteFile(cfg.Output.SummaryPath, report.NewSummary(res, time.Now()), cfg.Output.Pretty); err != nil {
			return err
		}
		log.Info("summary written", slog.String("path", cfg.Output.SummaryPath))
	}
	if err := m.WriteTextfile(cfg.Metrics.Path); err != nil {
		return err
	}

	if cfg.Output.Table == "none" {
		return nil
	}
	var w io.Writer = cmd.OutOrStdout()
	if streamsToStdout(targets) {
		w = cmd.ErrOrStderr()
	}
	return report.Render(w, res, mode)
}

func streamsToStdout(targets []string) bool {
	for _, t := range targets {
		if t == "-" {
			return true
		}
	}
	return false
}
