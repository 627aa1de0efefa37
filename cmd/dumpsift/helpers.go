package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/crimson-sun/dumpsift/internal/collect"
	"github.com/crimson-sun/dumpsift/internal/config"
	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/engine/rules"
	"github.com/crimson-sun/dumpsift/internal/logging"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/output"
	"github.com/crimson-sun/dumpsift/internal/output/async"
	"github.com/crimson-sun/dumpsift/internal/output/file"
	"github.com/crimson-sun/dumpsift/internal/output/multi"
	"github.com/crimson-sun/dumpsift/internal/output/stdout"
)

// loadRules collects the built-in rules (unless disabled) and the rule file,
// then compiles them.
func loadRules(rc config.RulesConfig) (*rules.Engine, []*rules.InvalidRuleError, error) {
	var defs []model.Rule
	if rc.UseDefaults {
		defs = append(defs, rules.Defaults()...)
	}
	if rc.Path != "" {
		fileDefs, err := rules.LoadFile(rc.Path)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, fileDefs...)
	}
	return rules.Compile(defs, rc.Required)
}

// expandInputs resolves the command's path arguments and fails when they
// name no file.
func expandInputs(args []string) ([]string, error) {
	paths, err := collect.Expand(args, collect.DefaultExclude)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no input files under %v", args)
	}
	return paths, nil
}

// eventSink is the combined events output of one run.
type eventSink struct {
	output.Output
	failed atomic.Int64
}

// openEvents opens one NDJSON output per target: "-" streams to stdout, any
// other value is a file. File outputs are written asynchronously. It
// returns nil when there is no target.
func openEvents(targets []string, stdoutW io.Writer, v compactor.Verbosity, oc config.OutputConfig) (*eventSink, error) {
	sink := &eventSink{}
	log := logging.New("output")
	onError := func(err error) {
		sink.failed.Add(1)
		log.Warn("event write failed", slog.Any("error", err))
	}

	var outs []output.Output
	closeAll := func() {
		for _, o := range outs {
			o.Close()
		}
	}
	for _, t := range targets {
		if t == "-" {
			outs = append(outs, stdout.NewWriter(stdoutW, v, oc.Pretty))
			continue
		}
		var opts []file.Option
		if oc.MaxSize > 0 {
			opts = append(opts, file.WithMaxSize(oc.MaxSize), file.WithMaxFiles(oc.MaxFiles))
		}
		if oc.Append {
			opts = append(opts, file.WithAppend())
		}
		f, err := file.New(t, v, opts...)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("events output: %w", err)
		}
		outs = append(outs, async.New(f, async.WithOnError(onError)))
	}
	switch len(outs) {
	case 0:
		return nil, nil
	case 1:
		sink.Output = outs[0]
	default:
		sink.Output = multi.New(outs...)
	}
	return sink, nil
}

// Close flushes and closes every output and reports writes that failed in
// the background.
func (s *eventSink) Close() error {
	if err := s.Output.Close(); err != nil {
		return err
	}
	if n := s.failed.Load(); n > 0 {
		return fmt.Errorf("%d event write(s) failed", n)
	}
	return nil
}
