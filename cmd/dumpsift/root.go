package main

import (
	"github.com/spf13/cobra"

	"github.com/crimson-sun/dumpsift/internal/config"
	"github.com/crimson-sun/dumpsift/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

// app is the state shared by every subcommand: global flags and the loaded
// configuration.
type app struct {
	configPath string
	logLevel   string
	logFormat  string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "dumpsift",
		Short: "Incident analysis for Samsung/Android bugreports and crash logs",
		Long: "dumpsift classifies and parses bugreports, logcat buffers, kernel logs,\n" +
			"ANR traces, tombstones and dropbox entries, merges them into one\n" +
			"timeline and reports signature groups, known issues and the suspected\n" +
			"subsystem.",
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: $"+config.EnvConfig+")")
	pf.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	pf.StringVar(&a.logFormat, "log-format", "", "Log format: text or json (overrides config)")

	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newClassifyCmd(a))
	root.AddCommand(newRulesCmd(a))
	root.AddCommand(newCategorizeCmd())
	root.Version = version
	return root
}

// setup loads the configuration and installs the logger before any
// subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	a.cfg = cfg
	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.Format, cmd.ErrOrStderr())
	return nil
}
