package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/crimson-sun/dumpsift/internal/engine/rules"
	"github.com/crimson-sun/dumpsift/internal/model"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and validate detection rules",
	}
	cmd.AddCommand(newRulesValidateCmd(), newRulesListCmd(a))
	return cmd
}

func newRulesValidateCmd() *cobra.Command {
	var withDefaults bool
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Compile a rule file and report invalid rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := rules.LoadFile(args[0])
			if err != nil {
				return err
			}
			if withDefaults {
				defs = append(rules.Defaults(), defs...)
			}
			eng, invalid, err := rules.Compile(defs, false)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, inv := range invalid {
				fmt.Fprintf(out, "invalid: %v\n", inv)
			}
			if len(invalid) > 0 {
				return fmt.Errorf("%s: %d of %d rule(s) invalid", args[0], len(invalid), len(defs))
			}
			fmt.Fprintf(out, "%s: %d rule(s) ok\n", args[0], eng.Len())
			return nil
		},
	}
	cmd.Flags().BoolVar(&withDefaults, "with-defaults", false, "Compile together with the built-in rules to catch ID clashes")
	return cmd
}

func newRulesListCmd(a *app) *cobra.Command {
	var path string
	var markdown bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules an analysis would use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rc := a.cfg.Rules
			rc.Required = false
			if path != "" {
				rc.Path = path
			}
			eng, invalid, err := loadRules(rc)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetStyle(table.StyleLight)
			t.SetTitle(fmt.Sprintf("Rules (%d)", eng.Len()))
			t.AppendHeader(table.Row{"ID", "Severity", "Subsystem", "Component", "Description"})
			for _, r := range eng.Rules() {
				t.AppendRow(table.Row{r.ID, severity(r.Severity), r.Subsystem, orDash(r.Component), r.Description})
			}
			t.SetColumnConfigs([]table.ColumnConfig{{Number: 5, WidthMax: 60}})
			out := t.Render()
			if markdown {
				out = t.RenderMarkdown()
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			for _, inv := range invalid {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipped invalid %v\n", inv)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "rules", "r", "", "YAML rule file added to the rule set")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render as a Markdown table")
	return cmd
}

func severity(s model.Severity) string {
	if s == "" {
		return string(model.SeverityMedium)
	}
	return string(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
