package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/dumpsift/internal/collect"
	"github.com/crimson-sun/dumpsift/internal/engine/classifier"
	"github.com/crimson-sun/dumpsift/internal/report"
)

func newClassifyCmd(a *app) *cobra.Command {
	var table string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "classify <path...>",
		Short: "Show the detected kind of each artifact",
		Long: `Classify each file by name convention and content sniffing without parsing
it. Useful to see why a file is skipped as unknown.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandInputs(args)
			if err != nil {
				return err
			}
			set, err := collect.Open(paths)
			if err != nil {
				return err
			}
			defer set.Close()

			c := classifier.New(a.cfg.Parse.Threshold)
			c.SampleBytes = a.cfg.Parse.SampleBytes
			results := make([]classifier.Result, len(set.Artifacts))
			for i, art := range set.Artifacts {
				r, _, err := c.ClassifyArtifact(art)
				if err != nil {
					return err
				}
				results[i] = r
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				for i, r := range results {
					row := struct {
						Name string `json:"name"`
						classifier.Result
					}{paths[i], r}
					if err := enc.Encode(row); err != nil {
						return err
					}
				}
				return nil
			}
			mode, err := report.ParseMode(table)
			if err != nil {
				return err
			}
			return report.RenderClassification(cmd.OutOrStdout(), paths, results, mode)
		},
	}
	cmd.Flags().StringVar(&table, "table", "ascii", "Table format: ascii or markdown")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print one JSON object per file instead of a table")
	return cmd
}
