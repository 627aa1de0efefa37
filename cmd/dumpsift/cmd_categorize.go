package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crimson-sun/dumpsift/internal/engine/taxonomy"
)

func newCategorizeCmd() *cobra.Command {
	var (
		title       string
		content     string
		contentFile string
		topK        int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Classify an issue report by keywords",
		Long: `Score an issue title and description against the built-in issue categories
(crash, camera, Bluetooth, NFC, notification, UI, audio, Wi-Fi, mobile network,
battery). A crash is always primary when it scores; other scoring categories
become secondaries.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if contentFile != "" {
				b, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("reading content: %w", err)
				}
				content = string(b)
			}
			if strings.TrimSpace(title+content) == "" {
				return fmt.Errorf("--title or --content is required")
			}
			c := taxonomy.Categorize(title, content, topK)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			}
			fmt.Fprintf(out, "Primary:   %s\n", c.Primary)
			if len(c.Secondary) > 0 {
				fmt.Fprintf(out, "Secondary: %s\n", strings.Join(c.Secondary, ", "))
			}
			names := make([]string, 0, len(c.Reasons))
			for name := range c.Reasons {
				names = append(names, name)
			}
			slices.Sort(names)
			for _, name := range names {
				fmt.Fprintf(out, "  %-22s %2d  %s\n", name, c.Scores[name], strings.Join(c.Reasons[name], ", "))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&title, "title", "t", "", "Issue title")
	f.StringVarP(&content, "content", "c", "", "Issue description")
	f.StringVar(&contentFile, "content-file", "", "Read the description from a file")
	f.IntVar(&topK, "top", 3, "Maximum number of categories reported, primary included")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
