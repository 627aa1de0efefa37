package report

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/crimson-sun/dumpsift/internal/engine/classifier"
	"github.com/crimson-sun/dumpsift/internal/engine/signature"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

// Mode controls the table format.
type Mode int

const (
	ASCII    Mode = iota // fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
)

// ParseMode maps "ascii"/"table" and "markdown"/"md" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "ascii", "table":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	}
	return ASCII, fmt.Errorf("unknown table format %q", s)
}

const (
	maxTextWidth = 72
	topGroups    = 15
)

func newTable(title string) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	return t
}

func render(w io.Writer, t table.Writer, m Mode) error {
	var out string
	if m == Markdown {
		out = t.RenderMarkdown()
	} else {
		out = t.Render()
	}
	_, err := fmt.Fprintln(w, out)
	return err
}

// Render prints the case overview, the leading signature groups, fired
// rules, subsystem scores and warnings.
func Render(w io.Writer, res *pipeline.Result, m Mode) error {
	for _, t := range []table.Writer{
		overviewTable(res),
		groupsTable(res.Groups),
		rulesTable(res.Incident),
		subsystemTable(res.Incident),
	} {
		if t == nil {
			continue
		}
		if err := render(w, t, m); err != nil {
			return err
		}
	}
	if len(res.Warnings) > 0 {
		return render(w, warningsTable(res.Warnings), m)
	}
	return nil
}

func overviewTable(res *pipeline.Result) table.Writer {
	t := newTable("Case " + res.CaseID)
	info := res.Device.Info()
	inc := res.Incident
	t.AppendRows([]table.Row{
		{"Device", res.Device.Ref()},
		{"One UI", orDash(info.OneUI)},
		{"Baseband", orDash(info.Baseband)},
		{"Window", fmt.Sprintf("%s .. %s", stamp(inc.Start), stamp(inc.End))},
		{"Events", len(res.Events)},
		{"Groups", fmt.Sprintf("%d (%d new)", len(res.Groups), inc.NovelGroups)},
		{"Rule matches", len(res.Matches)},
		{"Suspected subsystem", orDash(inc.SuspectedSubsystem)},
		{"Category", category(inc.Category)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 1, Align: text.AlignRight}})
	return t
}

func groupsTable(groups []model.SignatureGroup) table.Writer {
	if len(groups) == 0 {
		return nil
	}
	ranked := rankGroups(groups)
	t := newTable("Signature groups")
	t.AppendHeader(table.Row{"Level", "Count", "Component", "Subsystem", "Summary", ""})
	for i, g := range ranked {
		if i == topGroups {
			t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d more", len(ranked)-topGroups), ""})
			break
		}
		mark := ""
		if g.Recurring {
			mark = "seen before"
		}
		t.AppendRow(table.Row{g.Level, g.Count, g.Component, orDash(g.Subsystem), signature.Summary(g), mark})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
		{Number: 5, WidthMax: maxTextWidth},
	})
	return t
}

func rulesTable(inc *model.Incident) table.Writer {
	if inc == nil || len(inc.Rules) == 0 {
		return nil
	}
	t := newTable("Rules")
	t.AppendHeader(table.Row{"Rule", "Severity", "Subsystem", "Count", "First", "Last", "Spikes"})
	for _, r := range inc.Rules {
		t.AppendRow(table.Row{r.RuleID, r.Severity, r.Subsystem, r.Count, stamp(r.First), stamp(r.Last), len(r.Spikes)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, Align: text.AlignRight}})
	return t
}

func subsystemTable(inc *model.Incident) table.Writer {
	if inc == nil || len(inc.Subsystems) == 0 {
		return nil
	}
	t := newTable("Subsystems")
	t.AppendHeader(table.Row{"Subsystem", "Weight", "Rules", "Groups", "First"})
	for _, s := range inc.Subsystems {
		t.AppendRow(table.Row{s.Subsystem, fmt.Sprintf("%.2f", s.Weight), s.Rules, s.Groups, stamp(s.First)})
	}
	return t
}

func warningsTable(ws []model.Warning) table.Writer {
	t := newTable("Warnings")
	t.AppendHeader(table.Row{"Kind", "File", "Line", "Reason"})
	for _, w := range ws {
		line := ""
		if w.Line > 0 {
			line = fmt.Sprint(w.Line)
		}
		t.AppendRow(table.Row{w.Kind, orDash(w.File), line, w.Reason})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: maxTextWidth}})
	return t
}

// RenderClassification prints one row per classified artifact.
func RenderClassification(w io.Writer, names []string, results []classifier.Result, m Mode) error {
	t := newTable("Artifacts")
	t.AppendHeader(table.Row{"File", "Kind", "Confidence", "Reason"})
	for i, r := range results {
		t.AppendRow(table.Row{names[i], r.Kind, fmt.Sprintf("%.2f", r.Confidence), r.Reason})
	}
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 4, WidthMax: maxTextWidth}})
	return render(w, t, m)
}

// rankGroups orders groups by level, then count, keeping timeline order
// for ties.
func rankGroups(groups []model.SignatureGroup) []model.SignatureGroup {
	out := slices.Clone(groups)
	slices.SortStableFunc(out, func(a, b model.SignatureGroup) int {
		if a.Level != b.Level {
			return cmp.Compare(b.Level, a.Level)
		}
		return cmp.Compare(b.Count, a.Count)
	})
	return out
}

func category(c model.IssueCategory) string {
	if len(c.Secondary) == 0 {
		return orDash(c.Primary)
	}
	return c.Primary + " (" + strings.Join(c.Secondary, ", ") + ")"
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
