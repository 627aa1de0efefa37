package dumpsift

import (
	"github.com/crimson-sun/dumpsift/internal/engine/taxonomy"
	"github.com/crimson-sun/dumpsift/internal/model"
)

// Subsystem is a node of the subsystem taxonomy incidents are attributed to.
type Subsystem struct {
	Path        string // e.g. "Kernel/Memory"
	Description string
	Components  []string // component prefixes claimed by the subsystem
}

// Category is the keyword classification of an issue report.
type Category struct {
	Primary   string              `json:"primary"`             // "Other" when nothing scored
	Secondary []string            `json:"secondary,omitempty"` // topical secondaries
	Scores    map[string]int      `json:"scores,omitempty"`
	Reasons   map[string][]string `json:"reasons,omitempty"` // matched keywords per category
}

// Subsystems returns the subsystem taxonomy in tree order. This is
// read-only.
func (a *Analyzer) Subsystems() []Subsystem {
	var out []Subsystem
	var walk func(parent string, nodes []*model.TaxonomyNode)
	walk = func(parent string, nodes []*model.TaxonomyNode) {
		for _, n := range nodes {
			path := n.Name
			if parent != "" {
				path = parent + "/" + n.Name
			}
			out = append(out, Subsystem{Path: path, Description: n.Desc, Components: n.Components})
			walk(path, n.Children)
		}
	}
	walk("", a.taxonomy.Roots())
	return out
}

// Categorize classifies an issue by the keywords of its title and content,
// returning the primary category and up to two secondaries.
func Categorize(title, content string) Category {
	c := taxonomy.Categorize(title, content, 3)
	return Category{Primary: c.Primary, Secondary: c.Secondary, Scores: c.Scores, Reasons: c.Reasons}
}
