package taxonomy

import (
	"regexp"
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// phrase rewrites that boost common crash wording.
var phrases = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`\b(app|application) (keeps )?(crashing|stopping|closing)\b`), "crash"},
	{regexp.MustCompile(`\b(stopped|stops) working\b`), "stopped working"},
	{regexp.MustCompile(`\bunfortunately[, ]+.* has stopped\b`), "app has stopped"},
}

type keyword struct {
	word string
	re   *regexp.Regexp // nil for plain substring matching
}

type category struct {
	name     string
	keywords []keyword
}

// Categorizer scores text against keyword categories. The first category
// is the crash category. It is safe for concurrent use.
type Categorizer struct {
	cats []category
}

// NewCategorizer compiles defs. Keywords that start and end with a letter
// or digit match on word boundaries; others match as substrings.
func NewCategorizer(defs []model.CategoryDef) *Categorizer {
	c := &Categorizer{}
	fold := cases.Fold()
	for _, d := range defs {
		cat := category{name: d.Name}
		for _, w := range d.Keywords {
			w = fold.String(w)
			k := keyword{word: w}
			if wordy(w) {
				k.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(w) + `\b`)
			}
			cat.keywords = append(cat.keywords, k)
		}
		c.cats = append(c.cats, cat)
	}
	return c
}

var defaultCategorizer = NewCategorizer(DefaultCategories())

// Categorize classifies title and content with the built-in categories.
func Categorize(title, content string, topK int) model.IssueCategory {
	return defaultCategorizer.Categorize(title, content, topK)
}

// Categorize returns the primary category and up to topK-1 secondaries.
// When the crash category scores it is primary and the other scoring
// categories are its topical secondaries.
func (c *Categorizer) Categorize(title, content string, topK int) model.IssueCategory {
	topK = max(topK, 1)
	text := cases.Fold().String(title + "\n" + content)
	for _, p := range phrases {
		text = p.re.ReplaceAllString(text, p.repl)
	}

	out := model.IssueCategory{
		Primary: CategoryOther,
		Scores:  make(map[string]int, len(c.cats)),
		Reasons: make(map[string][]string),
	}
	for _, cat := range c.cats {
		score := 0
		for _, k := range cat.keywords {
			if !k.match(text) {
				continue
			}
			if strings.Contains(k.word, " ") {
				score += 2
			} else {
				score++
			}
			out.Reasons[cat.name] = append(out.Reasons[cat.name], k.word)
		}
		out.Scores[cat.name] = score
	}
	if len(c.cats) == 0 {
		return out
	}

	// ranked by score, ties in definition order
	ranked := make([]string, 0, len(c.cats))
	for _, cat := range c.cats {
		if out.Scores[cat.name] > 0 {
			ranked = append(ranked, cat.name)
		}
	}
	slices.SortStableFunc(ranked, func(a, b string) int { return out.Scores[b] - out.Scores[a] })

	crash := c.cats[0].name
	if out.Scores[crash] > 0 {
		out.Primary = crash
		ranked = slices.DeleteFunc(ranked, func(n string) bool { return n == crash })
	} else if len(ranked) > 0 {
		out.Primary = ranked[0]
		ranked = ranked[1:]
	}
	if n := min(topK-1, len(ranked)); n > 0 {
		out.Secondary = ranked[:n]
	}
	return out
}

func (k keyword) match(text string) bool {
	if k.re != nil {
		return k.re.MatchString(text)
	}
	return strings.Contains(text, k.word)
}

func wordy(s string) bool {
	isAlnum := func(b byte) bool {
		return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
	}
	return s != "" && isAlnum(s[0]) && isAlnum(s[len(s)-1])
}
