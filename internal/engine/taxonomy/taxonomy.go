// Package taxonomy maps components and sources to subsystem hints and
// classifies incident text into issue categories.
package taxonomy

import (
	"fmt"
	"strings"

	"github.com/crimson-sun/dumpsift/internal/model"
)

type prefix struct {
	lower string
	path  string
}

// Taxonomy resolves subsystem hints from a node tree. It is read-only after
// New.
type Taxonomy struct {
	root     []*model.TaxonomyNode
	prefixes []prefix
	sources  map[model.Source]string
	paths    []string
}

// New indexes roots. Subsystem paths join node names with "/"; duplicate
// paths are an error.
func New(roots []*model.TaxonomyNode) (*Taxonomy, error) {
	t := &Taxonomy{root: roots, sources: make(map[model.Source]string)}
	seen := make(map[string]bool)
	var walk func(parent string, nodes []*model.TaxonomyNode) error
	walk = func(parent string, nodes []*model.TaxonomyNode) error {
		for _, n := range nodes {
			if n.Name == "" {
				return fmt.Errorf("taxonomy node under %q has no name", parent)
			}
			path := n.Name
			if parent != "" {
				path = parent + "/" + n.Name
			}
			if seen[path] {
				return fmt.Errorf("duplicate taxonomy path %q", path)
			}
			seen[path] = true
			t.paths = append(t.paths, path)
			for _, c := range n.Components {
				t.prefixes = append(t.prefixes, prefix{lower: strings.ToLower(c), path: path})
			}
			for _, src := range n.Sources {
				if _, ok := t.sources[src]; !ok {
					t.sources[src] = path
				}
			}
			if err := walk(path, n.Children); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk("", roots); err != nil {
		return nil, err
	}
	return t, nil
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	t, err := New(DefaultRoots())
	if err != nil {
		panic(err)
	}
	return t
}

// Roots returns the top-level taxonomy nodes.
func (t *Taxonomy) Roots() []*model.TaxonomyNode {
	return t.root
}

// Subsystems returns every subsystem path in tree order.
func (t *Taxonomy) Subsystems() []string {
	return t.paths
}

// Hint returns the subsystem for an event's component and source: the
// longest matching component prefix, else the subsystem that claims the
// source, else "".
func (t *Taxonomy) Hint(component string, source model.Source) string {
	comp := strings.ToLower(strings.TrimSpace(component))
	best, bestLen := "", 0
	if comp != "" {
		for _, p := range t.prefixes {
			if len(p.lower) > bestLen && strings.HasPrefix(comp, p.lower) {
				best, bestLen = p.path, len(p.lower)
			}
		}
	}
	if best != "" {
		return best
	}
	return t.sources[source]
}
