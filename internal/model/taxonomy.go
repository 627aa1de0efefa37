package model

// TaxonomyNode is a subsystem in the hint tree. Components are logcat tags or
// kernel prefixes (case-insensitive prefixes) that point at the subsystem.
type TaxonomyNode struct {
	Name       string
	Desc       string
	Components []string
	Sources    []Source
	Children   []*TaxonomyNode
}

// CategoryDef is one issue category of the keyword classifier.
type CategoryDef struct {
	Name     string
	Desc     string
	Keywords []string
}
