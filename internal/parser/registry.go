package parser

import (
	"errors"
	"fmt"
	"sort"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// ErrUnknownKind is returned by Get for kinds without a registered parser.
var ErrUnknownKind = errors.New("no parser registered")

// Constructor is a function that creates a new Parser instance.
type Constructor func() Parser

var registry = map[model.ArtifactKind]Constructor{}

// Register adds a parser constructor under the given artifact kind.
func Register(kind model.ArtifactKind, ctor Constructor) {
	registry[kind] = ctor
}

// Get returns a fresh parser for the given artifact kind.
func Get(kind model.ArtifactKind) (Parser, error) {
	ctor, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w for kind %q", ErrUnknownKind, kind)
	}
	return ctor(), nil
}

// Kinds returns the registered artifact kinds, sorted.
func Kinds() []model.ArtifactKind {
	kinds := make([]model.ArtifactKind, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
