// Package parser defines the format-parser capability and the bounded line
// stream every parser reads from. Parser implementations live in
// subpackages and register themselves by artifact kind.
package parser

import (
	"iter"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Parser turns one artifact's byte stream into raw records.
type Parser interface {
	// Kind returns the artifact kind this parser handles.
	Kind() model.ArtifactKind

	// Parse yields records in a single forward pass over s. Faults are
	// recorded on s as warnings; the sequence simply ends early.
	Parse(s *Stream) iter.Seq[model.RawRecord]
}
