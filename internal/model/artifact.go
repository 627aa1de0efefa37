package model

import (
	"io"
	"time"
)

// ArtifactKind selects the parser for an artifact.
type ArtifactKind string

const (
	KindUnknown   ArtifactKind = "unknown"
	KindBugreport ArtifactKind = "bugreport"
	KindLogcat    ArtifactKind = "logcat"
	KindKernel    ArtifactKind = "kernel"
	KindANR       ArtifactKind = "anr"
	KindTombstone ArtifactKind = "tombstone"
	KindDropbox   ArtifactKind = "dropbox"
)

// ArtifactKinds lists the parseable kinds.
var ArtifactKinds = []ArtifactKind{KindBugreport, KindLogcat, KindKernel, KindANR, KindTombstone, KindDropbox}

// Valid reports whether k names a parseable kind.
func (k ArtifactKind) Valid() bool {
	for _, v := range ArtifactKinds {
		if v == k {
			return true
		}
	}
	return false
}

// Artifact is one input file handed over by ingestion.
type Artifact struct {
	Name     string       // source filename, used for classification and warnings
	KindHint ArtifactKind // optional; empty or unknown means classify
	Reader   io.Reader
	ModTime  time.Time // optional; fallback time for records without one
}
