// Package report renders a finished case: the summary JSON document and
// the terminal tables printed by the CLI.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/pipeline"
)

// Summary is the document written to the summary path. Events are left
// out; they are streamed to the events output instead.
type Summary struct {
	CaseID      string                 `json:"case_id"`
	GeneratedAt time.Time              `json:"generated_at"`
	Device      *model.Device          `json:"device"`
	Artifacts   []pipeline.Classified  `json:"artifacts"`
	EventCount  int                    `json:"event_count"`
	Groups      []model.SignatureGroup `json:"groups"`
	Matches     []model.RuleMatch      `json:"matches"`
	Incident    *model.Incident        `json:"incident"`
	Warnings    []model.Warning        `json:"warnings"`
}

// NewSummary builds the summary of res.
func NewSummary(res *pipeline.Result, now time.Time) Summary {
	s := Summary{
		CaseID:      res.CaseID,
		GeneratedAt: now.UTC(),
		Device:      res.Device,
		Artifacts:   res.Artifacts,
		EventCount:  len(res.Events),
		Groups:      res.Groups,
		Matches:     res.Matches,
		Incident:    res.Incident,
		Warnings:    res.Warnings,
	}
	if s.Groups == nil {
		s.Groups = []model.SignatureGroup{}
	}
	if s.Matches == nil {
		s.Matches = []model.RuleMatch{}
	}
	if s.Warnings == nil {
		s.Warnings = []model.Warning{}
	}
	return s
}

// WriteJSON encodes s to w.
func WriteJSON(w io.Writer, s Summary, pretty bool) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

// WriteFile writes s to path through a temporary file, so readers never
// see a partial document.
func WriteFile(path string, s Summary, pretty bool) error {
	var buf bytes.Buffer
	if err := WriteJSON(&buf, s, pretty); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("summary dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
