// Package testdata embeds small capture cases used by end-to-end tests.
package testdata

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"time"

	"github.com/crimson-sun/dumpsift/internal/model"
)

//go:embed manifest.json
var manifestJSON []byte

//go:embed cases
var casesFS embed.FS

// Case is one captured set of artifacts and what analysing it should yield.
type Case struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Artifacts   []string `json:"artifacts"`
	Expect      Expect   `json:"expect"`
}

// Expect holds the labelled outcome of a case.
type Expect struct {
	Model              string              `json:"model"`
	Events             int                 `json:"events"`
	SuspectedSubsystem string              `json:"suspected_subsystem"`
	Warnings           []model.WarningKind `json:"warnings"`
}

// LoadCases parses the embedded manifest.
func LoadCases() ([]Case, error) {
	var cases []Case
	if err := json.Unmarshal(manifestJSON, &cases); err != nil {
		return nil, fmt.Errorf("parse manifest.json: %w", err)
	}
	return cases, nil
}

// Lookup returns the named case.
func Lookup(name string) (Case, error) {
	cases, err := LoadCases()
	if err != nil {
		return Case{}, err
	}
	for _, c := range cases {
		if c.Name == name {
			return c, nil
		}
	}
	return Case{}, fmt.Errorf("case %q: %w", name, fs.ErrNotExist)
}

// Artifacts opens the files of the named case in manifest order, stamping
// each with modTime.
func Artifacts(name string, modTime time.Time) ([]model.Artifact, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	arts := make([]model.Artifact, 0, len(c.Artifacts))
	for _, file := range c.Artifacts {
		data, err := casesFS.ReadFile(path.Join("cases", c.Name, file))
		if err != nil {
			return nil, fmt.Errorf("case %q: %w", name, err)
		}
		arts = append(arts, model.Artifact{
			Name:    file,
			Reader:  bytes.NewReader(data),
			ModTime: modTime,
		})
	}
	return arts, nil
}

// FS exposes the case files, rooted at the directory holding one folder per
// case.
func FS() fs.FS {
	sub, err := fs.Sub(casesFS, "cases")
	if err != nil {
		panic(err)
	}
	return sub
}
