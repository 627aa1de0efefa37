// Package collect turns command-line inputs (files, directories and glob
// patterns) into artifacts ready for a case run.
package collect

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// DefaultExclude skips files that are never diagnostic logs.
var DefaultExclude = []string{
	"**/.*",
	"**/*.{zip,gz,tgz,xz,7z,png,jpg,jpeg,mp4,apk,so,db}",
	"**/proto/**",
}

// Expand resolves inputs to a sorted, de-duplicated list of regular files.
// Directories are walked recursively; inputs containing glob metacharacters
// are matched with doublestar. Paths matching any exclude pattern, relative
// to the directory or glob base they were found under, are dropped. Plain
// file inputs are always kept.
func Expand(inputs []string, exclude []string) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, in := range inputs {
		if hasMeta(in) {
			base, pattern := doublestar.SplitPattern(filepath.ToSlash(in))
			matches, err := doublestar.Glob(os.DirFS(base), pattern, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("pattern %s: %w", in, err)
			}
			for _, m := range matches {
				if !excluded(m, exclude) {
					add(filepath.Join(base, filepath.FromSlash(m)))
				}
			}
			continue
		}
		info, err := os.Stat(in)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", in, err)
		}
		if !info.IsDir() {
			add(in)
			continue
		}
		err = fs.WalkDir(os.DirFS(in), ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if p == "." {
				return nil
			}
			if d.IsDir() {
				if excludedDir(p, exclude) {
					return fs.SkipDir
				}
				return nil
			}
			if d.Type().IsRegular() && !excluded(p, exclude) {
				add(filepath.Join(in, filepath.FromSlash(p)))
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", in, err)
		}
	}
	slices.Sort(out)
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func excluded(rel string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// excludedDir reports whether a directory, or everything under it, is
// excluded.
func excludedDir(rel string, patterns []string) bool {
	return excluded(rel, patterns) || excluded(rel+"/_", patterns)
}

// Set is a group of opened artifacts. Close releases their files.
type Set struct {
	Artifacts []model.Artifact
	files     []*os.File
}

// Open opens paths in order. Artifact names are the paths as given, so
// classification sees directory names such as "anr/" or "tombstones/".
func Open(paths []string) (*Set, error) {
	s := &Set{}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open artifact: %w", err)
		}
		info, err := f.Stat()
		if err != nil {
			f.Close()
			s.Close()
			return nil, fmt.Errorf("stat artifact: %w", err)
		}
		s.files = append(s.files, f)
		s.Artifacts = append(s.Artifacts, model.Artifact{
			Name:    filepath.ToSlash(p),
			Reader:  f,
			ModTime: info.ModTime(),
		})
	}
	return s, nil
}

// Close closes every opened file.
func (s *Set) Close() error {
	var errs []error
	for _, f := range s.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.files = nil
	return errors.Join(errs...)
}
