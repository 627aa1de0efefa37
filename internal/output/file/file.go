// Package file writes a case's events as NDJSON to a file. A case replaces
// the previous file unless appending is requested, and large cases can be
// split into numbered segments ("events.ndjson", "events.1.ndjson", ...).
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/crimson-sun/dumpsift/internal/engine/compactor"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/output"
)

const (
	defaultBufSize  = 64 * 1024
	defaultMaxFiles = 10
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize starts a new segment once the current one would grow past
// bytes. 0 keeps every event in one file.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// WithMaxFiles caps how many older segments are kept next to the current
// one.
func WithMaxFiles(n int) Option {
	return func(o *Output) {
		if n > 0 {
			o.maxFiles = n
		}
	}
}

// WithAppend keeps events already in the file, so several cases can share
// one export.
func WithAppend() Option {
	return func(o *Output) { o.append = true }
}

// WithBufSize sets the write buffer size.
func WithBufSize(bytes int) Option {
	return func(o *Output) { o.bufSize = bytes }
}

// Output writes NDJSON events to a file. It is safe for concurrent use;
// events land in call order.
type Output struct {
	mu        sync.Mutex
	w         *bufio.Writer
	f         *os.File
	path      string
	verbosity compactor.Verbosity
	maxSize   int64
	maxFiles  int
	append    bool
	size      int64 // bytes in the current segment
	events    int64
	bufSize   int
}

// New opens path for the events of one case.
func New(path string, verbosity compactor.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{
		path:      path,
		verbosity: verbosity,
		maxFiles:  defaultMaxFiles,
		bufSize:   defaultBufSize,
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("events file: %w", err)
	}
	if err := o.open(o.append); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends event as one JSON line, rendered at the output's verbosity.
func (o *Output) Write(_ context.Context, event *model.Event) error {
	data, err := json.Marshal(output.FormatEvent(event, o.verbosity))
	if err != nil {
		return fmt.Errorf("events file: encode %s:%d: %w", event.File, event.Line, err)
	}
	data = append(data, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()
	// a segment always takes at least one event
	if o.maxSize > 0 && o.size > 0 && o.size+int64(len(data)) > o.maxSize {
		if err := o.nextSegment(); err != nil {
			return fmt.Errorf("events file: new segment: %w", err)
		}
	}
	n, err := o.w.Write(data)
	o.size += int64(n)
	if err != nil {
		return fmt.Errorf("events file: write %s: %w", o.path, err)
	}
	o.events++
	return nil
}

// Events returns how many events have been written.
func (o *Output) Events() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.events
}

// Close flushes buffered events and closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.w.Flush(); err != nil {
		o.f.Close()
		return fmt.Errorf("events file: flush %s: %w", o.path, err)
	}
	return o.f.Close()
}

func (o *Output) open(keep bool) error {
	flags := os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	if keep {
		flags = os.O_CREATE | os.O_WRONLY | os.O_APPEND
	}
	f, err := os.OpenFile(o.path, flags, 0o644)
	if err != nil {
		return fmt.Errorf("events file: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("events file: stat %s: %w", o.path, err)
	}
	o.f = f
	o.w = bufio.NewWriterSize(f, o.bufSize)
	o.size = info.Size()
	return nil
}

// nextSegment moves the current file to segment 1, shifting older
// segments up and dropping the ones past maxFiles.
func (o *Output) nextSegment() error {
	if err := o.w.Flush(); err != nil {
		return err
	}
	if err := o.f.Close(); err != nil {
		return err
	}
	os.Remove(Segment(o.path, o.maxFiles))
	for i := o.maxFiles - 1; i >= 1; i-- {
		os.Rename(Segment(o.path, i), Segment(o.path, i+1)) // older segments may not exist
	}
	if err := os.Rename(o.path, Segment(o.path, 1)); err != nil {
		return err
	}
	return o.open(false)
}

// Segment names the n-th older segment of path, keeping its extension:
// "case/events.ndjson" becomes "case/events.2.ndjson".
func Segment(path string, n int) string {
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s.%d%s", strings.TrimSuffix(path, ext), n, ext)
}
