// Package multi fans events out to several outputs.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/output"
)

// Multi delivers every event to each wrapped output in turn. A failing
// output does not stop delivery to the others.
type Multi struct {
	outputs []output.Output
}

// New creates a Multi that fans out to the given outputs. Nil outputs are
// skipped.
func New(outputs ...output.Output) *Multi {
	m := &Multi{}
	for _, o := range outputs {
		if o != nil {
			m.outputs = append(m.outputs, o)
		}
	}
	return m
}

// Len returns the number of wrapped outputs.
func (m *Multi) Len() int { return len(m.outputs) }

// Write delivers the event to every wrapped output and joins their errors.
func (m *Multi) Write(ctx context.Context, event *model.Event) error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Write(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every wrapped output and joins their errors.
func (m *Multi) Close() error {
	var errs []error
	for i, o := range m.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, fmt.Errorf("output %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
