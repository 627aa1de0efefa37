// Package output defines where merged events go and how they are shaped on
// the way out.
package output

import (
	"context"

	"github.com/crimson-sun/dumpsift/internal/model"
)

// Output defines the interface for event destinations. Events arrive in the
// case's total order.
type Output interface {
	Write(ctx context.Context, event *model.Event) error
	Close() error
}
