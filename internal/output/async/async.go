// Package async decouples event producers from a slow output with a
// buffered channel.
package async

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/dumpsift/internal/logging"
	"github.com/crimson-sun/dumpsift/internal/model"
	"github.com/crimson-sun/dumpsift/internal/output"
)

const (
	defaultBufferSize   = 1024
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the channel buffer capacity.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner output's Write fails.
// By default the error is logged.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// WithDropOnFull makes Write drop the event instead of blocking when the
// buffer is full.
func WithDropOnFull() Option {
	return func(a *Async) { a.dropOnFull = true }
}

// WithDrainTimeout bounds how long Close waits for buffered events.
func WithDrainTimeout(d time.Duration) Option {
	return func(a *Async) { a.drainTimeout = d }
}

// Async writes into a buffered channel drained by one goroutine, so the
// inner output sees events in the order they were written. Errors from the
// inner output go to errFunc rather than to the caller.
type Async struct {
	inner        output.Output
	ch           chan *model.Event
	done         chan struct{}
	errFunc      func(error)
	bufSize      int
	dropOnFull   bool
	drainTimeout time.Duration
	dropped      atomic.Int64
	closeOnce    sync.Once
	logger       *slog.Logger
}

// New wraps inner and starts the drain goroutine.
func New(inner output.Output, opts ...Option) *Async {
	a := &Async{
		inner:        inner,
		bufSize:      defaultBufferSize,
		drainTimeout: defaultDrainTimeout,
		logger:       logging.New("output"),
	}
	a.errFunc = func(err error) { a.logger.Warn("async output write error", slog.Any("error", err)) }
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan *model.Event, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

// Write queues the event. It blocks while the buffer is full unless the
// wrapper drops on full, and gives up when ctx is done.
func (a *Async) Write(ctx context.Context, event *model.Event) error {
	if a.dropOnFull {
		select {
		case a.ch <- event:
		default:
			a.dropped.Add(1)
			a.logger.Debug("async output buffer full, dropping event",
				slog.String("component", event.Component),
				slog.String("source", string(event.Source)))
		}
		return nil
	}
	select {
	case a.ch <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped returns how many events were discarded on a full buffer.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close stops accepting events, waits for the drain up to the drain
// timeout, then closes the inner output.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.ch)
		select {
		case <-a.done:
		case <-time.After(a.drainTimeout):
			a.logger.Warn("async output drain timed out", slog.Int("pending", len(a.ch)))
		}
		if n := a.dropped.Load(); n > 0 {
			a.logger.Warn("async output dropped events", slog.Int64("dropped", n))
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for event := range a.ch {
		if err := a.inner.Write(context.Background(), event); err != nil {
			a.errFunc(err)
		}
	}
}
