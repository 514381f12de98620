// Package queue serializes work onto a single goroutine. The controller's
// io context uses it to run client callbacks off the realtime thread, in
// submission order, without holding any state lock while client code runs.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Enqueue after the queue has shut down.
var ErrClosed = errors.New("queue closed")

// Op is a unit of work executed on the queue's worker goroutine. It should
// be quick; anything heavy belongs on its own goroutine. The context is
// canceled when the queue shuts down.
type Op interface {
	Apply(ctx context.Context) error
}

// Func adapts a plain function into an Op.
type Func func(ctx context.Context) error

func (f Func) Apply(ctx context.Context) error { return f(ctx) }

// Queue runs ops one at a time, in FIFO order, on a single worker
// goroutine. Enqueue may block when the buffer is full; it never drops an
// op while the queue is open.
type Queue struct {
	ch     chan Op
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	start  sync.Once
	stop   sync.Once
}

// New creates a queue with the given buffer size.
func New(buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{ch: make(chan Op, buffer), ctx: ctx, cancel: cancel}
}

// Start launches the worker goroutine. Subsequent calls are no-ops.
func (q *Queue) Start() {
	q.start.Do(func() {
		q.wg.Add(1)
		go q.run()
	})
}

func (q *Queue) run() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			// Give already-enqueued ops a short window to finish.
			deadline := time.After(20 * time.Millisecond)
			for {
				select {
				case op := <-q.ch:
					q.apply(op)
				case <-deadline:
					return
				default:
					return
				}
			}
		case op := <-q.ch:
			q.apply(op)
		}
	}
}

func (q *Queue) apply(op Op) {
	if op == nil {
		return
	}
	_ = op.Apply(q.ctx)
}

// Enqueue submits an op to the worker. It blocks while the buffer is full
// and returns ErrClosed once the queue has shut down.
func (q *Queue) Enqueue(op Op) error {
	if q.ctx.Err() != nil {
		return ErrClosed
	}
	select {
	case q.ch <- op:
		return nil
	case <-q.ctx.Done():
		return ErrClosed
	}
}

// RunSync submits fn and waits for it to finish, returning its error.
// Useful when a caller needs a result while still serializing with other
// queued work.
func (q *Queue) RunSync(fn Func) error {
	done := make(chan error, 1)
	err := q.Enqueue(Func(func(ctx context.Context) error {
		e := fn(ctx)
		done <- e
		return e
	}))
	if err != nil {
		return err
	}
	select {
	case e := <-done:
		return e
	case <-q.ctx.Done():
		return context.Canceled
	}
}

// Close stops the worker and waits for it to exit. Safe to call more than
// once and safe to call before Start.
func (q *Queue) Close() {
	q.stop.Do(func() {
		q.cancel()
		q.wg.Wait()
	})
}
