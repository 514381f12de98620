package tempolink

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/shaban/tempolink/queue"
)

// IoContext supplies the asynchronous execution capability the controller
// uses to run client callbacks off the realtime thread, plus the logging
// sink collaborators report diagnostics to. Network facilities an io
// context may also own (sockets, timers) are the transport layer's
// business and are not used here.
type IoContext interface {
	// Async schedules fn to run on a non-realtime goroutine. Handlers for
	// the same context run in submission order. An implementation may run
	// fn inline, before Async returns; handlers must therefore not call
	// back into state-mutating controller methods.
	Async(fn func())

	// Log returns the diagnostics sink.
	Log() *logrus.Logger
}

// QueueIoContext backs Async with a single-goroutine queue, preserving
// submission order. This is the io context the controller creates for
// itself when the caller passes nil.
type QueueIoContext struct {
	q   *queue.Queue
	log *logrus.Logger
}

// NewQueueIoContext creates a started io context. A nil logger gets a
// fresh logrus instance.
func NewQueueIoContext(log *logrus.Logger) *QueueIoContext {
	if log == nil {
		log = logrus.New()
	}
	q := queue.New(128)
	q.Start()
	return &QueueIoContext{q: q, log: log}
}

// Async schedules fn on the worker goroutine. After Close the handler is
// dropped with a log line; client callbacks racing a shutdown are not an
// error.
func (io *QueueIoContext) Async(fn func()) {
	err := io.q.Enqueue(queue.Func(func(ctx context.Context) error {
		fn()
		return nil
	}))
	if err != nil {
		io.log.WithError(err).Debug("async handler dropped during shutdown")
	}
}

// Log returns the diagnostics sink.
func (io *QueueIoContext) Log() *logrus.Logger { return io.log }

// Close stops the worker after draining already-scheduled handlers.
func (io *QueueIoContext) Close() { io.q.Close() }

// SyncIoContext runs handlers inline on the calling goroutine. It exists
// for tests and single-threaded tools; never hand it to a controller whose
// realtime path is exercised by an actual audio thread, because "inline"
// there would mean client code on the worker that drains realtime events.
type SyncIoContext struct {
	Logger *logrus.Logger
}

// Async runs fn immediately.
func (io SyncIoContext) Async(fn func()) { fn() }

// Log returns the configured logger, or the shared standard one.
func (io SyncIoContext) Log() *logrus.Logger {
	if io.Logger != nil {
		return io.Logger
	}
	return logrus.StandardLogger()
}
