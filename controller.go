package tempolink

import (
	"sync"
	"sync/atomic"

	"github.com/shaban/tempolink/clock"
	"github.com/shaban/tempolink/state"
)

// Controller owns the canonical SessionState of a tempo-synced session and
// exposes it through two access protocols over the same logical register:
//
//   - SessionState / SetSessionState: for any non-realtime goroutine.
//     Writers serialize through a mutex, may block, may allocate.
//   - SessionStateRtSafe / SetSessionStateRtSafe: for the audio callback.
//     Bounded time, no allocation, never waits on a lock a non-realtime
//     goroutine might hold.
//
// Updates from either path resolve against the current state with the same
// rule (see state.SessionState.Apply), and qualifying changes fire the
// client callbacks on the io context, never on the realtime thread and
// never while the controller's state is locked.
type Controller struct {
	clk clock.Clock
	io  IoContext

	// ownedIo is the io context the controller created for itself (nil io
	// argument); Close shuts it down.
	ownedIo *QueueIoContext

	enabled       atomic.Bool
	startStopSync atomic.Bool

	// reg is the single canonical register both paths read and write.
	reg sessionRegister

	// mu guards the peer count. notify spans an update and its callback
	// submission, so racing writers cannot invert notification order.
	// Client callbacks never run under mu; an io context that runs
	// handlers inline runs them under notify only.
	mu       sync.Mutex
	notify   sync.Mutex
	numPeers uint64

	peerCB      func(uint64)
	tempoCB     func(state.Tempo)
	startStopCB func(bool)

	// rtCache is the realtime thread's last coherent snapshot, served when
	// a bounded read loses every round against concurrent writers. Only
	// the realtime caller touches it after construction.
	rtCache state.SessionState

	// Handoff from the realtime path to the merge worker: direct updates
	// publish their callback deltas through events; updates that could not
	// take the register gate in bounded time travel whole through pending.
	events  spscRing[changeEvent]
	pending spscRing[pendingUpdate]
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	closing sync.Once
}

// NewController creates a controller with the requested initial tempo
// (clamped to the legal range), isPlaying=false at timestamp zero, zero
// peers, and both sync toggles off. Any of the three callbacks may be nil.
// A nil clk gets a host clock; a nil io gets a queue-backed io context
// owned (and closed) by the controller.
func NewController(
	requested state.Tempo,
	peerCB func(uint64),
	tempoCB func(state.Tempo),
	startStopCB func(bool),
	clk clock.Clock,
	io IoContext,
) *Controller {
	c := &Controller{
		clk:         clk,
		io:          io,
		peerCB:      peerCB,
		tempoCB:     tempoCB,
		startStopCB: startStopCB,
		wake:        make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	if c.clk == nil {
		c.clk = clock.NewHost()
	}
	if c.io == nil {
		c.ownedIo = NewQueueIoContext(nil)
		c.io = c.ownedIo
	}

	initial := state.SessionState{
		Timeline: state.Timeline{
			Tempo:      state.NewTempo(requested.BPM()),
			BeatOrigin: 0,
			TimeOrigin: 0,
		},
		StartStopState: state.StartStopState{IsPlaying: false, Timestamp: 0},
	}
	c.reg.init(initial)
	c.rtCache = initial

	c.wg.Add(1)
	go c.mergeLoop()
	return c
}

// Close stops the merge worker. Updates already accepted remain readable;
// further Set calls are still applied but their callbacks may be dropped.
func (c *Controller) Close() {
	c.closing.Do(func() {
		close(c.done)
		c.wg.Wait()
		if c.ownedIo != nil {
			c.ownedIo.Close()
		}
	})
}

// Clock returns the controller's time source, for callers that want to
// stamp updates consistently with it.
func (c *Controller) Clock() clock.Clock { return c.clk }

// Enable toggles participation in network synchronization. It has no
// effect on the session state or the peer count.
func (c *Controller) Enable(on bool) { c.enabled.Store(on) }

// IsEnabled reports the enable toggle.
func (c *Controller) IsEnabled() bool { return c.enabled.Load() }

// EnableStartStopSync toggles sharing of transport start/stop with peers.
// Independent of Enable; no effect on state.
func (c *Controller) EnableStartStopSync(on bool) { c.startStopSync.Store(on) }

// IsStartStopSyncEnabled reports the start/stop sync toggle.
func (c *Controller) IsStartStopSyncEnabled() bool { return c.startStopSync.Load() }

// SetNumPeers records the peer count reported by the discovery layer and
// fires the peer-count callback iff the value changed.
func (c *Controller) SetNumPeers(n uint64) {
	c.notify.Lock()
	c.mu.Lock()
	changed := n != c.numPeers
	c.numPeers = n
	c.mu.Unlock()
	if changed && c.peerCB != nil {
		cb := c.peerCB
		c.io.Async(func() { cb(n) })
	}
	c.notify.Unlock()
}

// NumPeers returns the most recently reported peer count.
func (c *Controller) NumPeers() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.numPeers
}

// SessionState returns the current state. Thread-safe path: may briefly
// spin across concurrent writes.
func (c *Controller) SessionState() state.SessionState {
	return c.reg.read()
}

// SetSessionState resolves in against the current state and publishes the
// result. Thread-safe path: concurrent callers serialize, and no state
// lock is held while client code runs.
func (c *Controller) SetSessionState(in state.IncomingSessionState) {
	// notify spans the register update and the callback submission, so two
	// racing writers cannot invert their notification order. The handlers
	// themselves run on the io context, never under the peer-count mutex.
	c.notify.Lock()
	prev, next := c.reg.update(in)
	c.queueCallbacks(prev, next)
	c.notify.Unlock()
}

// SessionStateRtSafe returns the current state without blocking. If every
// bounded read round loses against a concurrent writer, the realtime
// thread's previous coherent snapshot is served instead.
func (c *Controller) SessionStateRtSafe() state.SessionState {
	if s, ok := c.reg.tryRead(rtReadSpins); ok {
		c.rtCache = s
		return s
	}
	return c.rtCache
}

// SetSessionStateRtSafe resolves and publishes in from the realtime
// thread: bounded time, no locks, no allocation. The common case applies
// the update directly to the register and hands the callback deltas to the
// merge worker. Under gate contention the whole update is queued for the
// worker to apply through the thread-safe path. If both the gate and the
// rings stay saturated, one final larger (still fixed) bound is spent so
// the state itself is not lost even if a notification is.
func (c *Controller) SetSessionStateRtSafe(in state.IncomingSessionState) {
	if !c.events.full() {
		if prev, next, ok := c.reg.tryUpdate(rtWriteSpins, in); ok {
			c.finishRtUpdate(prev, next)
			return
		}
	}
	if c.pending.push(makePending(in)) {
		c.wakeWorker()
		return
	}
	if prev, next, ok := c.reg.tryUpdate(rtWriteSpins2, in); ok {
		c.finishRtUpdate(prev, next)
	}
	// Dropped: the register gate and both rings were saturated for the
	// whole bound. The caller still observes a coherent (previous) state.
}

func (c *Controller) finishRtUpdate(prev, next state.SessionState) {
	c.rtCache = next
	if ev, changed := diffStates(prev, next); changed {
		c.events.push(ev)
	}
	c.wakeWorker()
}

func (c *Controller) wakeWorker() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// queueCallbacks hands the qualifying change notifications for one
// accepted update to the io context: tempo iff the resolved tempo changed,
// start/stop iff the resolved playing flag changed. At most one of each
// per update; a stored-but-identical flag (newer timestamp, same value)
// fires nothing.
func (c *Controller) queueCallbacks(prev, next state.SessionState) {
	if next.Timeline.Tempo != prev.Timeline.Tempo && c.tempoCB != nil {
		cb, tempo := c.tempoCB, next.Timeline.Tempo
		c.io.Async(func() { cb(tempo) })
	}
	if next.StartStopState.IsPlaying != prev.StartStopState.IsPlaying && c.startStopCB != nil {
		cb, playing := c.startStopCB, next.StartStopState.IsPlaying
		c.io.Async(func() { cb(playing) })
	}
}

// mergeLoop is the non-realtime worker that completes work the realtime
// path could not do itself: dispatching callback events for directly
// applied updates, and applying updates that were queued whole.
func (c *Controller) mergeLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			c.drainHandoff()
			return
		case <-c.wake:
			c.drainHandoff()
		}
	}
}

func (c *Controller) drainHandoff() {
	for {
		// Events first: they belong to updates that hit the register
		// before anything currently waiting in pending.
		if ev, ok := c.events.pop(); ok {
			c.dispatchEvent(ev)
			continue
		}
		if p, ok := c.pending.pop(); ok {
			c.SetSessionState(p.incoming())
			continue
		}
		return
	}
}

func (c *Controller) dispatchEvent(ev changeEvent) {
	if ev.tempoChanged && c.tempoCB != nil {
		cb, tempo := c.tempoCB, ev.tempo
		c.io.Async(func() { cb(tempo) })
	}
	if ev.transportChanged && c.startStopCB != nil {
		cb, playing := c.startStopCB, ev.isPlaying
		c.io.Async(func() { cb(playing) })
	}
}
