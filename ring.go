package tempolink

import (
	"sync/atomic"

	"github.com/shaban/tempolink/state"
)

// ringCapacity bounds the realtime-to-worker handoff rings. The merge
// worker drains continuously, so the rings only fill if the process is
// badly starved.
const ringCapacity = 64

// spscRing is a fixed-capacity single-producer single-consumer ring. The
// producer is the realtime thread; the consumer is the merge worker. Both
// sides are lock-free and allocation-free: slots are reused in place and
// the atomic head/tail stores publish them.
type spscRing[T any] struct {
	buf  [ringCapacity]T
	head atomic.Uint64 // next slot to pop, advanced by the consumer
	tail atomic.Uint64 // next slot to push, advanced by the producer
}

// push appends v and reports whether there was room.
func (r *spscRing[T]) push(v T) bool {
	t := r.tail.Load()
	if t-r.head.Load() >= ringCapacity {
		return false
	}
	r.buf[t%ringCapacity] = v
	r.tail.Store(t + 1)
	return true
}

// pop removes the oldest element, if any.
func (r *spscRing[T]) pop() (T, bool) {
	h := r.head.Load()
	if h == r.tail.Load() {
		var zero T
		return zero, false
	}
	v := r.buf[h%ringCapacity]
	r.head.Store(h + 1)
	return v, true
}

// full reports whether a push would fail right now. Only meaningful on the
// producer side.
func (r *spscRing[T]) full() bool {
	return r.tail.Load()-r.head.Load() >= ringCapacity
}

// changeEvent carries the callback-worthy deltas of an update the realtime
// path applied directly, for the merge worker to dispatch.
type changeEvent struct {
	tempoChanged     bool
	tempo            state.Tempo
	transportChanged bool
	isPlaying        bool
}

// diffStates derives the change event between two resolved states.
func diffStates(prev, next state.SessionState) (changeEvent, bool) {
	ev := changeEvent{}
	if next.Timeline.Tempo != prev.Timeline.Tempo {
		ev.tempoChanged = true
		ev.tempo = next.Timeline.Tempo
	}
	if next.StartStopState.IsPlaying != prev.StartStopState.IsPlaying {
		ev.transportChanged = true
		ev.isPlaying = next.StartStopState.IsPlaying
	}
	return ev, ev.tempoChanged || ev.transportChanged
}

// pendingUpdate is an IncomingSessionState flattened to plain values so it
// can sit in a ring slot without keeping caller pointers alive.
type pendingUpdate struct {
	hasTimeline  bool
	timeline     state.Timeline
	hasStartStop bool
	startStop    state.StartStopState
	timestamp    int64
}

func makePending(in state.IncomingSessionState) pendingUpdate {
	p := pendingUpdate{timestamp: in.Timestamp}
	if in.Timeline != nil {
		p.hasTimeline = true
		p.timeline = *in.Timeline
	}
	if in.StartStopState != nil {
		p.hasStartStop = true
		p.startStop = *in.StartStopState
	}
	return p
}

// incoming rebuilds the update on the worker side, where allocating is
// fine.
func (p pendingUpdate) incoming() state.IncomingSessionState {
	in := state.IncomingSessionState{Timestamp: p.timestamp}
	if p.hasTimeline {
		tl := p.timeline
		in.Timeline = &tl
	}
	if p.hasStartStop {
		ss := p.startStop
		in.StartStopState = &ss
	}
	return in
}
